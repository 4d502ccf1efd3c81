package conversation

import (
	"errors"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    time.Duration
		wantErr error
	}{
		{in: "0:1:0:0", want: time.Hour},
		{in: " 0:0:30:0 ", want: 30 * time.Minute},
		{in: "1:0:0:0", want: 24 * time.Hour},
		{in: "0:0:0:90", want: 90 * time.Second},
		{in: "2:25:61:0", want: 2*24*time.Hour + 25*time.Hour + 61*time.Minute},
		{in: "0:0:0:0", wantErr: ErrNotPositive},
		{in: "0:1:0", wantErr: ErrBadFormat},
		{in: "-1:0:0:0", wantErr: ErrBadFormat},
		{in: "a:b:c:d", wantErr: ErrBadFormat},
		{in: "", wantErr: ErrBadFormat},
		{in: "106752:0:0:0", wantErr: ErrTooLong},
		{in: "0:0:0:99999999999999999999", wantErr: ErrTooLong},
	}
	for _, tc := range cases {
		iv, err := ParseInterval(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ParseInterval(%q) err = %v, want %v", tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseInterval(%q): %v", tc.in, err)
		}
		if got := iv.Duration(); got != tc.want {
			t.Fatalf("ParseInterval(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIntervalString(t *testing.T) {
	t.Parallel()
	iv := Interval{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	if got := iv.String(); got != "1d 2h 3m 4s" {
		t.Fatalf("String() = %q, want %q", got, "1d 2h 3m 4s")
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 12, 30, 23, 59, 0, 0, time.UTC)

	cases := []struct {
		in      string
		want    time.Time
		wantErr error
	}{
		{in: "30.12.2024", want: time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)},
		{in: "01.01.2025", want: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: "29.12.2024", wantErr: ErrPastDate},
		{in: "31.02.2025", wantErr: ErrBadFormat},
		{in: "2025-01-01", wantErr: ErrBadFormat},
		{in: "1.1.2025", wantErr: ErrBadFormat},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in, now)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ParseDate(%q) err = %v, want %v", tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil || !got.Equal(tc.want) {
			t.Fatalf("ParseDate(%q) = %v, %v, want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestParseDateUsesUTCDay(t *testing.T) {
	t.Parallel()
	// 01:00 on the 31st at UTC+3 is still the 30th in UTC.
	now := time.Date(2024, 12, 31, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	if _, err := ParseDate("30.12.2024", now); err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{in: "09:30", h: 9, m: 30, wantOK: true},
		{in: "00:00", wantOK: true},
		{in: "23:59", h: 23, m: 59, wantOK: true},
		{in: "24:00"},
		{in: "12:60"},
		{in: "9.30"},
		{in: "noon"},
	}
	for _, tc := range cases {
		h, m, err := ParseClock(tc.in)
		if !tc.wantOK {
			if !errors.Is(err, ErrBadFormat) {
				t.Fatalf("ParseClock(%q) err = %v, want ErrBadFormat", tc.in, err)
			}
			continue
		}
		if err != nil || h != tc.h || m != tc.m {
			t.Fatalf("ParseClock(%q) = %d, %d, %v, want %d, %d", tc.in, h, m, err, tc.h, tc.m)
		}
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{"1": true, " 42 ": true, "0": false, "-1": false, "x": false, "": false}
	for in, want := range cases {
		if _, ok := parseID(in); ok != want {
			t.Fatalf("parseID(%q) ok = %v, want %v", in, ok, want)
		}
	}
}
