package conversation

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadFormat   = errors.New("bad format")
	ErrNotPositive = errors.New("must be greater than zero")
	ErrPastDate    = errors.New("date is in the past")
	ErrTooLong     = errors.New("interval too long")
)

const (
	dateLayout  = "02.01.2006"
	clockLayout = "15:04"
)

var intervalRe = regexp.MustCompile(`^(\d+):(\d+):(\d+):(\d+)$`)

// Interval is a days:hours:minutes:seconds reply as typed by the user.
type Interval struct {
	Days, Hours, Minutes, Seconds int64
}

func (iv Interval) Duration() time.Duration {
	secs := iv.Days*86400 + iv.Hours*3600 + iv.Minutes*60 + iv.Seconds
	return time.Duration(secs) * time.Second
}

func (iv Interval) String() string {
	return strconv.FormatInt(iv.Days, 10) + "d " + strconv.FormatInt(iv.Hours, 10) + "h " +
		strconv.FormatInt(iv.Minutes, 10) + "m " + strconv.FormatInt(iv.Seconds, 10) + "s"
}

// maxIntervalSeconds keeps the total within time.Duration.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// ParseInterval reads "days:hours:minutes:seconds". Every part is a
// non-negative integer and the total must be positive.
func ParseInterval(s string) (Interval, error) {
	m := intervalRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Interval{}, ErrBadFormat
	}
	var parts [4]int64
	for i := range parts {
		v, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return Interval{}, ErrTooLong
		}
		parts[i] = v
	}
	iv := Interval{Days: parts[0], Hours: parts[1], Minutes: parts[2], Seconds: parts[3]}

	total := int64(0)
	for i, mul := range [4]int64{86400, 3600, 60, 1} {
		if parts[i] > (maxIntervalSeconds-total)/mul {
			return Interval{}, ErrTooLong
		}
		total += parts[i] * mul
	}
	if total <= 0 {
		return Interval{}, ErrNotPositive
	}
	return iv, nil
}

// ParseDate reads DD.MM.YYYY as a UTC calendar date. Dates before today's
// UTC date are rejected; today itself is fine.
func ParseDate(s string, now time.Time) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, ErrBadFormat
	}
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return time.Time{}, ErrPastDate
	}
	return d, nil
}

// ParseClock reads a 24-hour HH:MM time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, ErrBadFormat
	}
	return t.Hour(), t.Minute(), nil
}

// combine places hour:minute UTC on date's calendar day.
func combine(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
