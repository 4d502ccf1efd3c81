package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"habitbot/internal/storage"
	logx "habitbot/pkg/logx"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCheck(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "telegram:\n  token: \"123:abc\"\nstorage:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := execute(t, "config", "check", "-c", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	if !strings.Contains(out, "Configuration OK") || !strings.Contains(out, "default interval: 1h0m0s") {
		t.Fatalf("output = %q", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("storage:\n  driver: redis\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := execute(t, "config", "check", "-c", bad); err == nil || !strings.Contains(err.Error(), "storage.driver") {
		t.Fatalf("config check (bad) err = %v, want storage.driver error", err)
	}
}

func TestItemsList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	db := filepath.Join(dir, "habits.db")
	cfgPath := filepath.Join(dir, "config.json")
	body := `{"telegram":{"token":"123:abc"},"storage":{"driver":"sqlite","path":"` + filepath.ToSlash(db) + `"}}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: db}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	due := time.Date(2030, 1, 2, 9, 30, 0, 0, time.UTC)
	if _, err := st.Create(ctx, storage.NewItem{OwnerID: 5, Title: "Stretch", Kind: storage.KindRecurring, ReminderInterval: time.Hour}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Create(ctx, storage.NewItem{OwnerID: 6, Title: "Taxes", Kind: storage.KindDeadline, DeadlineAt: due}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = st.Close()

	out, err := execute(t, "items", "list", "-c", cfgPath, "--owner", "6")
	if err != nil {
		t.Fatalf("items list: %v", err)
	}
	if strings.Contains(out, "Stretch") || !strings.Contains(out, "Taxes") || !strings.Contains(out, "due 02.01.2030 09:30 UTC") {
		t.Fatalf("owner 6 output = %q", out)
	}

	out, err = execute(t, "items", "list", "-c", cfgPath)
	if err != nil {
		t.Fatalf("items list: %v", err)
	}
	if !strings.Contains(out, "Stretch") || !strings.Contains(out, "every 1h0m0s") || !strings.Contains(out, "Taxes") {
		t.Fatalf("all output = %q", out)
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "version")
	if err != nil || strings.TrimSpace(out) != "habitbot dev" {
		t.Fatalf("version = %q, %v", out, err)
	}
}
