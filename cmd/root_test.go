package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	ncerr "labdash/internal/errors"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out := capture(t)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "labdash ") {
		t.Errorf("version output %q", out.String())
	}
}

// TestExecute_Help verifies --help prints usage for both modes.
func TestExecute_Help(t *testing.T) {
	out := capture(t)
	if err := Execute(context.Background(), []string{"--help"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"--listen", "--terminate-grace", "attach --url"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly.
func TestExecute_DryRun(t *testing.T) {
	out := capture(t)
	err := Execute(context.Background(), []string{
		"serve", "-l", ":9000", "--size", "100x40", "-o", "ServerAliveInterval=15", "--dry-run",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{":9000/ws/ssh", "100x40", "ServerAliveInterval=15"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dry-run output missing %q:\n%s", want, out.String())
		}
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	capture(t)
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"bad size", []string{"--size", "wide", "--dry-run"}, "size"},
		{"zero grace", []string{"--terminate-grace", "0s", "--dry-run"}, "terminate-grace"},
		{"small chunk", []string{"--read-chunk", "16", "--dry-run"}, "read-chunk"},
		{"relative path", []string{"--ws-path", "ws", "--dry-run"}, "ws-path"},
		{"attach without url", []string{"attach", "pi@nas.lan", "--dry-run"}, "url"},
		{"attach without target", []string{"attach", "--url", "ws://x/ws/ssh", "--dry-run"}, "target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Execute(context.Background(), tt.args)
			var ce *ncerr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

// TestExecute_AttachDryRun verifies the positional target is parsed.
func TestExecute_AttachDryRun(t *testing.T) {
	out := capture(t)
	err := Execute(context.Background(), []string{
		"attach", "--url", "ws://nas.lan:8000/ws/ssh", "pi@raspberrypi.lan:2222", "--dry-run",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "pi@raspberrypi.lan:2222") {
		t.Errorf("output %q", out.String())
	}
}

// TestExecute_EnvPrecedence verifies flags override LABDASH_* values.
func TestExecute_EnvPrecedence(t *testing.T) {
	t.Setenv("LABDASH_LISTEN", ":7000")
	t.Setenv("LABDASH_TERM", "vt100")

	out := capture(t)
	if err := Execute(context.Background(), []string{"-l", ":7100", "--dry-run"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), ":7100/ws/ssh") {
		t.Errorf("flag should win over env:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "vt100") {
		t.Errorf("env should win over defaults:\n%s", out.String())
	}
}

// TestExecute_InvalidArgs verifies unknown flags and stray positionals
// produce errors.
func TestExecute_InvalidArgs(t *testing.T) {
	capture(t)
	for _, args := range [][]string{
		{"--nonexistent-flag"},
		{"nas.lan"},
		{"attach", "--url", "ws://x/ws/ssh", "a", "b"},
		{"attach", "--url", "ws://x/ws/ssh", "pi@host:notaport"},
	} {
		if err := Execute(context.Background(), args); err == nil {
			t.Errorf("expected error for %q", args)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in         string
		cols, rows int
		wantErr    bool
	}{
		{"120x30", 120, 30, false},
		{"80X24", 80, 24, false},
		{"x30", 0, 0, true},
		{"120", 0, 0, true},
		{"-1x5", 0, 0, true},
	}
	for _, tt := range tests {
		cols, rows, err := parseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSize(%q) err = %v", tt.in, err)
			continue
		}
		if cols != tt.cols || rows != tt.rows {
			t.Errorf("parseSize(%q) = %dx%d", tt.in, cols, rows)
		}
	}
}
