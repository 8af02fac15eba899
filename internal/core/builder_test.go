package core

import (
	"testing"

	"labdash/config"
	"labdash/util"
)

// TestBuild_Serve verifies that Build produces a ServeMode by default.
func TestBuild_Serve(t *testing.T) {
	cfg := config.Default()
	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.(*ServeMode); !ok {
		t.Errorf("expected *ServeMode, got %T", mode)
	}
}

// TestBuild_Attach verifies Build produces an AttachMode carrying the
// parsed target.
func TestBuild_Attach(t *testing.T) {
	cfg := config.Default()
	cfg.Attach = true
	cfg.AttachURL = "ws://dashboard.lan:8000/ws/ssh"
	cfg.TargetUser, cfg.TargetHost, cfg.TargetPort = "pi", "nas.lan", 2222

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	am, ok := mode.(*AttachMode)
	if !ok {
		t.Fatalf("expected *AttachMode, got %T", mode)
	}
	if am.URL != cfg.AttachURL || am.Host != "nas.lan" || am.Port != 2222 || am.User != "pi" {
		t.Errorf("unexpected attach mode %+v", am)
	}
}

// TestBuild_AttachWithoutTarget verifies the builder rejects an attach
// configuration that skipped validation.
func TestBuild_AttachWithoutTarget(t *testing.T) {
	cfg := config.Default()
	cfg.Attach = true
	cfg.AttachURL = "ws://x/ws/ssh"

	if _, err := Build(cfg, util.NewLogger(0)); err == nil {
		t.Fatal("expected error")
	}
}
