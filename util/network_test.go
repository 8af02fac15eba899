package util

import (
	"net"
	"testing"
	"time"
)

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"1.2.3.4", 22, "1.2.3.4:22"},
		{"::1", 2222, "[::1]:2222"},
		{"nas.lan", 22, "nas.lan:22"},
	}
	for _, tt := range tests {
		if got := FormatAddr(tt.host, tt.port); got != tt.want {
			t.Errorf("FormatAddr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if !ValidPort(port) {
		t.Fatalf("port %d out of range", port)
	}

	// Nothing should be listening there any more.
	conn, err := net.DialTimeout("tcp", FormatAddr("127.0.0.1", port), time.Second)
	if err == nil {
		conn.Close()
		t.Errorf("expected connection refused on freed port %d", port)
	}
}

func TestValidPort(t *testing.T) {
	for _, p := range []int{1, 22, 65535} {
		if !ValidPort(p) {
			t.Errorf("ValidPort(%d) = false", p)
		}
	}
	for _, p := range []int{0, -1, 65536} {
		if ValidPort(p) {
			t.Errorf("ValidPort(%d) = true", p)
		}
	}
}
