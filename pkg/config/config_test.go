package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestSizeBytesUnmarshal(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"4KiB", 4096},
		{"1MiB", 1 << 20},
		{"10", 10},
		{"", 0},
	}
	for _, c := range cases {
		var out struct {
			V SizeBytes `yaml:"v"`
		}
		if err := yaml.Unmarshal([]byte("v: "+c.raw), &out); err != nil {
			t.Fatalf("unmarshal %q: %v", c.raw, err)
		}
		if out.V.Int64() != c.want {
			t.Fatalf("size %q parsed to %d, want %d", c.raw, out.V.Int64(), c.want)
		}
	}

	var s SizeBytes
	if err := s.UnmarshalYAML(&yaml.Node{Value: "not-a-size"}); err == nil {
		t.Fatalf("expected error for invalid size")
	}
}

func TestDurationUnmarshal(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"1500ms", 1500 * time.Millisecond},
		{"2m", 2 * time.Minute},
		{"3", 3 * time.Second},
		{"", 0},
	}
	for _, c := range cases {
		var d Duration
		if err := d.UnmarshalYAML(&yaml.Node{Value: c.raw}); err != nil {
			t.Fatalf("unmarshal %q: %v", c.raw, err)
		}
		if d.Duration() != c.want {
			t.Fatalf("duration %q parsed to %v, want %v", c.raw, d.Duration(), c.want)
		}
	}

	var d Duration
	if err := d.UnmarshalYAML(&yaml.Node{Value: "soon"}); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestServerConfigShutdownTimeout(t *testing.T) {
	var cfg Config
	doc := "server:\n  port: 9090\n  shutdown_timeout: 250ms\nattachments:\n  max_bytes: 8KiB\n"
	if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if got := cfg.Server.ShutdownTimeout.Duration(); got != 250*time.Millisecond {
		t.Fatalf("shutdown timeout = %v, want 250ms", got)
	}
	if got := cfg.Attachments.MaxBytes.Int64(); got != 8192 {
		t.Fatalf("max bytes = %d, want 8192", got)
	}
}
