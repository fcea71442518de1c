package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/nugget/hearth/internal/config"
)

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := run(t.Context(), &buf, &buf, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var info map[string]any
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, buf.String())
	}
	for _, k := range []string{"version", "git_commit", "go_version"} {
		if _, ok := info[k]; !ok {
			t.Errorf("version JSON missing %q", k)
		}
	}

	buf.Reset()
	if err := run(t.Context(), &buf, &buf, []string{"version"}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Hearth ") {
		t.Errorf("text version = %q", buf.String())
	}
}

func TestRunArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"bogus"}, "unknown command: bogus"},
		{"unknown flag", []string{"-x"}, "unknown flag: -x"},
		{"bad output", []string{"-o", "xml", "version"}, "unknown output format"},
		{"ask without text", []string{"ask"}, "usage: hearth ask"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := run(t.Context(), &buf, &buf, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run(%v) error = %v, want %q", tt.args, err, tt.want)
			}
		})
	}
}

func TestRunUsage(t *testing.T) {
	var buf bytes.Buffer
	if err := run(t.Context(), &buf, &buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Usage: hearth") {
		t.Errorf("usage = %q", buf.String())
	}
}

func TestRunInit(t *testing.T) {
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })

	dir := t.TempDir()
	var buf bytes.Buffer
	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}

	cfgPath := filepath.Join(dir, "hearth.yaml")
	info, err := os.Stat(cfgPath)
	if err != nil {
		t.Fatalf("hearth.yaml not created: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("hearth.yaml permissions = %o, want 0600", got)
	}
	if fi, err := os.Stat(filepath.Join(dir, "data")); err != nil || !fi.IsDir() {
		t.Errorf("data directory not created: %v", err)
	}

	// The shipped example must load with no environment set.
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Listen.Port != 3000 || cfg.Lighting.Backend != config.LightingHue {
		t.Errorf("example config = %+v", cfg)
	}

	// A second run leaves the edited file alone.
	if err := os.WriteFile(cfgPath, []byte("listen:\n  port: 4000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := runInit(&buf, dir); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(cfgPath)
	if !strings.Contains(string(data), "4000") {
		t.Errorf("runInit overwrote config: %s", data)
	}
	if !strings.Contains(buf.String(), "exists") {
		t.Errorf("output = %q", buf.String())
	}
}
