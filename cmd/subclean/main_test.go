package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	cfgPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf("[paths]\nwork_dir = %q\noutput_dir = %q\nlog_dir = %q\n",
		filepath.Join(base, "work"),
		filepath.Join(base, "output"),
		filepath.Join(base, "logs"))
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "subclean") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output missing target path: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestTasksListEmpty(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "--config", cfgPath, "tasks", "list")
	if err != nil {
		t.Fatalf("tasks list: %v", err)
	}
	if !strings.Contains(out, "no tasks found") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTasksListRejectsBadStatus(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCommand(t, "--config", cfgPath, "tasks", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected invalid status filter to fail")
	}
}

func TestTasksClearRequiresSelector(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCommand(t, "--config", cfgPath, "tasks", "clear")
	if err == nil || !strings.Contains(err.Error(), "--completed") {
		t.Fatalf("expected selector error, got %v", err)
	}
}

func TestTasksShowUnknown(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCommand(t, "--config", cfgPath, "tasks", "show", "no-such-id")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
