package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsCommand_Help(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"logs", "--help"})

	_ = rootCmd.Execute()

	output := buf.String()
	if !strings.Contains(output, "--follow") {
		t.Errorf("help should mention '--follow' flag, got: %s", output)
	}
}

func TestDeployCommand_Help(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"deploy", "--help"})

	_ = rootCmd.Execute()

	output := buf.String()
	if !strings.Contains(output, "--manifest") {
		t.Errorf("help should mention '--manifest' flag, got: %s", output)
	}
}

func TestInstallConfig_Defaults(t *testing.T) {
	manifestPath = ""

	cfg, err := installConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BinaryName != "mailing_server" {
		t.Errorf("BinaryName = %q, want %q", cfg.BinaryName, "mailing_server")
	}
	if cfg.BinDir != "/usr/local/bin" {
		t.Errorf("BinDir = %q, want %q", cfg.BinDir, "/usr/local/bin")
	}
}

func TestInstallConfig_Manifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	manifest := "binary_name: notifier\nrestart_sec: 5\n"
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}

	manifestPath = path
	t.Cleanup(func() { manifestPath = "" })

	cfg, err := installConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BinaryName != "notifier" {
		t.Errorf("BinaryName = %q, want %q", cfg.BinaryName, "notifier")
	}
	if cfg.RestartSec != 5 {
		t.Errorf("RestartSec = %d, want 5", cfg.RestartSec)
	}
	if cfg.ConfigDir != "/etc/notifier" {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, "/etc/notifier")
	}
}

func TestInstallConfig_MissingManifest(t *testing.T) {
	manifestPath = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { manifestPath = "" })

	if _, err := installConfig(); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}
