package deploy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInstallConfig_ApplyDefaults(t *testing.T) {
	cfg := InstallConfig{}
	cfg.ApplyDefaults()

	if cfg.BinaryName != "mailing_server" {
		t.Errorf("BinaryName = %q, want %q", cfg.BinaryName, "mailing_server")
	}
	if got := cfg.BinaryPath(); got != "/usr/local/bin/mailing_server" {
		t.Errorf("BinaryPath() = %q, want %q", got, "/usr/local/bin/mailing_server")
	}
	if cfg.ConfigDir != "/etc/mailing_server" {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, "/etc/mailing_server")
	}
	if cfg.LogDir != "/var/log/mailing_server" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/var/log/mailing_server")
	}
	if got := cfg.UnitFilePath(); got != "/etc/systemd/system/mailing_server.service" {
		t.Errorf("UnitFilePath() = %q, want %q", got, "/etc/systemd/system/mailing_server.service")
	}
	if got := cfg.StdoutLogPath(); got != "/var/log/mailing_server/mailing_server.log" {
		t.Errorf("StdoutLogPath() = %q, want %q", got, "/var/log/mailing_server/mailing_server.log")
	}
	if got := cfg.StderrLogPath(); got != "/var/log/mailing_server/mailing_server.err" {
		t.Errorf("StderrLogPath() = %q, want %q", got, "/var/log/mailing_server/mailing_server.err")
	}
	if cfg.User != "root" || cfg.Group != "root" {
		t.Errorf("User/Group = %q/%q, want root/root", cfg.User, cfg.Group)
	}
	if cfg.RestartSec != 10 {
		t.Errorf("RestartSec = %d, want 10", cfg.RestartSec)
	}
	if cfg.BuildOutput != filepath.Join("bin", "mailing_server") {
		t.Errorf("BuildOutput = %q, want %q", cfg.BuildOutput, "bin/mailing_server")
	}
}

func TestInstallConfig_DerivedPathsFollowBinaryName(t *testing.T) {
	cfg := InstallConfig{BinaryName: "mailer"}
	cfg.ApplyDefaults()

	if cfg.ConfigDir != "/etc/mailer" {
		t.Errorf("ConfigDir = %q, want %q", cfg.ConfigDir, "/etc/mailer")
	}
	if cfg.LogDir != "/var/log/mailer" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/var/log/mailer")
	}
	if got := cfg.UnitName(); got != "mailer.service" {
		t.Errorf("UnitName() = %q, want %q", got, "mailer.service")
	}
}

func TestInstallConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*InstallConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*InstallConfig) {}, wantErr: false},
		{name: "empty binary name", mutate: func(c *InstallConfig) { c.BinaryName = "" }, wantErr: true},
		{name: "slash in binary name", mutate: func(c *InstallConfig) { c.BinaryName = "a/b" }, wantErr: true},
		{name: "negative restart sec", mutate: func(c *InstallConfig) { c.RestartSec = -1 }, wantErr: true},
		{name: "relative config dir", mutate: func(c *InstallConfig) { c.ConfigDir = "etc/mail" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := InstallConfig{}
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	manifest := "binary_name: mailer\nuser: mail\ngroup: mail\nrestart_sec: 5\n"
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseManifest(path)
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if cfg.BinaryName != "mailer" {
		t.Errorf("BinaryName = %q, want %q", cfg.BinaryName, "mailer")
	}
	if cfg.User != "mail" || cfg.Group != "mail" {
		t.Errorf("User/Group = %q/%q, want mail/mail", cfg.User, cfg.Group)
	}
	if cfg.RestartSec != 5 {
		t.Errorf("RestartSec = %d, want 5", cfg.RestartSec)
	}
	// Defaults still applied for the rest.
	if cfg.BinDir != "/usr/local/bin" {
		t.Errorf("BinDir = %q, want %q", cfg.BinDir, "/usr/local/bin")
	}
}

func TestParseManifest_Missing(t *testing.T) {
	if _, err := ParseManifest(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("ParseManifest() expected error for missing file")
	}
}
