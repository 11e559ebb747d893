package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Installer handles installing, registering, and removing the mailing
// server as a systemd service. Each step is a one-shot filesystem or
// init-system operation; failures abort without rollback, and repeating a
// completed step converges to the same state.
type Installer struct {
	cfg    InstallConfig
	ctrl   Controller
	root   RootChecker
	logger *slog.Logger
}

// NewInstaller creates a new Installer with defaults applied.
func NewInstaller(cfg InstallConfig, ctrl Controller, root RootChecker, logger *slog.Logger) *Installer {
	cfg.ApplyDefaults()
	return &Installer{
		cfg:    cfg,
		ctrl:   ctrl,
		root:   root,
		logger: logger.With("component", "deploy"),
	}
}

// Config returns the effective install configuration.
func (ins *Installer) Config() InstallConfig {
	return ins.cfg
}

// InstallBinary copies the binary into the bin directory, preserving
// executable permissions. The build artifact is preferred; when absent,
// the running executable is used so a downloaded binary can self-install.
func (ins *Installer) InstallBinary() error {
	if !ins.root.IsRoot() {
		return errors.New("deploy: install requires root privileges")
	}

	srcPath, err := ins.resolveArtifact()
	if err != nil {
		return err
	}

	dstPath := ins.cfg.BinaryPath()
	if srcPath == dstPath {
		ins.logger.Info("binary already at install path, skipping copy", "path", dstPath)
		return nil
	}

	if err := os.MkdirAll(ins.cfg.BinDir, 0o755); err != nil {
		return fmt.Errorf("deploy: create bin directory: %w", err)
	}
	if err := copyFile(srcPath, dstPath, 0o755); err != nil {
		return fmt.Errorf("deploy: install binary: %w", err)
	}

	ins.logger.Info("binary installed", "src", srcPath, "dst", dstPath)
	return nil
}

// InstallConfigs creates the config directory and copies the configuration
// documents into it verbatim. A document missing from the source tree is
// generated with commented defaults unless the destination already has
// one, in which case the existing document is preserved.
func (ins *Installer) InstallConfigs() error {
	if !ins.root.IsRoot() {
		return errors.New("deploy: install requires root privileges")
	}

	if err := os.MkdirAll(ins.cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("deploy: create config directory: %w", err)
	}
	ins.logger.Info("config directory ready", "path", ins.cfg.ConfigDir)

	for _, doc := range ConfigDocuments {
		src := filepath.Join(ins.cfg.SourceDir, doc)
		dst := filepath.Join(ins.cfg.ConfigDir, doc)

		if _, err := os.Stat(src); err == nil {
			if err := copyFile(src, dst, 0o644); err != nil {
				return fmt.Errorf("deploy: copy %s: %w", doc, err)
			}
			ins.logger.Info("config document installed", "doc", doc, "dst", dst)
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("deploy: stat %s: %w", src, err)
		}

		if _, err := os.Stat(dst); err == nil {
			ins.logger.Info("existing config document preserved", "doc", doc)
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("deploy: stat %s: %w", dst, err)
		}

		if err := os.WriteFile(dst, []byte(GenerateDefaultDocument(doc)), 0o644); err != nil {
			return fmt.Errorf("deploy: write default %s: %w", doc, err)
		}
		ins.logger.Info("default config document written", "doc", doc, "dst", dst)
	}

	return nil
}

// EnsureLogDir creates the log directory. Logs themselves are written by
// the running service through the unit's output redirection.
func (ins *Installer) EnsureLogDir() error {
	if !ins.root.IsRoot() {
		return errors.New("deploy: install requires root privileges")
	}
	if err := os.MkdirAll(ins.cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("deploy: create log directory: %w", err)
	}
	ins.logger.Info("log directory ready", "path", ins.cfg.LogDir)
	return nil
}

// InstallService writes the unit descriptor, reloads systemd, and enables
// the unit for multi-user.target. It refuses to run before the binary is
// installed so the descriptor never references a missing ExecStart.
func (ins *Installer) InstallService(ctx context.Context) error {
	if !ins.root.IsRoot() {
		return errors.New("deploy: service registration requires root privileges")
	}
	if _, err := os.Stat(ins.cfg.BinaryPath()); err != nil {
		return fmt.Errorf("deploy: binary not installed at %s: %w", ins.cfg.BinaryPath(), err)
	}

	if err := os.MkdirAll(ins.cfg.UnitDir, 0o755); err != nil {
		return fmt.Errorf("deploy: create unit directory: %w", err)
	}

	content := GenerateUnitFile(ins.cfg)
	if err := os.WriteFile(ins.cfg.UnitFilePath(), []byte(content), 0o644); err != nil {
		return fmt.Errorf("deploy: write unit file: %w", err)
	}
	ins.logger.Info("unit file written", "path", ins.cfg.UnitFilePath())

	if err := ins.ctrl.DaemonReload(ctx); err != nil {
		return err
	}
	if err := ins.ctrl.Enable(ctx, ins.cfg.UnitName()); err != nil {
		return err
	}
	ins.logger.Info("service enabled", "unit", ins.cfg.UnitName())

	return nil
}

// Start starts the service through the init system.
func (ins *Installer) Start(ctx context.Context) error {
	if err := ins.ctrl.Start(ctx, ins.cfg.UnitName()); err != nil {
		return err
	}
	ins.logger.Info("service started", "unit", ins.cfg.UnitName())
	return nil
}

// Clean reverses the installation: stop and disable the unit (tolerating
// failures on systems where it was never registered), reload systemd, then
// remove the unit file, binary, config directory, and log directory.
// Disable runs before any deletion so systemd never references a removed
// unit file.
func (ins *Installer) Clean(ctx context.Context) error {
	if !ins.root.IsRoot() {
		return errors.New("deploy: clean requires root privileges")
	}

	if err := ins.ctrl.Stop(ctx, ins.cfg.UnitName()); err != nil {
		ins.logger.Info("stop service", "error", err)
	}
	if err := ins.ctrl.Disable(ctx, ins.cfg.UnitName()); err != nil {
		ins.logger.Info("disable service", "error", err)
	}

	if err := os.Remove(ins.cfg.UnitFilePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deploy: remove unit file: %w", err)
	}
	ins.logger.Info("unit file removed", "path", ins.cfg.UnitFilePath())

	if err := ins.ctrl.DaemonReload(ctx); err != nil {
		ins.logger.Info("daemon-reload", "error", err)
	}

	if err := os.Remove(ins.cfg.BinaryPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deploy: remove binary: %w", err)
	}
	ins.logger.Info("binary removed", "path", ins.cfg.BinaryPath())

	for _, dir := range []string{ins.cfg.ConfigDir, ins.cfg.LogDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("deploy: remove directory %s: %w", dir, err)
		}
		ins.logger.Info("directory removed", "path", dir)
	}

	return nil
}

// Deploy runs the composite default: build, install, config, service,
// logs. Any failing step aborts the rest.
func (ins *Installer) Deploy(ctx context.Context, builder *Builder) error {
	if err := builder.Build(ctx); err != nil {
		return err
	}
	if err := ins.InstallBinary(); err != nil {
		return err
	}
	if err := ins.InstallConfigs(); err != nil {
		return err
	}
	if err := ins.InstallService(ctx); err != nil {
		return err
	}
	return ins.EnsureLogDir()
}

// resolveArtifact returns the path of the binary to install: the build
// artifact when present, otherwise the running executable.
func (ins *Installer) resolveArtifact() (string, error) {
	artifact := filepath.Join(ins.cfg.SourceDir, ins.cfg.BuildOutput)
	if _, err := os.Stat(artifact); err == nil {
		return artifact, nil
	}

	srcPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("deploy: no build artifact and cannot resolve executable: %w", err)
	}
	srcPath, err = filepath.EvalSymlinks(srcPath)
	if err != nil {
		return "", fmt.Errorf("deploy: resolve symlinks: %w", err)
	}
	return srcPath, nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
