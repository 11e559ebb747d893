package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Builder produces the release binary by invoking the Go toolchain.
type Builder struct {
	cfg    InstallConfig
	runner CommandRunner
	logger *slog.Logger
}

// NewBuilder creates a Builder with defaults applied.
func NewBuilder(cfg InstallConfig, runner CommandRunner, logger *slog.Logger) *Builder {
	cfg.ApplyDefaults()
	return &Builder{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "deploy"),
	}
}

// Build compiles the release binary into cfg.BuildOutput. Any non-zero
// exit from the toolchain aborts with the toolchain's output in the error;
// nothing outside the build output directory is touched.
func (b *Builder) Build(ctx context.Context) error {
	args := []string{
		"build",
		"-trimpath",
		"-ldflags", "-s -w",
		"-o", b.cfg.BuildOutput,
		"./cmd/" + b.cfg.BinaryName,
	}

	b.logger.Info("building release binary",
		"output", filepath.Join(b.cfg.SourceDir, b.cfg.BuildOutput))

	output, err := b.runner.Run(ctx, b.cfg.SourceDir, "go", args...)
	if err != nil {
		return fmt.Errorf("deploy: go build: %s: %w", strings.TrimSpace(string(output)), err)
	}

	b.logger.Info("build complete", "artifact", b.cfg.BuildOutput)
	return nil
}
