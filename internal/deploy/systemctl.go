package deploy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// systemctlController implements Controller by invoking the systemctl
// binary. It is the fallback used when the systemd D-Bus socket cannot be
// reached.
type systemctlController struct{}

func systemctlAvailable() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

func (c *systemctlController) DaemonReload(ctx context.Context) error {
	return c.run(ctx, "daemon-reload")
}

func (c *systemctlController) Enable(ctx context.Context, unit string) error {
	return c.run(ctx, "enable", unit)
}

func (c *systemctlController) Disable(ctx context.Context, unit string) error {
	return c.run(ctx, "disable", unit)
}

func (c *systemctlController) Start(ctx context.Context, unit string) error {
	return c.run(ctx, "start", unit)
}

func (c *systemctlController) Stop(ctx context.Context, unit string) error {
	return c.run(ctx, "stop", unit)
}

func (c *systemctlController) IsActive(ctx context.Context, unit string) bool {
	err := exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", unit).Run()
	return err == nil
}

func (c *systemctlController) Close() error { return nil }

func (c *systemctlController) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("deploy: systemctl %s: %s: %w", args[0], strings.TrimSpace(string(output)), err)
	}
	return nil
}

// realRootChecker implements RootChecker using os.Getuid.
type realRootChecker struct{}

// NewRootChecker returns a RootChecker that checks the real process UID.
func NewRootChecker() RootChecker {
	return &realRootChecker{}
}

func (c *realRootChecker) IsRoot() bool {
	return os.Getuid() == 0
}

// realCommandRunner implements CommandRunner using os/exec.
type realCommandRunner struct{}

// NewCommandRunner returns a CommandRunner that executes real commands.
func NewCommandRunner() CommandRunner {
	return &realCommandRunner{}
}

func (r *realCommandRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
