package deploy

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// dbusController implements Controller over systemd's D-Bus API.
type dbusController struct {
	conn *dbus.Conn
}

// NewController connects to systemd over D-Bus. When the D-Bus socket is
// unavailable (containers, minimal chroots) it falls back to shelling out
// to systemctl.
func NewController(ctx context.Context) (Controller, error) {
	conn, err := dbus.NewSystemdConnectionContext(ctx)
	if err != nil {
		if systemctlAvailable() {
			return &systemctlController{}, nil
		}
		return nil, fmt.Errorf("deploy: connect to systemd: %w", err)
	}
	return &dbusController{conn: conn}, nil
}

func (c *dbusController) DaemonReload(ctx context.Context) error {
	if err := c.conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("deploy: daemon-reload: %w", err)
	}
	return nil
}

func (c *dbusController) Enable(ctx context.Context, unit string) error {
	if _, _, err := c.conn.EnableUnitFilesContext(ctx, []string{unit}, false, true); err != nil {
		return fmt.Errorf("deploy: enable %s: %w", unit, err)
	}
	return nil
}

func (c *dbusController) Disable(ctx context.Context, unit string) error {
	if _, err := c.conn.DisableUnitFilesContext(ctx, []string{unit}, false); err != nil {
		return fmt.Errorf("deploy: disable %s: %w", unit, err)
	}
	return nil
}

func (c *dbusController) Start(ctx context.Context, unit string) error {
	return c.runJob(ctx, unit, "start", c.conn.StartUnitContext)
}

func (c *dbusController) Stop(ctx context.Context, unit string) error {
	return c.runJob(ctx, unit, "stop", c.conn.StopUnitContext)
}

func (c *dbusController) IsActive(ctx context.Context, unit string) bool {
	statuses, err := c.conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil || len(statuses) == 0 {
		return false
	}
	return statuses[0].ActiveState == "active"
}

func (c *dbusController) Close() error {
	c.conn.Close()
	return nil
}

type jobFunc func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

// runJob enqueues a systemd job and waits for its result. Anything other
// than "done" is a failure.
func (c *dbusController) runJob(ctx context.Context, unit, verb string, job jobFunc) error {
	ch := make(chan string, 1)
	if _, err := job(ctx, unit, "replace", ch); err != nil {
		return fmt.Errorf("deploy: %s %s: %w", verb, unit, err)
	}
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("deploy: %s %s: job result %q", verb, unit, result)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("deploy: %s %s: %w", verb, unit, ctx.Err())
	}
}
