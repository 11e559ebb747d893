package deploy

import "context"

// Controller abstracts init-system service management for testability.
// Implementations must be idempotent where systemd itself is: enabling an
// enabled unit or reloading twice is not an error.
type Controller interface {
	// DaemonReload reloads systemd's unit configuration.
	DaemonReload(ctx context.Context) error

	// Enable enables the named unit for boot.
	Enable(ctx context.Context, unit string) error

	// Disable disables the named unit.
	Disable(ctx context.Context, unit string) error

	// Start starts the named unit and waits for the job to finish.
	Start(ctx context.Context, unit string) error

	// Stop stops the named unit. Stopping a unit that is not running
	// returns nil.
	Stop(ctx context.Context, unit string) error

	// IsActive reports whether the named unit is currently running.
	IsActive(ctx context.Context, unit string) bool

	// Close releases any connection held by the controller.
	Close() error
}

// RootChecker abstracts privilege checking for testability.
type RootChecker interface {
	// IsRoot returns true if the current process has root privileges.
	IsRoot() bool
}

// CommandRunner abstracts external command execution for testability.
type CommandRunner interface {
	// Run executes name with args in dir and returns the combined output.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}
