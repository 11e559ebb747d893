package deploy

import (
	"io"
	"strconv"

	"github.com/coreos/go-systemd/v22/unit"
)

// GenerateUnitFile produces the complete systemd unit descriptor for the
// mailing server. It calls cfg.ApplyDefaults() to fill in zero-valued
// fields before generating the output. The result is a pure function of
// the config: identical inputs yield byte-identical output, so repeated
// installs rewrite the same document.
func GenerateUnitFile(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", cfg.Description),
		unit.NewUnitOption("Unit", "After", "network.target"),

		unit.NewUnitOption("Service", "Type", "simple"),
		unit.NewUnitOption("Service", "ExecStart", cfg.BinaryPath()),
		unit.NewUnitOption("Service", "WorkingDirectory", cfg.ConfigDir),
		unit.NewUnitOption("Service", "User", cfg.User),
		unit.NewUnitOption("Service", "Group", cfg.Group),
		unit.NewUnitOption("Service", "Restart", "on-failure"),
		unit.NewUnitOption("Service", "RestartSec", strconv.Itoa(cfg.RestartSec)),
		unit.NewUnitOption("Service", "StandardOutput", "append:"+cfg.StdoutLogPath()),
		unit.NewUnitOption("Service", "StandardError", "append:"+cfg.StderrLogPath()),

		unit.NewUnitOption("Install", "WantedBy", "multi-user.target"),
	}

	// Serialize reads from an in-memory buffer; the error is unreachable.
	data, _ := io.ReadAll(unit.Serialize(opts))
	return string(data)
}
