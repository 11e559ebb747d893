package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/artisan-hosting/mailing-server/internal/deploy"
)

var logsFollow bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile the release binary",
	RunE:  runBuild,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Copy the binary to the install path",
	RunE:  runInstall,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Install the configuration documents",
	RunE:  runConfig,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Create the log directory",
	Long:  "Create the log directory the service unit redirects stdout/stderr into.\nWith --follow, stream the unit's journal instead.",
	RunE:  runLogs,
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Write and register the systemd unit",
	RunE:  runService,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the service through systemd",
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the service is running",
	RunE:  runStatus,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the service, binary, and directories",
	RunE:  runClean,
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build, install, configure, and register in one pass",
	RunE:  runDeploy,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream the unit's journal")

	rootCmd.AddCommand(buildCmd, installCmd, configCmd, logsCmd,
		serviceCmd, runCmd, statusCmd, cleanCmd, deployCmd)
}

// installConfig resolves the deploy configuration: the manifest when
// given, defaults otherwise.
func installConfig() (deploy.InstallConfig, error) {
	if manifestPath != "" {
		return deploy.ParseManifest(manifestPath)
	}
	cfg := deploy.InstallConfig{}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

func deployLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	builder := deploy.NewBuilder(cfg, deploy.NewCommandRunner(), deployLogger())
	if err := builder.Build(cmd.Context()); err != nil {
		return fmt.Errorf("mailing_server build: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "build complete")
	return nil
}

func runInstall(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	// No controller: installing the binary never touches systemd.
	ins := deploy.NewInstaller(cfg, nil, deploy.NewRootChecker(), deployLogger())
	if err := ins.InstallBinary(); err != nil {
		return fmt.Errorf("mailing_server install: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "binary installed")
	return nil
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	ins := deploy.NewInstaller(cfg, nil, deploy.NewRootChecker(), deployLogger())
	if err := ins.InstallConfigs(); err != nil {
		return fmt.Errorf("mailing_server config: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "configuration installed")
	return nil
}

func runLogs(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	if logsFollow {
		journalctl, err := exec.LookPath("journalctl")
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "journalctl not found; logs are appended under "+cfg.LogDir)
			return nil
		}
		c := exec.CommandContext(cmd.Context(), journalctl, "-u", cfg.UnitName(), "--no-pager", "-f")
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("mailing_server logs: %w", err)
		}
		return nil
	}

	ins := deploy.NewInstaller(cfg, nil, deploy.NewRootChecker(), deployLogger())
	if err := ins.EnsureLogDir(); err != nil {
		return fmt.Errorf("mailing_server logs: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "log directory ready")
	return nil
}

func runService(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	ctrl, err := deploy.NewController(cmd.Context())
	if err != nil {
		return fmt.Errorf("mailing_server service: %w", err)
	}
	defer ctrl.Close()

	ins := deploy.NewInstaller(cfg, ctrl, deploy.NewRootChecker(), deployLogger())
	if err := ins.InstallService(cmd.Context()); err != nil {
		return fmt.Errorf("mailing_server service: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "service registered")
	return nil
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	ctrl, err := deploy.NewController(cmd.Context())
	if err != nil {
		return fmt.Errorf("mailing_server run: %w", err)
	}
	defer ctrl.Close()

	ins := deploy.NewInstaller(cfg, ctrl, deploy.NewRootChecker(), deployLogger())
	if err := ins.Start(cmd.Context()); err != nil {
		return fmt.Errorf("mailing_server run: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "service started")
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	ctrl, err := deploy.NewController(cmd.Context())
	if err != nil {
		return fmt.Errorf("mailing_server status: %w", err)
	}
	defer ctrl.Close()

	if ctrl.IsActive(cmd.Context(), cfg.UnitName()) {
		fmt.Fprintln(cmd.OutOrStdout(), "active")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "inactive")
	}
	return nil
}

func runClean(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	ctrl, err := deploy.NewController(cmd.Context())
	if err != nil {
		return fmt.Errorf("mailing_server clean: %w", err)
	}
	defer ctrl.Close()

	ins := deploy.NewInstaller(cfg, ctrl, deploy.NewRootChecker(), deployLogger())
	if err := ins.Clean(cmd.Context()); err != nil {
		return fmt.Errorf("mailing_server clean: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "clean complete")
	return nil
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	cfg, err := installConfig()
	if err != nil {
		return err
	}

	ctrl, err := deploy.NewController(cmd.Context())
	if err != nil {
		return fmt.Errorf("mailing_server deploy: %w", err)
	}
	defer ctrl.Close()

	ins := deploy.NewInstaller(cfg, ctrl, deploy.NewRootChecker(), deployLogger())
	builder := deploy.NewBuilder(cfg, deploy.NewCommandRunner(), deployLogger())
	if err := ins.Deploy(cmd.Context(), builder); err != nil {
		return fmt.Errorf("mailing_server deploy: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "deploy complete")
	return nil
}
