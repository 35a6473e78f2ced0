package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	utilexec "k8s.io/utils/exec"

	"diskinspector/internal/capacity"
	"diskinspector/internal/config"
	"diskinspector/internal/logging"
	"diskinspector/internal/reporting"
	"diskinspector/internal/security"
	"diskinspector/internal/shell"
	"diskinspector/internal/smart"
	"diskinspector/internal/speed"
	"diskinspector/internal/system"
)

const (
	Version = "1.0.0"
	AppName = "Disk Inspector"

	// Exit codes
	EXIT_SUCCESS = 0
	EXIT_ERROR   = 1
)

var (
	verbose    bool
	configPath string
	systemDisk string
	sizeMB     int
	profile    string
)

var rootCmd = &cobra.Command{
	Use:           "diskinspector",
	Short:         AppName + " - interactive disk diagnostics",
	Long:          "Interactive SMART readout, direct-I/O speed tests and counterfeit capacity audits built on lsblk, df, smartctl, dd and f3.",
	Version:       Version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInteractive,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Check the external tools and the detected system disk",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the effective configuration to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigInit,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&systemDisk, "system-disk", "", "System disk to protect (e.g. /dev/sda); detected when empty")
	rootCmd.PersistentFlags().IntVar(&sizeMB, "size", 0, "Speed test size in MB")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Speed test profile (quick/standard/thorough)")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(toolsCmd, configCmd)
}

// loadConfig reads the config file and applies profile and flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if profile != "" {
		if err := config.ApplyProfile(cfg, profile); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("system-disk") {
		cfg.Security.SystemDisk = systemDisk
	}
	if cmd.Flags().Changed("size") {
		cfg.Speed.SizeMB = sizeMB
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupSignalHandling cancels the returned context on SIGINT or SIGTERM.
func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Println("\n\nInterrupt received, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// environment is everything resolved once at startup.
type environment struct {
	cfg       *config.Config
	logger    *logging.Logger
	exec      utilexec.Interface
	tools     *system.Toolchain
	guard     *security.Guard
	escalator *security.Escalator
}

func setup(ctx context.Context, cmd *cobra.Command) (*environment, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg, verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise logging: %w", err)
	}

	exec := utilexec.New()
	tools := system.ResolveTools(ctx, exec, cfg.Tools)
	for _, st := range tools.Statuses() {
		if st.Err != nil {
			logger.Log("WARN", "tool unavailable", "tool", st.Name, "error", st.Err.Error())
		}
	}

	disk := cfg.Security.SystemDisk
	if disk == "" && cfg.Security.DetectSystemDisk {
		detected, err := system.NewCatalog(exec, tools, nil, logger).DetectSystemDisk(ctx)
		if err != nil {
			logger.Log("WARN", "system disk detection failed", "error", err.Error())
		} else {
			disk = detected
		}
	}

	sudo, _ := tools.Path(system.ToolSudo)
	return &environment{
		cfg:       cfg,
		logger:    logger,
		exec:      exec,
		tools:     tools,
		guard:     security.NewGuard(disk, cfg.Security.ProtectedDevices),
		escalator: security.NewEscalator(sudo, cfg.Security.AutoEscalate),
	}, nil
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandling()
	defer cancel()

	env, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.logger.Close()

	if err := env.tools.Require(system.ToolLsblk); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	space := system.NewSpaceProbe(env.exec, env.tools, env.logger)
	sh := shell.New(shell.Deps{
		Catalog:  system.NewCatalog(env.exec, env.tools, env.guard, env.logger),
		Smart:    smart.NewReader(env.exec, env.tools, env.escalator, env.logger),
		Speed:    speed.NewProbe(env.exec, env.tools, env.guard, env.escalator, env.cfg.Speed.TempFile, env.logger),
		Capacity: capacity.NewAuditor(env.exec, env.tools, env.guard, space, env.cfg.Capacity.CleanupPatterns, out, env.logger),
		Guard:    env.guard,
		Reports:  reporting.NewWriter(env.cfg.Reporting, Version),
		Logger:   env.logger,
	}, shell.Options{
		Version: Version,
		SizeMB:  env.cfg.Speed.SizeMB,
		IsRoot:  security.IsRoot(),
		In:      cmd.InOrStdin(),
		Out:     out,
	})

	env.logger.Log("INFO", "session started", "version", Version, "system_disk", env.guard.SystemDisk())
	return sh.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("Stopped by user")
			os.Exit(EXIT_SUCCESS)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(EXIT_ERROR)
	}
	os.Exit(EXIT_SUCCESS)
}
