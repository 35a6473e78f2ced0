package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"diskinspector/internal/config"
	"diskinspector/internal/system"
)

func runTools(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandling()
	defer cancel()

	env, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.logger.Close()

	printToolStatuses(cmd.OutOrStdout(), env.tools.Statuses())

	disk := env.guard.SystemDisk()
	if disk == "" {
		disk = "unknown (speed and capacity tests disabled)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nSystem disk: %s\n", disk)

	return env.tools.Require(system.ToolLsblk)
}

func printToolStatuses(w io.Writer, statuses []system.ToolStatus) {
	for _, st := range statuses {
		if st.Err != nil {
			fmt.Fprintf(w, "%-9s MISSING  %v\n", st.Name, st.Err)
			continue
		}
		line := fmt.Sprintf("%-9s OK       %s", st.Name, st.Path)
		if st.Version != "" {
			line += " (" + st.Version + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Save(cfg, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", args[0])
	return nil
}
