package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/mfadhlan/selia/internal/config"
	"github.com/mfadhlan/selia/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running Selia daemon",
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	lm := daemon.NewLifecycleManager(cfg.DataDir, zerolog.Nop())
	if !lm.IsRunning() {
		return fmt.Errorf("daemon is not running")
	}

	pid, err := lm.GetPID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find daemon process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal daemon: %w", err)
	}

	cmd.Printf("Sent shutdown signal to Selia daemon (PID %d)\n", pid)

	return nil
}
