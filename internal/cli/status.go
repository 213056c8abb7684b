package cli

import (
	"fmt"

	"github.com/mfadhlan/selia/internal/config"
	"github.com/mfadhlan/selia/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the Selia daemon is running",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	lm := daemon.NewLifecycleManager(cfg.DataDir, zerolog.Nop())
	if !lm.IsRunning() {
		cmd.Println("Selia daemon is not running")
		return nil
	}

	pid, err := lm.GetPID()
	if err != nil {
		return err
	}
	cmd.Printf("Selia daemon is running (PID %d)\n", pid)

	return nil
}
