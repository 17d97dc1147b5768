package cmd

import (
	"fmt"

	"github.com/BradenHooton/tradeguard/internal/background"
	"github.com/BradenHooton/tradeguard/internal/repositories"
	"github.com/BradenHooton/tradeguard/internal/services"
	pkglogger "github.com/BradenHooton/tradeguard/pkg/logger"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session maintenance",
}

var sessionsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions and login attempts past retention",
	Long: `Runs one cleanup pass, the same pass the API runs on its sweep interval.
Useful when the API is down or the interval is long.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger()

		backend, err := repositories.OpenBackend(cmd.Context(), cfg, false, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		// Sweeping never touches ciphertext, so no cipher is needed
		store := services.NewSecureStoreService(backend.Sessions, backend.UserData, nil,
			services.SecureStoreConfig{SessionDuration: cfg.Session.Duration}, logger, pkglogger.NewAuditLogger(logger))

		manager := background.NewCleanupManager(store, backend.LoginAttempts, nil, logger, cfg.Session.SweepInterval)
		if !manager.RunOnce(cmd.Context()) {
			return fmt.Errorf("a sweep is already running")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sweep complete")
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsSweepCmd)
	rootCmd.AddCommand(sessionsCmd)
}
