package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"expgrid/config"
	"expgrid/experiment"
)

// openExperimenter loads the configured grid and connects to it. The
// experimenter's own progress logging is muted below warning level; commands
// print their results directly.
func openExperimenter(cmd *cobra.Command) (*experiment.Experimenter, *config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := promptPassword(cfg); err != nil {
		return nil, nil, err
	}
	e, err := experiment.New(cmd.Context(), cfg, experiment.WithLogger(cliLogger()))
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// promptPassword asks for the MySQL password on the terminal when neither
// the credentials file nor the environment supplies one. The answer is
// handed on through the environment override.
func promptPassword(cfg *config.Config) error {
	if cfg.Database.Provider != config.ProviderMySQL {
		return nil
	}
	creds, err := config.LoadCredentials(cfg.Database.CredentialsFile)
	if err != nil || creds.Database.Password != "" {
		// Load problems surface when the experimenter connects.
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", creds.Database.User, creds.Connection.Standard.Server)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	return os.Setenv(config.EnvDBPassword, string(pw))
}
