package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/database"
)

// newPairCmd issues a pairing code from the command line, for setups where
// no controller is available to call POST /api/v1/auth/pair.
func newPairCmd(load configLoader) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Create a one-time pairing code for a new device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.PairingCodeTTL()
			}

			db, err := database.OpenMigrated(cmd.Context(), database.ConfigFrom(cfg.Database))
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // CLI exit path

			code, err := auth.NewPairingRepository(db.DB).Create(cmd.Context(), ttl)
			if err != nil {
				return fmt.Errorf("creating pairing code: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "pairing code: %s (expires %s)\n",
				code.Code, code.ExpiresAt.Local().Format(time.RFC1123))
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "code validity (default pairing.code_ttl)")
	return cmd
}
