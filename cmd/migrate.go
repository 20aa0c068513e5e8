package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fastinnovation/fastchat/db"
	"github.com/fastinnovation/fastchat/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	Long: `Applies all pending schema migrations against the configured database.
The serve command also runs migrations on startup; this command exists for
deployment pipelines that migrate before rolling out new instances.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(initLogger())

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.UseCloudSQL {
			return fmt.Errorf("migrate command supports direct connections only; " +
				"managed connector deployments migrate during serve startup")
		}
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
