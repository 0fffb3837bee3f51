package cmd

import (
	"log/slog"

	"github.com/krshsl/nora/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, feedback workers and interview sweeper",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig()

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		if cfg.Database.Seed {
			if err := services.NewDatabaseSeeder(repo).SeedDatabase(cmd.Context()); err != nil {
				slog.Error("Failed to seed database", "error", err)
			}
		}

		gateway, err := services.NewGeminiGateway(cmd.Context(), cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel, slog.Default())
		if err != nil {
			return err
		}

		server := services.NewServer(cfg, db, gateway, slog.Default())
		if err := server.InitializeServices(); err != nil {
			return err
		}
		return server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("port", "p", "", "port to listen on (overrides SERVER_PORT)")
	serveCmd.Flags().Bool("seed", false, "seed the demo user and sample interview on startup")

	bindFlag("server.port", serveCmd, "port")
	bindFlag("database.seed", serveCmd, "seed")
}

// bindFlag binds a command flag to a config key
func bindFlag(key string, cmd *cobra.Command, name string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		slog.Error("Failed to bind flag", "flag", name, "error", err)
	}
}
