package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/krshsl/nora/repository"
	"github.com/krshsl/nora/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

const app = "nora"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "nora runs AI mock interviews and turns the transcripts into structured feedback",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogger()
		},
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "an env file with settings (default is .env in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", true, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setupLogger() {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if viper.GetBool("debug") {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if viper.GetBool("json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func loadConfig() *services.Config {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	return services.LoadConfig(v)
}

// openRepository connects to the configured database and migrates the schema
func openRepository(cfg *services.Config) (*gorm.DB, *repository.GORMRepository, error) {
	db, err := services.OpenDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	repo := repository.NewGORMRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, repo, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}
