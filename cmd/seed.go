package cmd

import (
	"github.com/krshsl/nora/services"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo user and a sample pending interview",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, repo, err := openRepository(loadConfig())
		if err != nil {
			return err
		}
		defer closeDatabase(db)

		return services.NewDatabaseSeeder(repo).SeedDatabase(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
