package main

import (
	"democrm-backend/pkg/config"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "democrm",
		Short: "DemoCRM backend",
		Long: `DemoCRM is a small CRM backend: clients, companies, tasks and meetings
behind magic-link sign in, with an AI daily plan and email drafts.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newSeedCommand())
	return root
}

// loadConfig 加载配置；命令行参数在此之后覆盖
func loadConfig() (*config.Config, error) {
	return config.LoadConfig()
}
