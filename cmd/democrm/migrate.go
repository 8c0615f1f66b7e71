package main

import (
	"fmt"
	"net/url"

	"democrm-backend/pkg/database"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dsn = cfg.PostgresDSN
			}
			if dsn == "" {
				return fmt.Errorf("no database configured, pass --dsn or set POSTGRES_DSN")
			}

			fmt.Printf("🔗 Connecting to database: %s\n", maskPassword(dsn))
			db, err := database.NewPostgresDatabase(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if err := db.Migrate(ctx); err != nil {
				return err
			}

			// 验证表是否创建成功
			counts, err := db.TableCounts(ctx)
			if err != nil {
				return err
			}
			for _, table := range database.SchemaTables {
				fmt.Printf("✅ Table %s: %d records\n", table, counts[table])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (default from POSTGRES_DSN)")
	return cmd
}

// maskPassword 隐藏连接字符串中的密码
func maskPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		if len(dsn) > 10 {
			return dsn[:10] + "***"
		}
		return "***"
	}
	return u.Redacted()
}
