package database

import (
	"context"
	"embed"
	"fmt"
)

//go:embed schema.sql
var schemaFS embed.FS

// Migrator is implemented by stores that keep their schema outside the process
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Migrate 应用内嵌的 schema.sql；不需要迁移的实现直接跳过
func Migrate(ctx context.Context, store DatabaseInterface) error {
	m, ok := store.(Migrator)
	if !ok {
		return nil
	}
	return m.Migrate(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *PostgresDatabase) Migrate(ctx context.Context) error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	if _, err := db.db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	fmt.Printf("✅ Database schema applied\n")
	return nil
}

// SchemaTables lists the tables schema.sql creates
var SchemaTables = []string{"users", "verification_tokens", "companies", "clients", "tasks", "meetings"}

// TableCounts 统计各表记录数，用于迁移后的校验
func (db *PostgresDatabase) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(SchemaTables))
	for _, table := range SchemaTables {
		var n int64
		if err := get(ctx, db.db, &n, psql.Select("COUNT(*)").From(table)); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
