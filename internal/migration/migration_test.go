package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/billingcore/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestInitMigrationCreatesEveryTable(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init_billing.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	conn := dbtest.Open(t)
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: conn}
		require.NoError(t, stmt.Parse(model))
		table := stmt.Schema.Table
		require.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table+" (", "missing table %s", table)
	}
	require.Contains(t, sql, "ux_invoice_subscription_period")
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{
		"plans", "plan_price_history", "customers", "subscriptions", "plan_history",
		"invoices", "invoice_line_items", "adjustments", "journal_entries", "journal_lines",
	} {
		require.True(t, conn.Migrator().HasTable(table), table)
	}
	require.True(t, conn.Migrator().HasIndex("invoices", "ux_invoice_subscription_period"))
}

func TestAutoMigrateRequiresConnection(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
	require.Error(t, RunMigrations(nil))
}
