package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSQL(t *testing.T) {
	sql := stripSQLComments("-- header\nCREATE TABLE a (id INT);\n\n-- note\nCREATE INDEX b ON a (id);\n")
	stmts := splitSQL(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id INT)", stmts[0])
	assert.Equal(t, "CREATE INDEX b ON a (id)", stmts[1])
}

func TestEmbeddedMigrationsCoverAllTables(t *testing.T) {
	content, err := migrations.ReadFile("migrations/0001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{"users", "orders", "delivery_zones", "deliveries", "notifications"} {
		assert.Contains(t, string(content), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}
