package database

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

func TestParseSQLStatements(t *testing.T) {
	content := `
-- leading comment
CREATE TABLE a (
    id INT
);

-- between statements
CREATE INDEX idx_a ON a(id);
SELECT 1`

	statements := parseSQLStatements(content)

	require.Len(t, statements, 3)
	assert.Equal(t, "CREATE TABLE a ( id INT )", statements[0])
	assert.Equal(t, "CREATE INDEX idx_a ON a(id)", statements[1])
	assert.Equal(t, "SELECT 1", statements[2])
}

func TestParseSQLStatementsEmpty(t *testing.T) {
	assert.Empty(t, parseSQLStatements(""))
	assert.Empty(t, parseSQLStatements("-- only a comment\n\n;"))
}

func TestSchemaFileParses(t *testing.T) {
	content, err := os.ReadFile("schema.sql")
	require.NoError(t, err)

	statements := parseSQLStatements(string(content))
	require.NotEmpty(t, statements)

	for _, stmt := range statements {
		assert.False(t, strings.HasSuffix(stmt, ";"), stmt)
		assert.NotContains(t, stmt, "--")
	}

	// Every index the validator can recreate is also created by the schema file
	joined := strings.Join(statements, "\n")
	for name := range requiredIndexes {
		assert.Contains(t, joined, name)
	}
}

func TestMigrateRequiresConnection(t *testing.T) {
	saved := DB
	DB = nil
	defer func() { DB = saved }()

	assert.Error(t, Migrate("schema.sql"))
	assert.Error(t, HealthCheck(context.Background()))
	assert.Error(t, ValidateAndOptimizeSchema(context.Background()))
	assert.Zero(t, GetConnectionStats())
}

func TestSchemaValidationAgainstPostgres(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	config := shared.NewDefaultUnifiedConfiguration().Database
	db, err := Open(dbURL, &config)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateDB(db, "schema.sql"))

	saved := DB
	DB = db
	defer func() { DB = saved }()
	require.NoError(t, HealthCheck(context.Background()))
	assert.Equal(t, config.MaxOpenConns, GetConnectionStats().MaxOpenConnections)

	results, err := NewSchemaValidator(db).Validate(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.True(t, result.IsValid, "%+v", result)
	}
}
