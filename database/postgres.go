package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/shared"
)

var DB *sql.DB

// ConnectWithConfig establishes database connection with custom configuration
func ConnectWithConfig(dbURL string, config *shared.DatabaseConfig) error {
	db, err := Open(dbURL, config)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens and pings a pooled connection without touching the package-level DB
func Open(dbURL string, config *shared.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"component":          "database",
		"max_open_conns":     config.MaxOpenConns,
		"max_idle_conns":     config.MaxIdleConns,
		"conn_max_lifetime":  config.ConnMaxLifetime,
		"conn_max_idle_time": config.ConnMaxIdleTime,
	}).Info("Connected to database successfully")

	return db, nil
}

func Close() {
	if DB != nil {
		DB.Close()
		logrus.Info("Database connection closed")
	}
}

// GetConnectionStats returns current database connection pool statistics
func GetConnectionStats() sql.DBStats {
	if DB == nil {
		return sql.DBStats{}
	}
	return DB.Stats()
}

// HealthCheck pings the database and logs pool statistics
func HealthCheck(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database connection not established")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	stats := GetConnectionStats()
	logrus.WithFields(logrus.Fields{
		"component":            "database",
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration,
	}).Debug("Database connection pool health check")

	return nil
}

// Migrate executes each statement of the schema file against DB
func Migrate(schemaPath string) error {
	if DB == nil {
		return fmt.Errorf("database connection not established")
	}
	return MigrateDB(DB, schemaPath)
}

// MigrateDB executes each statement of the schema file against db. A failing
// statement is logged and the remaining statements still run.
func MigrateDB(db *sql.DB, schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	failed := 0
	for _, stmt := range parseSQLStatements(string(content)) {
		if _, err := db.Exec(stmt); err != nil {
			failed++
			logrus.Warnf("Migration statement failed (continuing): %v", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"component":         "database",
		"failed_statements": failed,
	}).Info("Database migration completed")
	return nil
}

// parseSQLStatements splits SQL content into statements. Comment-only lines are
// dropped and a statement ends at a line with a trailing semicolon.
func parseSQLStatements(content string) []string {
	var statements []string
	var currentStatement strings.Builder

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if currentStatement.Len() > 0 {
			currentStatement.WriteString(" ")
		}
		currentStatement.WriteString(line)

		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSpace(strings.TrimSuffix(currentStatement.String(), ";"))
			if stmt != "" {
				statements = append(statements, stmt)
			}
			currentStatement.Reset()
		}
	}

	if stmt := strings.TrimSpace(currentStatement.String()); stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}

// ValidationResult represents the result of schema validation
type ValidationResult struct {
	TableName      string
	IsValid        bool
	MissingTable   bool
	MissingColumns []string
	MissingIndexes []string
}

// requiredColumns lists the columns the scenario store reads or writes
var requiredColumns = map[string][]string{
	"scenarios": {
		"id", "title", "description", "status", "content_hash",
		"duplicate_checked", "duplicate_of", "current_price", "holder_id", "created_at",
	},
	"users": {"id", "username"},
}

// requiredIndexes maps each index name to the statement that creates it
var requiredIndexes = map[string]string{
	"idx_scenarios_content_hash":   "CREATE INDEX IF NOT EXISTS idx_scenarios_content_hash ON scenarios(content_hash)",
	"idx_scenarios_status_created": "CREATE INDEX IF NOT EXISTS idx_scenarios_status_created ON scenarios(status, created_at DESC)",
	"idx_scenarios_missing_hash":   "CREATE INDEX IF NOT EXISTS idx_scenarios_missing_hash ON scenarios(created_at) WHERE content_hash IS NULL",
}

// SchemaValidator checks that the tables the scenario store depends on exist
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator instance
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate inspects information_schema and pg_indexes for the required tables,
// columns and indexes.
func (v *SchemaValidator) Validate(ctx context.Context) ([]ValidationResult, error) {
	var results []ValidationResult

	for _, table := range []string{"users", "scenarios"} {
		result := ValidationResult{TableName: table, IsValid: true}

		columns, err := v.getTableColumns(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
		}

		if len(columns) == 0 {
			result.IsValid = false
			result.MissingTable = true
			results = append(results, result)
			continue
		}

		for _, column := range requiredColumns[table] {
			if _, ok := columns[column]; !ok {
				result.IsValid = false
				result.MissingColumns = append(result.MissingColumns, column)
			}
		}

		if table == "scenarios" {
			indexes, err := v.getTableIndexes(ctx, table)
			if err != nil {
				return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
			}
			for name := range requiredIndexes {
				if !indexes[name] {
					result.IsValid = false
					result.MissingIndexes = append(result.MissingIndexes, name)
				}
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// CreateMissingIndexes creates the named indexes from requiredIndexes
func (v *SchemaValidator) CreateMissingIndexes(ctx context.Context, missingIndexes []string) error {
	for _, name := range missingIndexes {
		stmt, ok := requiredIndexes[name]
		if !ok {
			continue
		}
		if _, err := v.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
		logrus.WithFields(logrus.Fields{
			"component": "SchemaValidator",
			"index":     name,
		}).Info("Created missing index")
	}
	return nil
}

func (v *SchemaValidator) getTableColumns(ctx context.Context, tableName string) (map[string]string, error) {
	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
	`
	rows, err := v.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]string)
	for rows.Next() {
		var columnName, dataType string
		if err := rows.Scan(&columnName, &dataType); err != nil {
			return nil, err
		}
		columns[columnName] = dataType
	}

	return columns, rows.Err()
}

func (v *SchemaValidator) getTableIndexes(ctx context.Context, tableName string) (map[string]bool, error) {
	query := `SELECT indexname FROM pg_indexes WHERE schemaname = 'public' AND tablename = $1`
	rows, err := v.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		indexes[name] = true
	}

	return indexes, rows.Err()
}

// ValidateAndOptimizeSchema validates the schema and creates missing indexes.
// Missing tables or columns are reported as an error since the store cannot run.
func ValidateAndOptimizeSchema(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database connection not established")
	}

	validator := NewSchemaValidator(DB)
	results, err := validator.Validate(ctx)
	if err != nil {
		return fmt.Errorf("failed to validate schema: %w", err)
	}

	var missingIndexes []string
	var problems []string
	for _, result := range results {
		if result.IsValid {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"component":       "SchemaValidator",
			"table":           result.TableName,
			"missing_table":   result.MissingTable,
			"missing_columns": result.MissingColumns,
			"missing_indexes": result.MissingIndexes,
		}).Warn("Schema validation found issues")

		missingIndexes = append(missingIndexes, result.MissingIndexes...)
		if result.MissingTable {
			problems = append(problems, fmt.Sprintf("table %s is missing", result.TableName))
		}
		for _, column := range result.MissingColumns {
			problems = append(problems, fmt.Sprintf("column %s.%s is missing", result.TableName, column))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("schema is incompatible: %s", strings.Join(problems, "; "))
	}

	if len(missingIndexes) > 0 {
		if err := validator.CreateMissingIndexes(ctx, missingIndexes); err != nil {
			return err
		}
	}

	logrus.Info("Schema validation passed successfully")
	return nil
}
