package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/apocaliptyx/scenario-dedup/models"
	"github.com/apocaliptyx/scenario-dedup/shared"
)

// ScenarioStore is the data-access boundary of the duplicate detector.
// Implementations return HolderUsername already flattened from the users join.
type ScenarioStore interface {
	// FindByHash returns every record with the given content hash except excludeID
	FindByHash(ctx context.Context, hash, excludeID string) ([]models.StoredScenario, error)
	// FindActive returns non-cancelled records except excludeID, newest first.
	// A limit of zero or less means no cap.
	FindActive(ctx context.Context, excludeID string, limit int) ([]models.StoredScenario, error)
	// FindMissingHash returns records whose content hash was never computed
	FindMissingHash(ctx context.Context) ([]models.StoredScenario, error)
	// UpdateByID applies a partial update to one record
	UpdateByID(ctx context.Context, id string, update models.ScenarioUpdate) error
}

const scenarioStoreServiceName = "ScenarioStore"

const scenarioSelectColumns = `SELECT s.id, s.title, COALESCE(s.description, ''), s.status,
              s.content_hash, s.duplicate_checked, s.duplicate_of, s.current_price,
              u.username, s.created_at
              FROM scenarios s LEFT JOIN users u ON u.id = s.holder_id`

// PostgresScenarioStore reads and writes the scenarios table through database/sql
type PostgresScenarioStore struct {
	DB          *sql.DB
	dbOptimizer *DatabaseOptimizer
	logger      *logrus.Entry
}

// NewPostgresScenarioStore creates a store with retry and query metrics
func NewPostgresScenarioStore(db *sql.DB, config shared.DatabaseConfig) *PostgresScenarioStore {
	return &PostgresScenarioStore{
		DB:          db,
		dbOptimizer: NewDatabaseOptimizer(config),
		logger:      logrus.WithField("component", scenarioStoreServiceName),
	}
}

// GetDatabaseMetrics returns the store's query metrics
func (s *PostgresScenarioStore) GetDatabaseMetrics() *shared.DatabaseMetrics {
	return s.dbOptimizer.Metrics()
}

func (s *PostgresScenarioStore) FindByHash(ctx context.Context, hash, excludeID string) ([]models.StoredScenario, error) {
	query := scenarioSelectColumns + `
              WHERE s.content_hash = $1 AND ($2 = '' OR s.id::text <> $2)
              ORDER BY s.created_at DESC`

	return s.queryScenarios(ctx, "FindByHash", query, hash, excludeID)
}

func (s *PostgresScenarioStore) FindActive(ctx context.Context, excludeID string, limit int) ([]models.StoredScenario, error) {
	query := scenarioSelectColumns + `
              WHERE s.status <> $1 AND ($2 = '' OR s.id::text <> $2)
              ORDER BY s.created_at DESC`
	args := []interface{}{models.ScenarioStatusCancelled, excludeID}

	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	return s.queryScenarios(ctx, "FindActive", query, args...)
}

func (s *PostgresScenarioStore) FindMissingHash(ctx context.Context) ([]models.StoredScenario, error) {
	query := scenarioSelectColumns + `
              WHERE s.content_hash IS NULL
              ORDER BY s.created_at ASC`

	return s.queryScenarios(ctx, "FindMissingHash", query)
}

func (s *PostgresScenarioStore) UpdateByID(ctx context.Context, id string, update models.ScenarioUpdate) error {
	if _, err := uuid.Parse(id); err != nil {
		return shared.NewValidationError(fmt.Sprintf("invalid scenario id %q", id), scenarioStoreServiceName, "UpdateByID")
	}
	if update.IsEmpty() {
		return shared.NewValidationError("update contains no fields", scenarioStoreServiceName, "UpdateByID")
	}

	var setClauses []string
	var args []interface{}
	addClause := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.ContentHash != nil {
		addClause("content_hash", *update.ContentHash)
	}
	if update.DuplicateChecked != nil {
		addClause("duplicate_checked", *update.DuplicateChecked)
	}
	if update.DuplicateOf != nil {
		addClause("duplicate_of", *update.DuplicateOf)
	}
	if update.Status != nil {
		addClause("status", *update.Status)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE scenarios SET %s WHERE id = $%d", strings.Join(setClauses, ", "), len(args))

	var rowsAffected int64
	err := s.dbOptimizer.ExecuteWithRetry(ctx, "UpdateByID", func() error {
		result, err := s.DB.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rowsAffected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeUpdateFailed,
			scenarioStoreServiceName, "UpdateByID", shared.IsRetryableError(err))
	}

	if rowsAffected == 0 {
		return shared.NewNotFoundError(fmt.Sprintf("scenario %s not found", id), scenarioStoreServiceName, "UpdateByID")
	}

	return nil
}

func (s *PostgresScenarioStore) queryScenarios(ctx context.Context, operation, query string, args ...interface{}) ([]models.StoredScenario, error) {
	var scenarios []models.StoredScenario

	err := s.dbOptimizer.ExecuteWithRetry(ctx, operation, func() error {
		rows, err := s.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		scenarios = scenarios[:0]
		for rows.Next() {
			scenario, err := scanStoredScenario(rows)
			if err != nil {
				return fmt.Errorf("failed to scan scenario row: %w", err)
			}
			scenarios = append(scenarios, scenario)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodeQueryFailed,
			scenarioStoreServiceName, operation, shared.IsRetryableError(err))
	}

	s.logger.WithFields(logrus.Fields{
		"operation": operation,
		"rows":      len(scenarios),
	}).Debug("Scenario query completed")

	return scenarios, nil
}

func scanStoredScenario(rows *sql.Rows) (models.StoredScenario, error) {
	var scenario models.StoredScenario
	var contentHash, duplicateOf, holderUsername sql.NullString
	var currentPrice sql.NullFloat64

	err := rows.Scan(
		&scenario.ID, &scenario.Title, &scenario.Description, &scenario.Status,
		&contentHash, &scenario.DuplicateChecked, &duplicateOf, &currentPrice,
		&holderUsername, &scenario.CreatedAt,
	)
	if err != nil {
		return scenario, err
	}

	if contentHash.Valid {
		scenario.ContentHash = &contentHash.String
	}
	if duplicateOf.Valid {
		scenario.DuplicateOf = &duplicateOf.String
	}
	if currentPrice.Valid {
		scenario.CurrentPrice = &currentPrice.Float64
	}
	if holderUsername.Valid {
		scenario.HolderUsername = &holderUsername.String
	}

	return scenario, nil
}
