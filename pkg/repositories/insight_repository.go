package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/database"
	"github.com/lumina-data/lumina-engine/pkg/models"
)

// InsightRepository defines the interface for table insight data access.
type InsightRepository interface {
	// ReplaceForConnection swaps the connection's insights in one transaction:
	// prior insights and their columns are deleted, then the new set is
	// inserted. A failed run therefore leaves the previous successful run's
	// rows intact.
	ReplaceForConnection(ctx context.Context, connectionID uuid.UUID, insights []*models.TableInsight) error
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.TableInsight, error)
	Get(ctx context.Context, id uuid.UUID) (*models.TableInsight, error)
}

// insightRepository implements InsightRepository using PostgreSQL.
type insightRepository struct {
	db *database.DB
}

// NewInsightRepository creates a new insight repository.
func NewInsightRepository(db *database.DB) InsightRepository {
	return &insightRepository{db: db}
}

func (r *insightRepository) ReplaceForConnection(ctx context.Context, connectionID uuid.UUID, insights []*models.TableInsight) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// column_metadata rows go with their insights via ON DELETE CASCADE.
	if _, err := tx.Exec(ctx, `DELETE FROM table_insights WHERE connection_id = $1`, connectionID); err != nil {
		return fmt.Errorf("failed to delete prior insights: %w", err)
	}

	now := time.Now()
	for _, insight := range insights {
		if insight.ID == uuid.Nil {
			insight.ID = uuid.New()
		}
		insight.ConnectionID = connectionID
		insight.CreatedAt = now

		_, err := tx.Exec(ctx, `
			INSERT INTO table_insights (id, connection_id, schema_name, table_name, row_count, document, summary, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			insight.ID,
			insight.ConnectionID,
			insight.SchemaName,
			insight.TableName,
			insight.RowCount,
			insight.Document,
			insight.Summary,
			insight.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert insight for %s.%s: %w", insight.SchemaName, insight.TableName, err)
		}

		for i, col := range insight.Columns {
			if col.ID == uuid.Nil {
				col.ID = uuid.New()
			}
			col.InsightID = insight.ID

			categorical, err := json.Marshal(col.CategoricalValues)
			if err != nil {
				return fmt.Errorf("failed to marshal categorical values: %w", err)
			}
			samples, err := json.Marshal(col.SampleValues)
			if err != nil {
				return fmt.Errorf("failed to marshal sample values: %w", err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO column_metadata (id, insight_id, column_name, data_type, is_nullable, is_primary_key,
					is_foreign_key, distinct_count, null_count, strategy, strategy_reasoning,
					categorical_values, sample_values, summary, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
				col.ID,
				col.InsightID,
				col.ColumnName,
				col.DataType,
				col.IsNullable,
				col.IsPrimaryKey,
				col.IsForeignKey,
				col.DistinctCount,
				col.NullCount,
				col.Strategy,
				col.StrategyReasoning,
				categorical,
				samples,
				col.Summary,
				i,
			)
			if err != nil {
				return fmt.Errorf("failed to insert column metadata for %s: %w", col.ColumnName, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit insight replacement: %w", err)
	}

	return nil
}

func (r *insightRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.TableInsight, error) {
	query := `
		SELECT id, connection_id, schema_name, table_name, row_count, document, summary, created_at
		FROM table_insights
		WHERE connection_id = $1
		ORDER BY schema_name, table_name`

	rows, err := r.db.Query(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var insights []*models.TableInsight
	byID := make(map[uuid.UUID]*models.TableInsight)
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		insights = append(insights, insight)
		byID[insight.ID] = insight
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(insights) == 0 {
		return nil, nil
	}

	if err := r.attachColumns(ctx, connectionID, byID); err != nil {
		return nil, err
	}

	return insights, nil
}

func (r *insightRepository) Get(ctx context.Context, id uuid.UUID) (*models.TableInsight, error) {
	query := `
		SELECT id, connection_id, schema_name, table_name, row_count, document, summary, created_at
		FROM table_insights
		WHERE id = $1`

	insight, err := scanInsight(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get insight: %w", err)
	}

	byID := map[uuid.UUID]*models.TableInsight{insight.ID: insight}
	if err := r.attachColumns(ctx, insight.ConnectionID, byID); err != nil {
		return nil, err
	}

	return insight, nil
}

// attachColumns loads column metadata for every insight in byID with a single
// query over the connection.
func (r *insightRepository) attachColumns(ctx context.Context, connectionID uuid.UUID, byID map[uuid.UUID]*models.TableInsight) error {
	query := `
		SELECT c.id, c.insight_id, c.column_name, c.data_type, c.is_nullable, c.is_primary_key,
			c.is_foreign_key, c.distinct_count, c.null_count, c.strategy, c.strategy_reasoning,
			c.categorical_values, c.sample_values, c.summary
		FROM column_metadata c
		JOIN table_insights t ON t.id = c.insight_id
		WHERE t.connection_id = $1
		ORDER BY c.insight_id, c.position`

	rows, err := r.db.Query(ctx, query, connectionID)
	if err != nil {
		return fmt.Errorf("failed to load column metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		col, err := scanColumnMetadata(rows)
		if err != nil {
			return fmt.Errorf("failed to scan column metadata: %w", err)
		}
		if insight, ok := byID[col.InsightID]; ok {
			insight.Columns = append(insight.Columns, col)
		}
	}

	return rows.Err()
}

func scanInsight(row pgx.Row) (*models.TableInsight, error) {
	var insight models.TableInsight
	err := row.Scan(
		&insight.ID,
		&insight.ConnectionID,
		&insight.SchemaName,
		&insight.TableName,
		&insight.RowCount,
		&insight.Document,
		&insight.Summary,
		&insight.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &insight, nil
}

func scanColumnMetadata(row pgx.Row) (*models.ColumnMetadata, error) {
	var col models.ColumnMetadata
	var categorical, samples []byte
	err := row.Scan(
		&col.ID,
		&col.InsightID,
		&col.ColumnName,
		&col.DataType,
		&col.IsNullable,
		&col.IsPrimaryKey,
		&col.IsForeignKey,
		&col.DistinctCount,
		&col.NullCount,
		&col.Strategy,
		&col.StrategyReasoning,
		&categorical,
		&samples,
		&col.Summary,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(categorical, &col.CategoricalValues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categorical values: %w", err)
	}
	if err := json.Unmarshal(samples, &col.SampleValues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sample values: %w", err)
	}

	return &col, nil
}
