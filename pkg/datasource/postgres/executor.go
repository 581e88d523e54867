package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/datasource"
)

// Executor runs read-only queries against a target PostgreSQL database.
type Executor struct {
	pool *pgxpool.Pool
}

// NewExecutor connects to the target database and returns an executor.
func NewExecutor(ctx context.Context, params *datasource.ConnParams) (*Executor, error) {
	pool, err := pgxpool.New(ctx, buildConnectionString(params))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnectivity, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnectivity, err)
	}

	return &Executor{pool: pool}, nil
}

// Query executes sql wrapped in a limiting subquery. One extra row is
// requested past the cap purely to detect truncation.
func (e *Executor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryResult, error) {
	queryToRun := sqlQuery
	if limit > 0 {
		queryToRun = fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, limit+1)
	}

	rows, err := e.pool.Query(ctx, queryToRun)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryExecution, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%w: read row values: %v", apperrors.ErrQueryExecution, err)
		}

		rowMap := make(map[string]any)
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueryExecution, err)
	}

	truncated := false
	if limit > 0 && len(resultRows) > limit {
		resultRows = resultRows[:limit]
		truncated = true
	}

	return &datasource.QueryResult{
		Columns:   columns,
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Truncated: truncated,
	}, nil
}

// Close releases the underlying pool.
func (e *Executor) Close() {
	e.pool.Close()
}

// Ensure Executor implements datasource.Executor at compile time.
var _ datasource.Executor = (*Executor)(nil)
