package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/datasource"
)

// qualifiedTableName returns a properly quoted table reference.
// If schemaName is empty, returns just the quoted table name.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	quotedSchema := pgx.Identifier{schemaName}.Sanitize()
	return quotedSchema + "." + quotedTable
}

// ExtractorConfig tunes metadata extraction.
type ExtractorConfig struct {
	// CategoryThreshold is the max distinct count for full value collection.
	CategoryThreshold int
	// SampleSize is how many random values to collect above the threshold.
	SampleSize int
	// StatsTimeout bounds each per-column statistics query.
	StatsTimeout time.Duration
}

// DefaultExtractorConfig returns the extraction defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		CategoryThreshold: 100,
		SampleSize:        50,
		StatsTimeout:      30 * time.Second,
	}
}

// Extractor profiles a PostgreSQL database.
type Extractor struct {
	pool   *pgxpool.Pool
	dbName string
	cfg    ExtractorConfig
	logger *zap.Logger
}

// NewExtractor connects to the target database and returns an extractor.
// Connection or authentication failures are reported as connectivity errors.
func NewExtractor(ctx context.Context, params *datasource.ConnParams, cfg ExtractorConfig, logger *zap.Logger) (*Extractor, error) {
	if cfg.CategoryThreshold <= 0 {
		cfg = DefaultExtractorConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, buildConnectionString(params))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnectivity, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConnectivity, err)
	}

	return &Extractor{
		pool:   pool,
		dbName: params.Database,
		cfg:    cfg,
		logger: logger.Named("extractor"),
	}, nil
}

// Ping verifies the connection is usable.
func (e *Extractor) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConnectivity, err)
	}
	return nil
}

// Close releases the underlying pool.
func (e *Extractor) Close() {
	e.pool.Close()
}

// ExtractMetadata walks every user table and returns the full profile.
func (e *Extractor) ExtractMetadata(ctx context.Context, onProgress datasource.ProgressFunc) (*datasource.DatabaseMetadata, error) {
	report := func(fraction float64, message string) {
		if onProgress != nil {
			onProgress(fraction, message)
		}
	}

	report(0, "discovering tables")

	tables, err := e.discoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrExtraction, err)
	}

	fks, err := e.discoverForeignKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrExtraction, err)
	}

	meta := &datasource.DatabaseMetadata{DatabaseName: e.dbName}
	for i := range tables {
		t := &tables[i]
		key := t.SchemaName + "." + t.TableName
		t.ForeignKeys = fks[key]

		if err := e.profileTable(ctx, t); err != nil {
			return nil, fmt.Errorf("%w: profile %s: %v", apperrors.ErrExtraction, key, err)
		}

		meta.Tables = append(meta.Tables, *t)
		report(float64(i+1)/float64(len(tables)), fmt.Sprintf("profiled %s (%d/%d)", key, i+1, len(tables)))
	}

	e.logger.Info("Extraction complete",
		zap.String("database", e.dbName),
		zap.Int("tables", len(meta.Tables)))

	return meta, nil
}

// discoverTables returns all user tables with estimated row counts.
// Small tables (estimate below 100) get an exact COUNT(*) since planner
// estimates are unreliable for them.
func (e *Extractor) discoverTables(ctx context.Context) ([]datasource.TableInfo, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) as row_count
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY t.table_schema, t.table_name
	`

	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableInfo
	for rows.Next() {
		var t datasource.TableInfo
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	for i := range tables {
		if tables[i].RowCount < 100 {
			exact, err := e.exactRowCount(ctx, tables[i].SchemaName, tables[i].TableName)
			if err != nil {
				e.logger.Warn("Exact row count failed, keeping estimate",
					zap.String("table", tables[i].TableName),
					zap.Error(err))
				continue
			}
			tables[i].RowCount = exact
		}
	}

	return tables, nil
}

func (e *Extractor) exactRowCount(ctx context.Context, schemaName, tableName string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualifiedTableName(schemaName, tableName))
	var count int64
	if err := e.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// discoverForeignKeys returns all FK edges keyed by "schema.table".
func (e *Extractor) discoverForeignKeys(ctx context.Context) (map[string][]datasource.ForeignKeyInfo, error) {
	const query = `
		SELECT
			tc.constraint_name,
			kcu.table_schema as source_schema,
			kcu.table_name as source_table,
			kcu.column_name as source_column,
			ccu.table_schema as target_schema,
			ccu.table_name as target_table,
			ccu.column_name as target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	`

	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[string][]datasource.ForeignKeyInfo)
	for rows.Next() {
		var fk datasource.ForeignKeyInfo
		var sourceSchema, sourceTable string
		if err := rows.Scan(&fk.ConstraintName, &sourceSchema, &sourceTable, &fk.SourceColumn,
			&fk.TargetSchema, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		key := sourceSchema + "." + sourceTable
		fks[key] = append(fks[key], fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return fks, nil
}

// profileTable fills in columns, statistics, and value collections for a table.
func (e *Extractor) profileTable(ctx context.Context, t *datasource.TableInfo) error {
	columns, err := e.discoverColumns(ctx, t.SchemaName, t.TableName)
	if err != nil {
		return err
	}

	fkCols := make(map[string]bool, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		fkCols[fk.SourceColumn] = true
	}

	for i := range columns {
		col := &columns[i]
		col.IsForeignKey = fkCols[col.ColumnName]

		e.analyzeColumn(ctx, t, col)

		if col.DistinctCount > 0 && col.DistinctCount <= int64(e.cfg.CategoryThreshold) {
			values, err := e.distinctValues(ctx, t.SchemaName, t.TableName, col.ColumnName, e.cfg.CategoryThreshold)
			if err != nil {
				e.logger.Warn("Failed to collect distinct values",
					zap.String("table", t.TableName),
					zap.String("column", col.ColumnName),
					zap.Error(err))
			} else {
				col.DistinctValues = values
			}
		} else if col.DistinctCount > int64(e.cfg.CategoryThreshold) {
			values, err := e.sampleValues(ctx, t.SchemaName, t.TableName, col.ColumnName, e.cfg.SampleSize)
			if err != nil {
				e.logger.Warn("Failed to sample values",
					zap.String("table", t.TableName),
					zap.String("column", col.ColumnName),
					zap.Error(err))
			} else {
				col.SampleValues = values
			}
		}
	}

	t.Columns = columns
	return nil
}

// discoverColumns returns columns for a table. Primary keys are detected via
// pg_index.indisprimary, which also catches PKs created as unique indexes.
func (e *Extractor) discoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnInfo, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' as is_nullable,
			COALESCE(pk.is_pk, false) as is_primary_key
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname as column_name, true as is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary = true
			  AND n.nspname = $1
			  AND t.relname = $2
		) pk ON c.column_name = pk.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := e.pool.Query(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []datasource.ColumnInfo
	for rows.Next() {
		var c datasource.ColumnInfo
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// analyzeColumn gathers distinct and null counts under a statement timeout.
// Failures degrade to zero stats rather than failing the table.
func (e *Extractor) analyzeColumn(ctx context.Context, t *datasource.TableInfo, col *datasource.ColumnInfo) {
	statsCtx := ctx
	if e.cfg.StatsTimeout > 0 {
		var cancel context.CancelFunc
		statsCtx, cancel = context.WithTimeout(ctx, e.cfg.StatsTimeout)
		defer cancel()
	}

	quotedCol := pgx.Identifier{col.ColumnName}.Sanitize()
	tableRef := qualifiedTableName(t.SchemaName, t.TableName)

	query := fmt.Sprintf(`
		SELECT
			COUNT(DISTINCT %s) as distinct_count,
			COUNT(*) FILTER (WHERE %s IS NULL) as null_count
		FROM %s
	`, quotedCol, quotedCol, tableRef)

	row := e.pool.QueryRow(statsCtx, query)
	if err := row.Scan(&col.DistinctCount, &col.NullCount); err != nil {
		e.logger.Warn("Column stats query failed, using zero values",
			zap.String("schema", t.SchemaName),
			zap.String("table", t.TableName),
			zap.String("column", col.ColumnName),
			zap.Error(err))
		col.DistinctCount = 0
		col.NullCount = 0
	}
}

// distinctValues returns up to limit distinct non-null values as text.
func (e *Extractor) distinctValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
	tableRef := qualifiedTableName(schemaName, tableName)
	quotedCol := pgx.Identifier{columnName}.Sanitize()

	query := fmt.Sprintf(`
		SELECT DISTINCT %s::text
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY 1
		LIMIT $1
	`, quotedCol, tableRef, quotedCol)

	return e.collectStrings(ctx, query, limit)
}

// sampleValues returns a random sample of non-null values as text.
func (e *Extractor) sampleValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
	tableRef := qualifiedTableName(schemaName, tableName)
	quotedCol := pgx.Identifier{columnName}.Sanitize()

	query := fmt.Sprintf(`
		SELECT %s::text
		FROM %s
		WHERE %s IS NOT NULL
		ORDER BY RANDOM()
		LIMIT $1
	`, quotedCol, tableRef, quotedCol)

	return e.collectStrings(ctx, query, limit)
}

func (e *Extractor) collectStrings(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := e.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var val string
		if err := rows.Scan(&val); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		values = append(values, val)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

// Ensure Extractor implements datasource.Extractor at compile time.
var _ datasource.Extractor = (*Extractor)(nil)
