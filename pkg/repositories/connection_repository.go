package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/database"
	"github.com/lumina-data/lumina-engine/pkg/models"
)

// ConnectionRepository defines the interface for connection data access.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.Connection) error
	Get(ctx context.Context, id uuid.UUID) (*models.Connection, error)
	List(ctx context.Context) ([]*models.Connection, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// ClaimRun atomically moves the connection into the run status implied by
	// its current state (pending/error → analyzing, ready → updating) and
	// returns the claimed status. Returns apperrors.ErrRunActive when another
	// run already holds the connection. A run-status row whose updated_at is
	// older than staleAfter was abandoned by a dead process and is reclaimed.
	ClaimRun(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (models.ConnectionStatus, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, progress float64, message string) error
	MarkReady(ctx context.Context, id uuid.UUID) error
	MarkError(ctx context.Context, id uuid.UUID, cause string) error
}

// connectionRepository implements ConnectionRepository using PostgreSQL.
type connectionRepository struct {
	db *database.DB
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *database.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, name, host, port, db_user, encrypted_password, database_name, ssl_mode,
		status, progress, status_message, last_analyzed_at, created_at, updated_at`

func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	if conn.Status == "" {
		conn.Status = models.ConnectionStatusPending
	}
	if conn.SSLMode == "" {
		conn.SSLMode = "require"
	}

	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query := `
		INSERT INTO connections (id, name, host, port, db_user, encrypted_password, database_name, ssl_mode,
			status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		conn.ID,
		conn.Name,
		conn.Host,
		conn.Port,
		conn.User,
		conn.EncryptedPassword,
		conn.Database,
		conn.SSLMode,
		conn.Status,
		conn.Progress,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}

	return nil
}

func (r *connectionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	query := fmt.Sprintf(`SELECT %s FROM connections WHERE id = $1`, connectionColumns)

	conn, err := scanConnection(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return conn, nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*models.Connection, error) {
	query := fmt.Sprintf(`SELECT %s FROM connections ORDER BY created_at DESC`, connectionColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	return conns, rows.Err()
}

func (r *connectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ClaimRun relies on the WHERE clause to make the claim atomic: two
// concurrent callers race on the same row, and only the one whose UPDATE
// matches wins. A row stranded in a run status by a crashed process becomes
// reclaimable once its updated_at falls behind staleAfter: a live run
// refreshes updated_at with every progress write and is bounded by the run
// timeout, so an older row has no process behind it. Stale updating rows
// claim back to updating because their prior insights are still committed.
func (r *connectionRepository) ClaimRun(ctx context.Context, id uuid.UUID, staleAfter time.Duration) (models.ConnectionStatus, error) {
	query := `
		UPDATE connections
		SET status = CASE
				WHEN status IN ('ready', 'updating') THEN 'updating'
				ELSE 'analyzing'
			END,
		    progress = 0,
		    status_message = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND (status IN ('pending', 'error', 'ready')
		       OR (status IN ('analyzing', 'indexing', 'updating')
		           AND updated_at < NOW() - make_interval(secs => $2)))
		RETURNING status`

	var claimed models.ConnectionStatus
	err := r.db.QueryRow(ctx, query, id, staleAfter.Seconds()).Scan(&claimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row missing or already mid-run; disambiguate for the caller.
			if _, getErr := r.Get(ctx, id); getErr != nil {
				return "", getErr
			}
			return "", apperrors.ErrRunActive
		}
		return "", fmt.Errorf("failed to claim analysis run: %w", err)
	}

	return claimed, nil
}

// UpdateProgress writes status, progress, and message in one statement.
// GREATEST keeps progress monotonic within a run even if updates land out
// of order.
func (r *connectionRepository) UpdateProgress(ctx context.Context, id uuid.UUID, status models.ConnectionStatus, progress float64, message string) error {
	query := `
		UPDATE connections
		SET status = $2,
		    progress = GREATEST(progress, $3),
		    status_message = $4,
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status, progress, message)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) MarkReady(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE connections
		SET status = 'ready',
		    progress = 100,
		    status_message = NULL,
		    last_analyzed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark connection ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// MarkError records the failure cause but leaves progress where the run died,
// which is what operators want to see when diagnosing a stuck analysis.
func (r *connectionRepository) MarkError(ctx context.Context, id uuid.UUID, cause string) error {
	query := `
		UPDATE connections
		SET status = 'error',
		    status_message = $2,
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, apperrors.Truncate(cause, 500))
	if err != nil {
		return fmt.Errorf("failed to mark connection errored: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanConnection(row pgx.Row) (*models.Connection, error) {
	var conn models.Connection
	err := row.Scan(
		&conn.ID,
		&conn.Name,
		&conn.Host,
		&conn.Port,
		&conn.User,
		&conn.EncryptedPassword,
		&conn.Database,
		&conn.SSLMode,
		&conn.Status,
		&conn.Progress,
		&conn.StatusMessage,
		&conn.LastAnalyzedAt,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}
