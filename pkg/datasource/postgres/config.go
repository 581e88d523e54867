// Package postgres implements datasource extraction and execution for PostgreSQL.
package postgres

import (
	"fmt"

	"github.com/lumina-data/lumina-engine/pkg/config"
	"github.com/lumina-data/lumina-engine/pkg/datasource"
)

// buildConnectionString renders ConnParams as a libpq-style connection string.
// Hosts pointing at localhost are rewritten when the engine itself runs in a
// container, so users can register databases running on the Docker host.
// Sessions are forced read-only at the server; the engine only ever reads
// from target databases.
func buildConnectionString(p *datasource.ConnParams) string {
	port := p.Port
	if port == 0 {
		port = 5432
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s options='-c default_transaction_read_only=on'",
		config.ResolveHostForDocker(p.Host), port, p.User, p.Password, p.Database, sslMode,
	)
}
