// Package db wires the Postgres connection pool, schema migrations and
// the file metadata repository together.
package db

import (
	"context"
	"database/sql"

	"github.com/cipherdrop/cipherdrop/internal/server/repositories/files"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Files() files.Repository
	Close() error
}
