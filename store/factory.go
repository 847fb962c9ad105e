package store

import (
	"fmt"
	"strings"
)

// Open creates a store based on the DSN.
// - Empty DSN: SQLite at data/resurface.db
// - memory://: in-memory store
// - chromem://: in-memory store indexed by chromem-go
// - postgres:// or postgresql://: PostgreSQL with pgvector
// - Anything else: SQLite at the specified path
//
// dimension is only used by PostgreSQL, whose embedding column is fixed-width.
func Open(dsn string, dimension int, opts ...Option) (Store, error) {
	switch {
	case dsn == "":
		return NewSQLiteStore(DefaultSQLitePath, opts...)
	case dsn == "memory://":
		return NewMemoryStore(opts...), nil
	case dsn == "chromem://":
		s, err := NewChromemStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("chromem: %w", err)
		}
		return s, nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		s, err := NewPostgresStore(dsn, dimension, opts...)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	default:
		return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"), opts...)
	}
}

// Kind names the backend a DSN selects, for logging.
func Kind(dsn string) string {
	switch {
	case dsn == "memory://":
		return "memory"
	case dsn == "chromem://":
		return "chromem"
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	default:
		return "sqlite"
	}
}
