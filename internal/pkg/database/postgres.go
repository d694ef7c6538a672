package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database stores node registrations and driver history in Postgres.
type Database struct {
	pool *pgxpool.Pool
}

func NewDatabase(pool *pgxpool.Pool) *Database {
	return &Database{
		pool: pool,
	}
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}
