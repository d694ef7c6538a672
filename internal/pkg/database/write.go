package database

import (
	"context"
	"time"

	"github.com/anicoll/pool-integration/internal/pkg/model"
)

func (db *Database) Write(ctx context.Context, address string, drivers []model.Driver) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now().UTC()
	for _, d := range drivers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO driver_value (time_stamp, address, driver, value, uom)
			VALUES ($1, $2, $3, $4, $5)
		`, now, address, d.Code.String(), d.Value, int(d.UOM)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (db *Database) RegisterNode(ctx context.Context, node model.NodeInfo) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO node (address, name, node_def_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET name = EXCLUDED.name, node_def_id = EXCLUDED.node_def_id, updated_at = now();`,
		node.Address, node.Name, node.NodeDefID)
	return err
}
