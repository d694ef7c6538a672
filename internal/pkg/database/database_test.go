package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/anicoll/pool-integration/internal/pkg/database/migration"
	"github.com/anicoll/pool-integration/internal/pkg/model"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pool"),
		postgres.WithUsername("pool"),
		postgres.WithPassword("pool"),
		postgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(ctr)
	})
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrations, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migration.Migrate(dsn, migrations))
	// second run is a no-op
	require.NoError(t, migration.Migrate(dsn, migrations))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	db := NewDatabase(pool)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestDatabase_WriteAndRead(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	node := model.NodeInfo{Address: "spa_heat", Name: "Spa Heat", NodeDefID: "TEMPERATURE"}
	require.NoError(t, db.RegisterNode(ctx, node))
	require.NoError(t, db.RegisterNode(ctx, node))

	require.NoError(t, db.Write(ctx, "spa_heat", []model.Driver{
		{Code: model.DriverStatus, Value: 1, UOM: model.UOMIndex},
		{Code: model.DriverHeatSetpoint, Value: 90, UOM: model.UOMFahrenheit},
	}))
	require.NoError(t, db.Write(ctx, "spa_heat", []model.Driver{
		{Code: model.DriverHeatSetpoint, Value: 92, UOM: model.UOMFahrenheit},
	}))

	history, err := db.GetDriverHistory(ctx, "spa_heat", model.DriverHeatSetpoint, nil, nil)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 92.0, history[0].Value)
	assert.Equal(t, model.UOMFahrenheit, history[0].UOM)

	latest, err := db.GetLatestDrivers(ctx, "spa_heat")
	require.NoError(t, err)
	require.Len(t, latest, 2)

	empty, err := db.GetDriverHistory(ctx, "pool_heat", model.DriverStatus, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDatabase_Cleanup(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	_, err := db.pool.Exec(ctx, `
		INSERT INTO driver_value (time_stamp, address, driver, value, uom)
		VALUES ($1, 'circuit1', 'ST', 1, 25), ($2, 'circuit1', 'ST', 0, 25)`,
		time.Now().AddDate(0, 0, -10), time.Now())
	require.NoError(t, err)

	deleted, err := db.Cleanup(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	history, err := db.GetDriverHistory(ctx, "circuit1", model.DriverStatus, nil, nil)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
