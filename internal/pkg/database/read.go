package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/pool-integration/internal/pkg/model"
)

// GetDriverHistory returns the stored values of one driver, newest first. A
// nil bound defaults to the last two days.
func (db *Database) GetDriverHistory(ctx context.Context, address string, driver model.DriverCode, from, to *time.Time) (model.DriverValues, error) {
	if from == nil || to == nil {
		now := time.Now()
		start := now.AddDate(0, 0, -2)
		from, to = &start, &now
	}
	const query = `
	SELECT id, time_stamp, address, driver, value, uom
	FROM driver_value
	WHERE address = $1 AND driver = $2 AND time_stamp BETWEEN $3 AND $4
	ORDER BY time_stamp DESC, id DESC;
	`

	rows, err := db.pool.Query(ctx, query, address, driver.String(), *from, *to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDriverValues(rows)
}

// GetLatestDrivers returns the newest stored value of every driver of a node.
func (db *Database) GetLatestDrivers(ctx context.Context, address string) (model.DriverValues, error) {
	const query = `
	SELECT DISTINCT ON (driver) id, time_stamp, address, driver, value, uom
	FROM driver_value
	WHERE address = $1
	ORDER BY driver, time_stamp DESC, id DESC;
	`

	rows, err := db.pool.Query(ctx, query, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDriverValues(rows)
}

func scanDriverValues(rows pgx.Rows) (model.DriverValues, error) {
	var values model.DriverValues
	for rows.Next() {
		var (
			v      model.DriverValue
			driver string
			uom    int
		)
		if err := rows.Scan(&v.Id, &v.TimeStamp, &v.Address, &driver, &v.Value, &uom); err != nil {
			return nil, err
		}
		v.Driver = model.DriverCode(driver)
		v.UOM = model.UOM(uom)
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return values, nil
}
