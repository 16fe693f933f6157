package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Table describes how an entity maps onto a Postgres table. Columns must
// match the struct's db tags and include "id".
type Table struct {
	Name    string
	Columns []string
	OrderBy string
}

var (
	BinsTable = Table{
		Name: "bins",
		Columns: []string{
			"id", "bin_number", "location_name", "address", "latitude", "longitude",
			"status", "assigned_driver_id", "sensor_id", "fill_level", "battery_voltage",
			"temperature", "last_sensor_update", "full_since", "created_at", "updated_at",
		},
		OrderBy: "bin_number ASC",
	}

	DriversTable = Table{
		Name: "drivers",
		Columns: []string{
			"id", "name", "phone", "email", "fcm_token", "status", "assigned_bins",
			"created_at", "updated_at",
		},
		OrderBy: "name ASC",
	}

	ContainersTable = Table{
		Name: "containers",
		Columns: []string{
			"id", "container_number", "destination", "shipping_date", "status",
			"bale_count", "total_weight_kg", "created_at", "updated_at",
		},
		OrderBy: "created_at DESC",
	}

	PickupRequestsTable = Table{
		Name: "pickup_requests",
		Columns: []string{
			"id", "name", "email", "phone", "address", "latitude", "longitude",
			"pickup_date", "status", "notes", "created_at", "updated_at",
		},
		OrderBy: "created_at DESC",
	}
)

// SQLRemote is the hosted Postgres backend for one table
type SQLRemote[T Entity[T]] struct {
	db    *sqlx.DB
	table Table
}

func NewSQLRemote[T Entity[T]](db *sqlx.DB, table Table) *SQLRemote[T] {
	return &SQLRemote[T]{db: db, table: table}
}

func (r *SQLRemote[T]) GetAll(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(r.table.Columns, ", "), r.table.Name)
	if r.table.OrderBy != "" {
		query += " ORDER BY " + r.table.OrderBy
	}

	var records []T
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table.Name, err)
	}
	return records, nil
}

// Create inserts record and returns it with the id the database kept.
// ON CONFLICT makes a retried create after a timeout harmless.
func (r *SQLRemote[T]) Create(ctx context.Context, record T) (T, error) {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING RETURNING id",
		r.table.Name,
		strings.Join(r.table.Columns, ", "),
		":"+strings.Join(r.table.Columns, ", :"),
	)

	rows, err := r.db.NamedQueryContext(ctx, query, record)
	if err != nil {
		return record, fmt.Errorf("insert %s: %w", r.table.Name, err)
	}
	defer rows.Close()

	if rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return record, fmt.Errorf("insert %s: scan id: %w", r.table.Name, err)
		}
		return record.WithID(id), nil
	}
	if err := rows.Err(); err != nil {
		return record, fmt.Errorf("insert %s: %w", r.table.Name, err)
	}
	return record, nil
}

// Update upserts the full record, so a record whose create never reached the
// backend (offline) gets synced by its next update.
func (r *SQLRemote[T]) Update(ctx context.Context, record T) error {
	sets := make([]string, 0, len(r.table.Columns))
	for _, col := range r.table.Columns {
		if col == "id" || col == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		r.table.Name,
		strings.Join(r.table.Columns, ", "),
		":"+strings.Join(r.table.Columns, ", :"),
		strings.Join(sets, ", "),
	)

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update %s %s: %w", r.table.Name, record.EntityID(), err)
	}
	return nil
}

func (r *SQLRemote[T]) Delete(ctx context.Context, id string) error {
	query := r.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.table.Name))
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", r.table.Name, id, err)
	}
	return nil
}
