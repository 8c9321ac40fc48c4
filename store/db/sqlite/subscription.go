package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/itregistry/regrelay/store"
)

func (d *DB) UpsertSubscription(ctx context.Context, upsert *store.UpsertSubscription) (*store.Subscription, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sub := &store.Subscription{ID: upsert.ID, Filters: map[string]string{}}
	var filtersJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT department, filters FROM subscription WHERE id = ?`, upsert.ID,
	).Scan(&sub.Department, &filtersJSON)
	switch {
	case err == sql.ErrNoRows:
		// First touch creates the record.
	case err != nil:
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	default:
		if err := json.Unmarshal([]byte(filtersJSON), &sub.Filters); err != nil {
			return nil, fmt.Errorf("failed to parse filters for %d: %w", upsert.ID, err)
		}
		if sub.Filters == nil {
			sub.Filters = map[string]string{}
		}
	}

	if upsert.Department != nil {
		sub.Department = *upsert.Department
	}
	if upsert.FilterFieldID != nil && upsert.FilterValue != nil {
		sub.Filters[*upsert.FilterFieldID] = *upsert.FilterValue
	}

	encoded, err := json.Marshal(sub.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subscription (id, department, filters) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET department = excluded.department, filters = excluded.filters`,
		sub.ID, sub.Department, string(encoded),
	); err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subscription upsert: %w", err)
	}
	return sub, nil
}

func (d *DB) GetSubscription(ctx context.Context, id int64) (*store.Subscription, error) {
	sub := &store.Subscription{ID: id, Filters: map[string]string{}}
	var filtersJSON string
	err := d.db.QueryRowContext(ctx,
		`SELECT department, filters FROM subscription WHERE id = ?`, id,
	).Scan(&sub.Department, &filtersJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return sub, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if err := json.Unmarshal([]byte(filtersJSON), &sub.Filters); err != nil {
		return nil, fmt.Errorf("failed to parse filters for %d: %w", id, err)
	}
	if sub.Filters == nil {
		sub.Filters = map[string]string{}
	}
	return sub, nil
}

func (d *DB) RemoveSubscription(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM subscription WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}
	return nil
}

func (d *DB) SubscribersByDepartment(ctx context.Context, department string) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id FROM subscription WHERE department = ? ORDER BY id`, department)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (d *DB) SubscribersByDepartmentAndFilter(ctx context.Context, department, fieldID, value string) ([]int64, error) {
	// Filter matching happens on the decoded JSON column; the table is small
	// enough that a department-scoped scan is fine.
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, filters FROM subscription WHERE department = ? ORDER BY id`, department)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var filtersJSON string
		if err := rows.Scan(&id, &filtersJSON); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		filters := map[string]string{}
		if err := json.Unmarshal([]byte(filtersJSON), &filters); err != nil {
			return nil, fmt.Errorf("failed to parse filters for %d: %w", id, err)
		}
		if filters[fieldID] == value {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
