package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

func (d *DB) SetLoginLink(ctx context.Context, id int64, login string) error {
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO login_link (id, login) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET login = excluded.login`,
		id, login,
	); err != nil {
		return fmt.Errorf("failed to set login link: %w", err)
	}
	return nil
}

func (d *DB) GetLoginLink(ctx context.Context, id int64) (string, error) {
	var login string
	err := d.db.QueryRowContext(ctx, `SELECT login FROM login_link WHERE id = ?`, id).Scan(&login)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get login link: %w", err)
	}
	return login, nil
}

func (d *DB) DeleteLoginLink(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM login_link WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete login link: %w", err)
	}
	return nil
}
