package repo

import (
	"context"
	"database/sql"

	"ledgerline/internal/domain"
)

func scanClient(scan func(dest ...any) error) (domain.Client, error) {
	var c domain.Client
	var email, notes sql.NullString
	var rate sql.NullFloat64
	err := scan(&c.ID, &c.OrgID, &c.Name, &email, &rate, &notes, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if email.Valid {
		c.Email = email.String
	}
	if rate.Valid {
		c.HourlyRate = &rate.Float64
	}
	if notes.Valid {
		c.Notes = notes.String
	}
	return c, nil
}

const clientCols = `id,org_id,name,email,hourly_rate,notes,created_at,updated_at`

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO clients(id,org_id,name,email,hourly_rate,notes,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.OrgID, c.Name, nullable(c.Email), nullableFloatPtr(c.HourlyRate), nullable(c.Notes), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, orgID, id string) (domain.Client, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+clientCols+` FROM clients WHERE id=? AND org_id=?`, id, orgID)
	return scanClient(row.Scan)
}

func (r Repo) ListClients(ctx context.Context, orgID string) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+clientCols+` FROM clients WHERE org_id=? ORDER BY created_at DESC, id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		c, err := scanClient(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	res, err := tx.ExecContext(ctx, `UPDATE clients SET name=?, email=?, hourly_rate=?, notes=?, updated_at=? WHERE id=? AND org_id=?`,
		c.Name, nullable(c.Email), nullableFloatPtr(c.HourlyRate), nullable(c.Notes), c.UpdatedAt, c.ID, c.OrgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteClient(ctx context.Context, tx *sql.Tx, orgID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE id=? AND org_id=?`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
