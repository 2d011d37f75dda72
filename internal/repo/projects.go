package repo

import (
	"context"
	"database/sql"

	"ledgerline/internal/domain"
)

const projectCols = `id,org_id,client_id,name,description,pricing_type,fixed_price,hourly_rate,status,created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	var fixed, hourly sql.NullFloat64
	err := scan(&p.ID, &p.OrgID, &p.ClientID, &p.Name, &desc, &p.PricingType, &fixed, &hourly, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if fixed.Valid {
		p.FixedPrice = &fixed.Float64
	}
	if hourly.Valid {
		p.HourlyRate = &hourly.Float64
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,org_id,client_id,name,description,pricing_type,fixed_price,hourly_rate,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.OrgID, p.ClientID, p.Name, nullable(p.Description), p.PricingType,
		nullableFloatPtr(p.FixedPrice), nullableFloatPtr(p.HourlyRate), p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, orgID, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=? AND org_id=?`, id, orgID)
	return scanProject(row.Scan)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, orgID, id string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=? AND org_id=?`, id, orgID)
	return scanProject(row.Scan)
}

type ProjectFilters struct {
	ClientID string
	Status   string
}

func (r Repo) ListProjects(ctx context.Context, orgID string, f ProjectFilters) ([]domain.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects WHERE org_id=?`
	args := []any{orgID}
	if f.ClientID != "" {
		query += ` AND client_id=?`
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, description=?, pricing_type=?, fixed_price=?, hourly_rate=?, status=?, updated_at=? WHERE id=? AND org_id=?`,
		p.Name, nullable(p.Description), p.PricingType, nullableFloatPtr(p.FixedPrice), nullableFloatPtr(p.HourlyRate), p.Status, p.UpdatedAt, p.ID, p.OrgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, orgID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=? AND org_id=?`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
