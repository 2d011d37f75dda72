package repo

import (
	"context"
	"database/sql"

	"ledgerline/internal/domain"
)

func (r Repo) InsertLabel(ctx context.Context, l domain.Label) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO labels(id,org_id,name,color) VALUES (?,?,?,?)`,
		l.ID, l.OrgID, l.Name, nullable(l.Color))
	return err
}

func (r Repo) GetLabel(ctx context.Context, orgID, id string) (domain.Label, error) {
	var l domain.Label
	var color sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,org_id,name,color FROM labels WHERE id=? AND org_id=?`, id, orgID).
		Scan(&l.ID, &l.OrgID, &l.Name, &color)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if color.Valid {
		l.Color = color.String
	}
	return l, err
}

func (r Repo) LabelExistsByName(ctx context.Context, orgID, name string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM labels WHERE org_id=? AND name=?`, orgID, name).Scan(&n)
	return n > 0, err
}

func (r Repo) ListLabels(ctx context.Context, orgID string) ([]domain.Label, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,name,color FROM labels WHERE org_id=? ORDER BY name ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Label
	for rows.Next() {
		var l domain.Label
		var color sql.NullString
		if err := rows.Scan(&l.ID, &l.OrgID, &l.Name, &color); err != nil {
			return nil, err
		}
		if color.Valid {
			l.Color = color.String
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) DeleteLabel(ctx context.Context, orgID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM labels WHERE id=? AND org_id=?`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AttachLabel(ctx context.Context, taskID, labelID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO task_labels(task_id,label_id) VALUES (?,?)`, taskID, labelID)
	return err
}

func (r Repo) DetachLabel(ctx context.Context, taskID, labelID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM task_labels WHERE task_id=? AND label_id=?`, taskID, labelID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listTaskLabelNames(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT l.name FROM task_labels tl JOIN labels l ON l.id=tl.label_id WHERE tl.task_id=? ORDER BY l.name ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}
