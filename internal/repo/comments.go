package repo

import (
	"context"
	"database/sql"

	"ledgerline/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, c domain.Comment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO comments(id,task_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}

func (r Repo) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	var c domain.Comment
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_id,author_id,body,created_at FROM comments WHERE id=?`, id).
		Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_id,body,created_at FROM comments WHERE task_id=? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteComment(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM comments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
