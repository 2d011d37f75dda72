package repo

import (
	"context"
	"database/sql"
	"strings"

	"ledgerline/internal/domain"
)

const taskCols = `id,org_id,project_id,title,description,status,assignee_id,priority,due_date,created_at,updated_at,completed_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var desc, assignee, due, completed sql.NullString
	var priority sql.NullInt64
	err := scan(&t.ID, &t.OrgID, &t.ProjectID, &t.Title, &desc, &t.Status, &assignee, &priority, &due, &t.CreatedAt, &t.UpdatedAt, &completed)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	if priority.Valid {
		p := int(priority.Int64)
		t.Priority = &p
	}
	if due.Valid {
		t.DueDate = &due.String
	}
	if completed.Valid {
		t.CompletedAt = &completed.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,org_id,project_id,title,description,status,assignee_id,priority,due_date,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OrgID, t.ProjectID, t.Title, nullable(t.Description), t.Status,
		nullableStringPtr(t.AssigneeID), nullableIntPtr(t.Priority), nullableStringPtr(t.DueDate),
		t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, assignee_id=?, priority=?, due_date=?, updated_at=?, completed_at=? WHERE id=? AND org_id=?`,
		t.Title, nullable(t.Description), t.Status, nullableStringPtr(t.AssigneeID), nullableIntPtr(t.Priority),
		nullableStringPtr(t.DueDate), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID, t.OrgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, orgID, id, status, updatedAt string, completedAt *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=?, completed_at=? WHERE id=? AND org_id=?`,
		status, updatedAt, nullableStringPtr(completedAt), id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, orgID, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=? AND org_id=?`, id, orgID)
	t, err := scanTask(row.Scan)
	if err != nil {
		return t, err
	}
	labels, err := r.listTaskLabelNames(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.Labels = labels
	return t, nil
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, orgID, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=? AND org_id=?`, id, orgID)
	return scanTask(row.Scan)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, orgID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=? AND org_id=?`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	ProjectID       string
	Status          string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, orgID string, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"org_id=?"}
	args := []any{orgID}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + taskCols + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetDependency(ctx context.Context, tx *sql.Tx, id string) (domain.TaskDependency, error) {
	var d domain.TaskDependency
	err := tx.QueryRowContext(ctx, `SELECT id,task_id,depends_on_task_id,created_at FROM task_dependencies WHERE id=?`, id).
		Scan(&d.ID, &d.TaskID, &d.DependsOnTaskID, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) DependencyExists(ctx context.Context, tx *sql.Tx, taskID, dependsOnTaskID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM task_dependencies WHERE task_id=? AND depends_on_task_id=?`, taskID, dependsOnTaskID).Scan(&n)
	return n > 0, err
}

func (r Repo) InsertDependency(ctx context.Context, tx *sql.Tx, d domain.TaskDependency) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_dependencies(id,task_id,depends_on_task_id,created_at) VALUES (?,?,?,?)`,
		d.ID, d.TaskID, d.DependsOnTaskID, d.CreatedAt)
	return err
}

func (r Repo) DeleteDependency(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDependenciesOf returns ids of tasks the given task depends on.
func (r Repo) ListDependenciesOf(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT depends_on_task_id FROM task_dependencies WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (r Repo) ListDependencies(ctx context.Context, taskID string) ([]domain.TaskDependency, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,depends_on_task_id,created_at FROM task_dependencies WHERE task_id=? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskDependency
	for rows.Next() {
		var d domain.TaskDependency
		if err := rows.Scan(&d.ID, &d.TaskID, &d.DependsOnTaskID, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ListDependentsOf returns ids of tasks that depend on the given task.
func (r Repo) ListDependentsOf(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT task_id FROM task_dependencies WHERE depends_on_task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// DependencyStatuses returns the statuses of every task the given task depends on.
func (r Repo) DependencyStatuses(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT t.status FROM task_dependencies d JOIN tasks t ON t.id=d.depends_on_task_id WHERE d.task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
