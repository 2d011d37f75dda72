package repo

import (
	"context"
	"database/sql"
	"strings"

	"ledgerline/internal/domain"
)

const timeEntryCols = `id,org_id,task_id,user_id,description,started_at,ended_at,minutes,billable,invoice_id,created_at`

func scanTimeEntry(scan func(dest ...any) error) (domain.TimeEntry, error) {
	var e domain.TimeEntry
	var desc, ended, invoiceID sql.NullString
	err := scan(&e.ID, &e.OrgID, &e.TaskID, &e.UserID, &desc, &e.StartedAt, &ended, &e.Minutes, &e.Billable, &invoiceID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if desc.Valid {
		e.Description = desc.String
	}
	if ended.Valid {
		e.EndedAt = &ended.String
	}
	if invoiceID.Valid {
		e.InvoiceID = &invoiceID.String
	}
	return e, nil
}

func (r Repo) InsertTimeEntry(ctx context.Context, tx *sql.Tx, e domain.TimeEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO time_entries(id,org_id,task_id,user_id,description,started_at,ended_at,minutes,billable,invoice_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.OrgID, e.TaskID, e.UserID, nullable(e.Description), e.StartedAt,
		nullableStringPtr(e.EndedAt), e.Minutes, e.Billable, nullableStringPtr(e.InvoiceID), e.CreatedAt)
	return err
}

func (r Repo) GetTimeEntry(ctx context.Context, orgID, id string) (domain.TimeEntry, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+timeEntryCols+` FROM time_entries WHERE id=? AND org_id=?`, id, orgID)
	return scanTimeEntry(row.Scan)
}

func (r Repo) GetTimeEntryTx(ctx context.Context, tx *sql.Tx, orgID, id string) (domain.TimeEntry, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+timeEntryCols+` FROM time_entries WHERE id=? AND org_id=?`, id, orgID)
	return scanTimeEntry(row.Scan)
}

// RunningTimeEntry finds the open entry (no ended_at) for a user on a task.
func (r Repo) RunningTimeEntry(ctx context.Context, tx *sql.Tx, taskID, userID string) (domain.TimeEntry, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+timeEntryCols+` FROM time_entries WHERE task_id=? AND user_id=? AND ended_at IS NULL`, taskID, userID)
	return scanTimeEntry(row.Scan)
}

func (r Repo) StopTimeEntry(ctx context.Context, tx *sql.Tx, id, endedAt string, minutes int) error {
	res, err := tx.ExecContext(ctx, `UPDATE time_entries SET ended_at=?, minutes=? WHERE id=? AND ended_at IS NULL`, endedAt, minutes, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTimeEntry(ctx context.Context, tx *sql.Tx, orgID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM time_entries WHERE id=? AND org_id=?`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TimeEntryFilters struct {
	TaskID   string
	UserID   string
	Billable *bool
	Open     bool
	Limit    int
}

func (r Repo) ListTimeEntries(ctx context.Context, orgID string, f TimeEntryFilters) ([]domain.TimeEntry, error) {
	clauses := []string{"org_id=?"}
	args := []any{orgID}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Billable != nil {
		clauses = append(clauses, "billable=?")
		args = append(args, *f.Billable)
	}
	if f.Open {
		clauses = append(clauses, "ended_at IS NULL")
	}
	query := `SELECT ` + timeEntryCols + ` FROM time_entries WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY started_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// BillableEntry carries a time entry together with the names and rates the
// invoice builder needs to price it.
type BillableEntry struct {
	Entry       domain.TimeEntry
	UserName    string
	TaskTitle   string
	ProjectRate *float64
	ClientRate  *float64
}

// ListBillableEntries loads the given entries with pricing context, scoped to
// the org and project. Entries already attached to an invoice are excluded.
func (r Repo) ListBillableEntries(ctx context.Context, tx *sql.Tx, orgID, projectID string, entryIDs []string) ([]BillableEntry, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(entryIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{orgID, projectID}
	for _, id := range entryIDs {
		args = append(args, id)
	}
	query := `SELECT e.id,e.org_id,e.task_id,e.user_id,e.description,e.started_at,e.ended_at,e.minutes,e.billable,e.invoice_id,e.created_at,
u.name, t.title, p.hourly_rate, c.hourly_rate
FROM time_entries e
JOIN users u ON u.id=e.user_id
JOIN tasks t ON t.id=e.task_id
JOIN projects p ON p.id=t.project_id
JOIN clients c ON c.id=p.client_id
WHERE e.org_id=? AND t.project_id=? AND e.billable=1 AND e.invoice_id IS NULL AND e.id IN (` + placeholders + `)
ORDER BY e.started_at ASC, e.id ASC`
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []BillableEntry
	for rows.Next() {
		var b BillableEntry
		var desc, ended, invoiceID sql.NullString
		var projectRate, clientRate sql.NullFloat64
		e := &b.Entry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.TaskID, &e.UserID, &desc, &e.StartedAt, &ended, &e.Minutes, &e.Billable, &invoiceID, &e.CreatedAt,
			&b.UserName, &b.TaskTitle, &projectRate, &clientRate); err != nil {
			return nil, err
		}
		if desc.Valid {
			e.Description = desc.String
		}
		if ended.Valid {
			e.EndedAt = &ended.String
		}
		if invoiceID.Valid {
			e.InvoiceID = &invoiceID.String
		}
		if projectRate.Valid {
			b.ProjectRate = &projectRate.Float64
		}
		if clientRate.Valid {
			b.ClientRate = &clientRate.Float64
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) MarkEntriesInvoiced(ctx context.Context, tx *sql.Tx, invoiceID string, entryIDs []string) error {
	for _, id := range entryIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE time_entries SET invoice_id=? WHERE id=?`, invoiceID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ClearEntriesInvoiced(ctx context.Context, tx *sql.Tx, invoiceID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE time_entries SET invoice_id=NULL WHERE invoice_id=?`, invoiceID)
	return err
}
