package repo

import (
	"context"
	"database/sql"
	"strings"

	"ledgerline/internal/domain"
)

const invoiceCols = `id,org_id,client_id,project_id,invoice_no,status,currency,subtotal,tax,total,issued_at,due_at,notes,created_at,updated_at`

func scanInvoice(scan func(dest ...any) error) (domain.Invoice, error) {
	var inv domain.Invoice
	var due, notes sql.NullString
	err := scan(&inv.ID, &inv.OrgID, &inv.ClientID, &inv.ProjectID, &inv.InvoiceNo, &inv.Status, &inv.Currency,
		&inv.Subtotal, &inv.Tax, &inv.Total, &inv.IssuedAt, &due, &notes, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	if due.Valid {
		inv.DueAt = &due.String
	}
	if notes.Valid {
		inv.Notes = notes.String
	}
	return inv, nil
}

func (r Repo) InsertInvoice(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invoices(id,org_id,client_id,project_id,invoice_no,status,currency,subtotal,tax,total,issued_at,due_at,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.OrgID, inv.ClientID, inv.ProjectID, inv.InvoiceNo, inv.Status, inv.Currency,
		inv.Subtotal, inv.Tax, inv.Total, inv.IssuedAt, nullableStringPtr(inv.DueAt), nullable(inv.Notes),
		inv.CreatedAt, inv.UpdatedAt)
	return err
}

func (r Repo) GetInvoice(ctx context.Context, orgID, id string) (domain.Invoice, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id=? AND org_id=?`, id, orgID)
	return scanInvoice(row.Scan)
}

func (r Repo) GetInvoiceTx(ctx context.Context, tx *sql.Tx, orgID, id string) (domain.Invoice, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id=? AND org_id=?`, id, orgID)
	return scanInvoice(row.Scan)
}

// LatestInvoiceNo returns the invoice_no of the most recently created invoice
// in the org, or "" when none exist. Callers must hold the insert transaction.
func (r Repo) LatestInvoiceNo(ctx context.Context, tx *sql.Tx, orgID string) (string, error) {
	var no string
	err := tx.QueryRowContext(ctx, `SELECT invoice_no FROM invoices WHERE org_id=? ORDER BY created_at DESC, invoice_no DESC LIMIT 1`, orgID).Scan(&no)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return no, err
}

type InvoiceFilters struct {
	ClientID  string
	ProjectID string
	Status    string
	Limit     int
}

func (r Repo) ListInvoices(ctx context.Context, orgID string, f InvoiceFilters) ([]domain.Invoice, error) {
	clauses := []string{"org_id=?"}
	args := []any{orgID}
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + invoiceCols + ` FROM invoices WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (r Repo) UpdateInvoiceTotals(ctx context.Context, tx *sql.Tx, orgID, id string, subtotal, tax, total float64, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invoices SET subtotal=?, tax=?, total=?, updated_at=? WHERE id=? AND org_id=?`,
		subtotal, tax, total, updatedAt, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateInvoiceStatus(ctx context.Context, tx *sql.Tx, orgID, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invoices SET status=?, updated_at=? WHERE id=? AND org_id=?`, status, updatedAt, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteInvoice(ctx context.Context, tx *sql.Tx, orgID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE id=? AND org_id=?`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertInvoiceLine(ctx context.Context, tx *sql.Tx, l domain.InvoiceLine) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invoice_lines(id,invoice_id,description,quantity,unit_price,amount,position) VALUES (?,?,?,?,?,?,?)`,
		l.ID, l.InvoiceID, l.Description, l.Quantity, l.UnitPrice, l.Amount, l.Position)
	return err
}

func (r Repo) DeleteInvoiceLines(ctx context.Context, tx *sql.Tx, invoiceID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM invoice_lines WHERE invoice_id=?`, invoiceID)
	return err
}

func (r Repo) ListInvoiceLines(ctx context.Context, invoiceID string) ([]domain.InvoiceLine, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,invoice_id,description,quantity,unit_price,amount,position FROM invoice_lines WHERE invoice_id=? ORDER BY position ASC, id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InvoiceLine
	for rows.Next() {
		var l domain.InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount, &l.Position); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) InsertInvoiceTimeEntry(ctx context.Context, tx *sql.Tx, s domain.InvoiceTimeEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invoice_time_entries(id,invoice_id,time_entry_id,user_name,task_title,minutes,hourly_rate,hours,amount) VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.InvoiceID, s.TimeEntryID, s.UserName, s.TaskTitle, s.Minutes, s.HourlyRate, s.Hours, s.Amount)
	return err
}

func (r Repo) DeleteInvoiceTimeEntries(ctx context.Context, tx *sql.Tx, invoiceID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM invoice_time_entries WHERE invoice_id=?`, invoiceID)
	return err
}

func (r Repo) ListInvoiceTimeEntries(ctx context.Context, invoiceID string) ([]domain.InvoiceTimeEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,invoice_id,time_entry_id,user_name,task_title,minutes,hourly_rate,hours,amount FROM invoice_time_entries WHERE invoice_id=? ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InvoiceTimeEntry
	for rows.Next() {
		var s domain.InvoiceTimeEntry
		if err := rows.Scan(&s.ID, &s.InvoiceID, &s.TimeEntryID, &s.UserName, &s.TaskTitle, &s.Minutes, &s.HourlyRate, &s.Hours, &s.Amount); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
