package repo

import (
	"context"
	"database/sql"

	"ledgerline/internal/domain"
)

func (r Repo) InsertPayment(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payments(id,invoice_id,amount,method,reference,received_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.InvoiceID, p.Amount, nullable(p.Method), nullable(p.Reference), p.ReceivedAt, p.CreatedAt)
	return err
}

func (r Repo) ListPayments(ctx context.Context, invoiceID string) ([]domain.Payment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,invoice_id,amount,method,reference,received_at,created_at FROM payments WHERE invoice_id=? ORDER BY received_at ASC, id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		var p domain.Payment
		var method, ref sql.NullString
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &method, &ref, &p.ReceivedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		if method.Valid {
			p.Method = method.String
		}
		if ref.Valid {
			p.Reference = ref.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SumPayments totals recorded payments for an invoice inside the recording tx.
func (r Repo) SumPayments(ctx context.Context, tx *sql.Tx, invoiceID string) (float64, error) {
	var sum float64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount),0) FROM payments WHERE invoice_id=?`, invoiceID).Scan(&sum)
	return sum, err
}
