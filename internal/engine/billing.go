package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"ledgerline/internal/domain"
	"ledgerline/internal/events"
)

// fallbackHourlyRate applies when neither project, client nor org sets one.
const fallbackHourlyRate = 50

// resolveHourlyRate picks the most specific configured rate.
func resolveHourlyRate(projectRate, clientRate, orgRate *float64) float64 {
	switch {
	case projectRate != nil:
		return *projectRate
	case clientRate != nil:
		return *clientRate
	case orgRate != nil:
		return *orgRate
	}
	return fallbackHourlyRate
}

// computeTotals derives tax and total from a subtotal and a percent tax rate.
func computeTotals(subtotal, taxRate float64) (tax, total float64) {
	tax = subtotal * (taxRate / 100)
	return tax, subtotal + tax
}

// nextInvoiceNo increments the numeric suffix of the previous number.
// Numbers look like INV-001; an unparseable or absent predecessor restarts
// the sequence.
func nextInvoiceNo(latest string) string {
	if strings.HasPrefix(latest, "INV-") {
		if n, err := strconv.Atoi(latest[len("INV-"):]); err == nil {
			return fmt.Sprintf("INV-%03d", n+1)
		}
	}
	return "INV-001"
}

type InvoiceGenerateOptions struct {
	ProjectID    string
	TimeEntryIDs []string
	DueAt        *string
	Notes        string
	ActorID      string
}

// GenerateInvoice builds a draft invoice for a project. Fixed-price projects
// get a single line for the agreed price; hourly projects get one line per
// billable time entry, priced at the project rate, falling back to the client
// then the org rate. Time entries are frozen into snapshot rows and marked
// as invoiced. Numbering, lines and totals are written in one transaction.
func (e Engine) GenerateInvoice(ctx context.Context, orgID string, opts InvoiceGenerateOptions) (domain.Invoice, error) {
	org, err := e.Repo.GetOrganization(ctx, orgID)
	if err != nil {
		return domain.Invoice{}, err
	}
	project, err := e.Repo.GetProject(ctx, orgID, opts.ProjectID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if project.PricingType == "hourly" && len(opts.TimeEntryIDs) == 0 {
		return domain.Invoice{}, validationf("hourly invoice needs time entries")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	latest, err := e.Repo.LatestInvoiceNo(ctx, tx, orgID)
	if err != nil {
		return domain.Invoice{}, err
	}
	now := e.timestamp()
	inv := domain.Invoice{
		ID:        newID(),
		OrgID:     orgID,
		ClientID:  project.ClientID,
		ProjectID: project.ID,
		InvoiceNo: nextInvoiceNo(latest),
		Status:    "draft",
		Currency:  org.Currency,
		IssuedAt:  now,
		DueAt:     opts.DueAt,
		Notes:     opts.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	lines, snapshots, billedIDs, err := e.buildLineItems(ctx, tx, org, project, inv.ID, opts.TimeEntryIDs)
	if err != nil {
		return domain.Invoice{}, err
	}
	var subtotal float64
	for _, l := range lines {
		subtotal += l.Amount
	}
	inv.Subtotal = subtotal
	inv.Tax, inv.Total = computeTotals(subtotal, org.TaxRate)

	if err := e.Repo.InsertInvoice(ctx, tx, inv); err != nil {
		return domain.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	for _, l := range lines {
		if err := e.Repo.InsertInvoiceLine(ctx, tx, l); err != nil {
			return domain.Invoice{}, err
		}
	}
	for _, s := range snapshots {
		if err := e.Repo.InsertInvoiceTimeEntry(ctx, tx, s); err != nil {
			return domain.Invoice{}, err
		}
	}
	if err := e.Repo.MarkEntriesInvoiced(ctx, tx, inv.ID, billedIDs); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Events.Append(ctx, tx, "invoice.generated", orgID, "invoice", inv.ID, opts.ActorID, events.EventPayload{"invoice_no": inv.InvoiceNo, "total": inv.Total}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	inv.Lines = lines
	inv.TimeEntries = snapshots
	return inv, nil
}

func (e Engine) buildLineItems(ctx context.Context, tx *sql.Tx, org domain.Organization, project domain.Project, invoiceID string, entryIDs []string) ([]domain.InvoiceLine, []domain.InvoiceTimeEntry, []string, error) {
	if project.PricingType == "fixed" {
		price := 0.0
		if project.FixedPrice != nil {
			price = *project.FixedPrice
		}
		line := domain.InvoiceLine{
			ID:          newID(),
			InvoiceID:   invoiceID,
			Description: project.Name,
			Quantity:    1,
			UnitPrice:   price,
			Amount:      price,
			Position:    0,
		}
		return []domain.InvoiceLine{line}, nil, nil, nil
	}

	billable, err := e.Repo.ListBillableEntries(ctx, tx, org.ID, project.ID, entryIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(billable) != len(entryIDs) {
		return nil, nil, nil, validationf("some time entries are missing, non-billable or already invoiced")
	}
	var (
		lines     []domain.InvoiceLine
		snapshots []domain.InvoiceTimeEntry
		billedIDs []string
	)
	for i, b := range billable {
		rate := resolveHourlyRate(b.ProjectRate, b.ClientRate, org.DefaultHourlyRate)
		hours := float64(b.Entry.Minutes) / 60
		amount := hours * rate
		lines = append(lines, domain.InvoiceLine{
			ID:          newID(),
			InvoiceID:   invoiceID,
			Description: fmt.Sprintf("%s: %s", b.UserName, b.TaskTitle),
			Quantity:    hours,
			UnitPrice:   rate,
			Amount:      amount,
			Position:    i,
		})
		snapshots = append(snapshots, domain.InvoiceTimeEntry{
			ID:          newID(),
			InvoiceID:   invoiceID,
			TimeEntryID: b.Entry.ID,
			UserName:    b.UserName,
			TaskTitle:   b.TaskTitle,
			Minutes:     b.Entry.Minutes,
			HourlyRate:  rate,
			Hours:       hours,
			Amount:      amount,
		})
		billedIDs = append(billedIDs, b.Entry.ID)
	}
	return lines, snapshots, billedIDs, nil
}

// GetInvoice loads an invoice with its lines and frozen time entries.
func (e Engine) GetInvoice(ctx context.Context, orgID, invoiceID string) (domain.Invoice, error) {
	inv, err := e.Repo.GetInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	lines, err := e.Repo.ListInvoiceLines(ctx, inv.ID)
	if err != nil {
		return domain.Invoice{}, err
	}
	snapshots, err := e.Repo.ListInvoiceTimeEntries(ctx, inv.ID)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv.Lines = lines
	inv.TimeEntries = snapshots
	return inv, nil
}

type LineInput struct {
	Description string
	Quantity    float64
	UnitPrice   float64
}

// ReplaceInvoiceLines swaps a draft invoice's lines for the given set and
// recalculates totals. Hourly snapshots are untouched.
func (e Engine) ReplaceInvoiceLines(ctx context.Context, orgID, invoiceID string, inputs []LineInput, actorID string) (domain.Invoice, error) {
	if len(inputs) == 0 {
		return domain.Invoice{}, validationf("at least one line required")
	}
	org, err := e.Repo.GetOrganization(ctx, orgID)
	if err != nil {
		return domain.Invoice{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	inv, err := e.Repo.GetInvoiceTx(ctx, tx, orgID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.Status != "draft" {
		return domain.Invoice{}, conflictf("only draft invoices can be edited")
	}
	if err := e.Repo.DeleteInvoiceLines(ctx, tx, inv.ID); err != nil {
		return domain.Invoice{}, err
	}
	var subtotal float64
	for i, in := range inputs {
		if strings.TrimSpace(in.Description) == "" {
			return domain.Invoice{}, validationf("line %d: description required", i+1)
		}
		if in.Quantity <= 0 {
			return domain.Invoice{}, validationf("line %d: quantity must be positive", i+1)
		}
		amount := in.Quantity * in.UnitPrice
		subtotal += amount
		if err := e.Repo.InsertInvoiceLine(ctx, tx, domain.InvoiceLine{
			ID:          newID(),
			InvoiceID:   inv.ID,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Amount:      amount,
			Position:    i,
		}); err != nil {
			return domain.Invoice{}, err
		}
	}
	tax, total := computeTotals(subtotal, org.TaxRate)
	now := e.timestamp()
	if err := e.Repo.UpdateInvoiceTotals(ctx, tx, orgID, inv.ID, subtotal, tax, total, now); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Events.Append(ctx, tx, "invoice.recalculated", orgID, "invoice", inv.ID, actorID, events.EventPayload{"total": total}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	return e.GetInvoice(ctx, orgID, invoiceID)
}

var invoiceTransitions = map[string][]string{
	"draft": {"sent", "cancelled"},
	"sent":  {"paid", "cancelled"},
}

func (e Engine) SetInvoiceStatus(ctx context.Context, orgID, invoiceID, status, actorID string) (domain.Invoice, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	inv, err := e.Repo.GetInvoiceTx(ctx, tx, orgID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	allowed := false
	for _, next := range invoiceTransitions[inv.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.Invoice{}, conflictf("cannot move invoice from %s to %s", inv.Status, status)
	}
	now := e.timestamp()
	if err := e.Repo.UpdateInvoiceStatus(ctx, tx, orgID, inv.ID, status, now); err != nil {
		return domain.Invoice{}, err
	}
	if status == "cancelled" {
		// Cancelled invoices release their entries for future billing.
		if err := e.Repo.ClearEntriesInvoiced(ctx, tx, inv.ID); err != nil {
			return domain.Invoice{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "invoice.status_changed", orgID, "invoice", inv.ID, actorID, events.EventPayload{"status": status}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	inv.Status = status
	inv.UpdatedAt = now
	return inv, nil
}

// DeleteInvoice removes a draft invoice and releases its time entries.
func (e Engine) DeleteInvoice(ctx context.Context, orgID, invoiceID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	inv, err := e.Repo.GetInvoiceTx(ctx, tx, orgID, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status != "draft" {
		return conflictf("only draft invoices can be deleted")
	}
	if err := e.Repo.ClearEntriesInvoiced(ctx, tx, inv.ID); err != nil {
		return err
	}
	if err := e.Repo.DeleteInvoiceLines(ctx, tx, inv.ID); err != nil {
		return err
	}
	if err := e.Repo.DeleteInvoiceTimeEntries(ctx, tx, inv.ID); err != nil {
		return err
	}
	if err := e.Repo.DeleteInvoice(ctx, tx, orgID, inv.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "invoice.deleted", orgID, "invoice", inv.ID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

type PaymentRecordOptions struct {
	Amount     float64
	Method     string
	Reference  string
	ReceivedAt string
	ActorID    string
}

// RecordPayment registers a payment against an invoice. When payments cover
// the total, the invoice flips to paid.
func (e Engine) RecordPayment(ctx context.Context, orgID, invoiceID string, opts PaymentRecordOptions) (domain.Payment, error) {
	if opts.Amount <= 0 {
		return domain.Payment{}, validationf("amount must be positive")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()

	inv, err := e.Repo.GetInvoiceTx(ctx, tx, orgID, invoiceID)
	if err != nil {
		return domain.Payment{}, err
	}
	if inv.Status == "cancelled" {
		return domain.Payment{}, conflictf("invoice is cancelled")
	}
	now := e.timestamp()
	receivedAt := opts.ReceivedAt
	if receivedAt == "" {
		receivedAt = now
	}
	p := domain.Payment{
		ID:         newID(),
		InvoiceID:  inv.ID,
		Amount:     opts.Amount,
		Method:     opts.Method,
		Reference:  opts.Reference,
		ReceivedAt: receivedAt,
		CreatedAt:  now,
	}
	if err := e.Repo.InsertPayment(ctx, tx, p); err != nil {
		return domain.Payment{}, err
	}
	paid, err := e.Repo.SumPayments(ctx, tx, inv.ID)
	if err != nil {
		return domain.Payment{}, err
	}
	if paid >= inv.Total && inv.Status != "paid" {
		if err := e.Repo.UpdateInvoiceStatus(ctx, tx, orgID, inv.ID, "paid", now); err != nil {
			return domain.Payment{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "payment.recorded", orgID, "payment", p.ID, opts.ActorID, events.EventPayload{"invoice_id": inv.ID, "amount": p.Amount}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}
