package engine_test

import (
	"errors"
	"testing"

	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
)

func (env *testEnv) logEntry(t *testing.T, taskID string, from, to string, billable bool) domain.TimeEntry {
	t.Helper()
	entry, err := env.Engine.LogTime(env.Ctx, env.Org.ID, engine.TimeLogOptions{
		TaskID:    taskID,
		UserID:    env.User.ID,
		StartedAt: from,
		EndedAt:   to,
		Billable:  billable,
		ActorID:   env.User.ID,
	})
	if err != nil {
		t.Fatalf("log time: %v", err)
	}
	return entry
}

func TestGenerateHourlyInvoice(t *testing.T) {
	env := newTestEnv(t)
	rate := 50.0
	project, err := env.Engine.CreateProject(env.Ctx, env.Org.ID, engine.ProjectCreateOptions{
		ClientID:    env.Client.ID,
		Name:        "Backend",
		PricingType: "hourly",
		HourlyRate:  &rate,
		ActorID:     env.User.ID,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, env.Org.ID, engine.TaskCreateOptions{
		ProjectID: project.ID, Title: "api", ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	entry := env.logEntry(t, task.ID, "2024-01-01T09:00:00Z", "2024-01-01T10:30:00Z", true)

	inv, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID:    project.ID,
		TimeEntryIDs: []string{entry.ID},
		ActorID:      env.User.ID,
	})
	if err != nil {
		t.Fatalf("generate invoice: %v", err)
	}
	if inv.InvoiceNo != "INV-001" {
		t.Fatalf("invoice no = %q, want INV-001", inv.InvoiceNo)
	}
	if inv.Status != "draft" {
		t.Fatalf("status = %q, want draft", inv.Status)
	}
	if len(inv.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(inv.Lines))
	}
	line := inv.Lines[0]
	if line.Quantity != 1.5 || line.UnitPrice != 50 || line.Amount != 75 {
		t.Fatalf("line = %.2f x %.2f = %.2f, want 1.50 x 50.00 = 75.00", line.Quantity, line.UnitPrice, line.Amount)
	}
	if inv.Subtotal != 75 || inv.Tax != 7.5 || inv.Total != 82.5 {
		t.Fatalf("totals = %.2f/%.2f/%.2f, want 75.00/7.50/82.50", inv.Subtotal, inv.Tax, inv.Total)
	}
	if len(inv.TimeEntries) != 1 || inv.TimeEntries[0].Minutes != 90 {
		t.Fatalf("snapshots = %+v, want one 90-minute row", inv.TimeEntries)
	}

	billed, err := env.Engine.Repo.GetTimeEntry(env.Ctx, env.Org.ID, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if billed.InvoiceID == nil || *billed.InvoiceID != inv.ID {
		t.Fatal("entry not marked as invoiced")
	}

	// Second billing cannot reuse the frozen entry, and numbering advances.
	if _, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	}); err == nil {
		t.Fatal("expected invoiced entry to be rejected")
	}
	other := env.logEntry(t, task.ID, "2024-01-02T09:00:00Z", "2024-01-02T10:00:00Z", true)
	second, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: project.ID, TimeEntryIDs: []string{other.ID}, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.InvoiceNo != "INV-002" {
		t.Fatalf("invoice no = %q, want INV-002", second.InvoiceNo)
	}
}

func TestGenerateFixedPriceInvoice(t *testing.T) {
	env := newTestEnv(t)
	price := 1200.0
	project, err := env.Engine.CreateProject(env.Ctx, env.Org.ID, engine.ProjectCreateOptions{
		ClientID:    env.Client.ID,
		Name:        "Logo redesign",
		PricingType: "fixed",
		FixedPrice:  &price,
		ActorID:     env.User.ID,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	inv, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: project.ID, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatalf("generate invoice: %v", err)
	}
	if len(inv.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(inv.Lines))
	}
	if inv.Lines[0].Description != "Logo redesign" || inv.Lines[0].Amount != 1200 {
		t.Fatalf("line = %+v, want the project name at the fixed price", inv.Lines[0])
	}
	if inv.Subtotal != 1200 || inv.Tax != 120 || inv.Total != 1320 {
		t.Fatalf("totals = %.2f/%.2f/%.2f, want 1200/120/1320", inv.Subtotal, inv.Tax, inv.Total)
	}
}

func TestHourlyInvoiceNeedsEntries(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, ActorID: env.User.ID,
	})
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestNonBillableEntriesRejected(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "internal work")
	entry := env.logEntry(t, task.ID, "2024-01-01T09:00:00Z", "2024-01-01T10:00:00Z", false)
	_, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	})
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestRateResolutionOrder(t *testing.T) {
	env := newTestEnv(t)

	// Client rate applies when the project has none.
	clientRate := 80.0
	client, err := env.Engine.CreateClient(env.Ctx, env.Org.ID, engine.ClientCreateOptions{
		Name: "Initech", HourlyRate: &clientRate, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	project, err := env.Engine.CreateProject(env.Ctx, env.Org.ID, engine.ProjectCreateOptions{
		ClientID: client.ID, Name: "Audit", PricingType: "hourly", ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, env.Org.ID, engine.TaskCreateOptions{
		ProjectID: project.ID, Title: "review", ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	entry := env.logEntry(t, task.ID, "2024-01-01T09:00:00Z", "2024-01-01T10:00:00Z", true)
	inv, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if inv.Lines[0].UnitPrice != 80 {
		t.Fatalf("unit price = %.2f, want the client rate 80", inv.Lines[0].UnitPrice)
	}

	// Org default applies when neither project nor client sets one.
	orgRate := 60.0
	if _, err := env.Engine.UpdateOrganization(env.Ctx, env.Org.ID, engine.OrgUpdateOptions{
		DefaultHourlyRate: &orgRate, ActorID: env.User.ID,
	}); err != nil {
		t.Fatal(err)
	}
	task2 := env.createTask(t, "no explicit rates")
	entry2 := env.logEntry(t, task2.ID, "2024-01-02T09:00:00Z", "2024-01-02T10:00:00Z", true)
	inv2, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, TimeEntryIDs: []string{entry2.ID}, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if inv2.Lines[0].UnitPrice != 60 {
		t.Fatalf("unit price = %.2f, want the org default 60", inv2.Lines[0].UnitPrice)
	}
}

func TestReplaceInvoiceLinesRecalculates(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "work")
	entry := env.logEntry(t, task.ID, "2024-01-01T09:00:00Z", "2024-01-01T10:00:00Z", true)
	inv, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	inv, err = env.Engine.ReplaceInvoiceLines(env.Ctx, env.Org.ID, inv.ID, []engine.LineInput{
		{Description: "Consulting", Quantity: 2, UnitPrice: 100},
		{Description: "Hosting", Quantity: 1, UnitPrice: 30},
	}, env.User.ID)
	if err != nil {
		t.Fatalf("replace lines: %v", err)
	}
	if len(inv.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(inv.Lines))
	}
	if inv.Subtotal != 230 || inv.Tax != 23 || inv.Total != 253 {
		t.Fatalf("totals = %.2f/%.2f/%.2f, want 230/23/253", inv.Subtotal, inv.Tax, inv.Total)
	}

	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, env.Org.ID, inv.ID, "sent", env.User.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ReplaceInvoiceLines(env.Ctx, env.Org.ID, inv.ID, []engine.LineInput{
		{Description: "Late edit", Quantity: 1, UnitPrice: 1},
	}, env.User.ID)
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want ConflictError editing a sent invoice, got %v", err)
	}
}

func TestInvoiceStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "work")
	entry := env.logEntry(t, task.ID, "2024-01-01T09:00:00Z", "2024-01-01T10:00:00Z", true)
	inv, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, env.Org.ID, inv.ID, "paid", env.User.ID); err == nil {
		t.Fatal("expected draft -> paid to be rejected")
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, env.Org.ID, inv.ID, "sent", env.User.ID); err != nil {
		t.Fatalf("draft -> sent: %v", err)
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, env.Org.ID, inv.ID, "cancelled", env.User.ID); err != nil {
		t.Fatalf("sent -> cancelled: %v", err)
	}

	// Cancelling releases the entries for a future invoice.
	released, err := env.Engine.Repo.GetTimeEntry(env.Ctx, env.Org.ID, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if released.InvoiceID != nil {
		t.Fatal("entry still attached after cancellation")
	}
	if _, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	}); err != nil {
		t.Fatalf("rebill released entry: %v", err)
	}
}

func TestPaymentsFlipInvoiceToPaid(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "work")
	entry := env.logEntry(t, task.ID, "2024-01-01T09:00:00Z", "2024-01-01T11:00:00Z", true)
	inv, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, env.Org.ID, inv.ID, "sent", env.User.ID); err != nil {
		t.Fatal(err)
	}

	// 2h at the fallback rate with 10% tax.
	if inv.Total != 110 {
		t.Fatalf("total = %.2f, want 110", inv.Total)
	}
	if _, err := env.Engine.RecordPayment(env.Ctx, env.Org.ID, inv.ID, engine.PaymentRecordOptions{
		Amount: 50, Method: "bank_transfer", ActorID: env.User.ID,
	}); err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	got, err := env.Engine.Repo.GetInvoice(env.Ctx, env.Org.ID, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "sent" {
		t.Fatalf("status after partial payment = %q, want sent", got.Status)
	}

	if _, err := env.Engine.RecordPayment(env.Ctx, env.Org.ID, inv.ID, engine.PaymentRecordOptions{
		Amount: 60, Method: "bank_transfer", ActorID: env.User.ID,
	}); err != nil {
		t.Fatalf("final payment: %v", err)
	}
	got, err = env.Engine.Repo.GetInvoice(env.Ctx, env.Org.ID, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "paid" {
		t.Fatalf("status after full payment = %q, want paid", got.Status)
	}

	if _, err := env.Engine.RecordPayment(env.Ctx, env.Org.ID, inv.ID, engine.PaymentRecordOptions{
		Amount: 0, ActorID: env.User.ID,
	}); err == nil {
		t.Fatal("expected zero amount to be rejected")
	}
}

func TestDeleteInvoiceReleasesEntries(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "work")
	entry := env.logEntry(t, task.ID, "2024-01-01T09:00:00Z", "2024-01-01T10:00:00Z", true)
	inv, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	// While attached, the entry cannot be deleted.
	err = env.Engine.DeleteTimeEntry(env.Ctx, env.Org.ID, entry.ID, env.User.ID)
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want ConflictError deleting invoiced entry, got %v", err)
	}

	if err := env.Engine.DeleteInvoice(env.Ctx, env.Org.ID, inv.ID, env.User.ID); err != nil {
		t.Fatalf("delete invoice: %v", err)
	}
	released, err := env.Engine.Repo.GetTimeEntry(env.Ctx, env.Org.ID, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if released.InvoiceID != nil {
		t.Fatal("entry still attached after invoice deletion")
	}

	sent, err := env.Engine.GenerateInvoice(env.Ctx, env.Org.ID, engine.InvoiceGenerateOptions{
		ProjectID: env.Project.ID, TimeEntryIDs: []string{entry.ID}, ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, env.Org.ID, sent.ID, "sent", env.User.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteInvoice(env.Ctx, env.Org.ID, sent.ID, env.User.ID); err == nil {
		t.Fatal("expected delete of a sent invoice to fail")
	}
}
