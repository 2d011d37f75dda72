package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
	"ledgerline/internal/engine/authz"
	"ledgerline/internal/repo"
)

func (s svc) registerInvoices(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-invoice",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/invoices",
		Summary:       "Generate an invoice for a project",
		Description:   "Fixed-price projects bill one line; hourly projects bill the given uninvoiced billable time entries.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  GenerateInvoiceRequest
	}) (*response[domain.Invoice], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionInvoiceWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		inv, err := s.e.GenerateInvoice(ctx, input.OrgID, engine.InvoiceGenerateOptions{
			ProjectID:    input.Body.ProjectID,
			TimeEntryIDs: input.Body.TimeEntryIDs,
			DueAt:        input.Body.DueAt,
			Notes:        input.Body.Notes,
			ActorID:      p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(inv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invoices",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/invoices",
		Summary:     "List invoices",
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		ClientID  string `query:"client_id"`
		ProjectID string `query:"project_id"`
		Status    string `query:"status"`
		Limit     int    `query:"limit" minimum:"1" maximum:"200"`
	}) (*response[[]domain.Invoice], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionInvoiceRead); err != nil {
			return nil, s.handleError(err)
		}
		invoices, err := s.e.Repo.ListInvoices(ctx, input.OrgID, repo.InvoiceFilters{
			ClientID:  input.ClientID,
			ProjectID: input.ProjectID,
			Status:    input.Status,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(invoices)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-invoice",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/invoices/{invoice_id}",
		Summary:     "Get an invoice with its lines",
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		InvoiceID string `path:"invoice_id"`
	}) (*response[domain.Invoice], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionInvoiceRead); err != nil {
			return nil, s.handleError(err)
		}
		inv, err := s.e.GetInvoice(ctx, input.OrgID, input.InvoiceID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(inv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-invoice-lines",
		Method:      http.MethodPut,
		Path:        "/orgs/{org_id}/invoices/{invoice_id}/lines",
		Summary:     "Replace a draft invoice's lines and recalculate totals",
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		InvoiceID string `path:"invoice_id"`
		Body      ReplaceInvoiceLinesRequest
	}) (*response[domain.Invoice], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionInvoiceWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		lines := make([]engine.LineInput, 0, len(input.Body.Lines))
		for _, l := range input.Body.Lines {
			lines = append(lines, engine.LineInput{
				Description: l.Description,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
			})
		}
		inv, err := s.e.ReplaceInvoiceLines(ctx, input.OrgID, input.InvoiceID, lines, p.UserID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(inv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-invoice-status",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/invoices/{invoice_id}/status",
		Summary:     "Transition an invoice's status",
		Description: "Allowed transitions: draft to sent or cancelled, sent to paid or cancelled. Cancelling releases the billed time entries.",
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		InvoiceID string `path:"invoice_id"`
		Body      SetInvoiceStatusRequest
	}) (*response[domain.Invoice], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionInvoiceWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		inv, err := s.e.SetInvoiceStatus(ctx, input.OrgID, input.InvoiceID, input.Body.Status, p.UserID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(inv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-invoice",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/invoices/{invoice_id}",
		Summary:       "Delete a draft invoice",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		InvoiceID string `path:"invoice_id"`
	}) (*struct{}, error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionInvoiceWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.DeleteInvoice(ctx, input.OrgID, input.InvoiceID, p.UserID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-payment",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/invoices/{invoice_id}/payments",
		Summary:       "Record a payment against an invoice",
		Description:   "When payments cover the total, the invoice flips to paid.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		InvoiceID string `path:"invoice_id"`
		Body      RecordPaymentRequest
	}) (*response[domain.Payment], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionPaymentWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		payment, err := s.e.RecordPayment(ctx, input.OrgID, input.InvoiceID, engine.PaymentRecordOptions{
			Amount:     input.Body.Amount,
			Method:     input.Body.Method,
			Reference:  input.Body.Reference,
			ReceivedAt: input.Body.ReceivedAt,
			ActorID:    p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(payment), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-payments",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/invoices/{invoice_id}/payments",
		Summary:     "List payments for an invoice",
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		InvoiceID string `path:"invoice_id"`
	}) (*response[[]domain.Payment], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionPaymentRead); err != nil {
			return nil, s.handleError(err)
		}
		if _, err := s.e.Repo.GetInvoice(ctx, input.OrgID, input.InvoiceID); err != nil {
			return nil, s.handleError(err)
		}
		payments, err := s.e.Repo.ListPayments(ctx, input.InvoiceID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(payments)), nil
	})
}
