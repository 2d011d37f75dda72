package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
	"ledgerline/internal/engine/authz"
)

func (s svc) registerClients(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/clients",
		Summary:       "Create a client",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  CreateClientRequest
	}) (*response[domain.Client], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionClientWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		c, err := s.e.CreateClient(ctx, input.OrgID, engine.ClientCreateOptions{
			Name:       input.Body.Name,
			Email:      input.Body.Email,
			HourlyRate: input.Body.HourlyRate,
			Notes:      input.Body.Notes,
			ActorID:    p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*response[[]domain.Client], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionClientRead); err != nil {
			return nil, s.handleError(err)
		}
		clients, err := s.e.Repo.ListClients(ctx, input.OrgID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(clients)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/clients/{client_id}",
		Summary:     "Get a client",
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		ClientID string `path:"client_id"`
	}) (*response[domain.Client], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionClientRead); err != nil {
			return nil, s.handleError(err)
		}
		c, err := s.e.Repo.GetClient(ctx, input.OrgID, input.ClientID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-client",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/clients/{client_id}",
		Summary:     "Update a client",
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		ClientID string `path:"client_id"`
		Body     UpdateClientRequest
	}) (*response[domain.Client], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionClientWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		c, err := s.e.UpdateClient(ctx, input.OrgID, input.ClientID, engine.ClientUpdateOptions{
			Name:       input.Body.Name,
			Email:      input.Body.Email,
			HourlyRate: input.Body.HourlyRate,
			ClearRate:  input.Body.ClearHourlyRate,
			Notes:      input.Body.Notes,
			ActorID:    p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-client",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/clients/{client_id}",
		Summary:       "Delete a client",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		ClientID string `path:"client_id"`
	}) (*struct{}, error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionClientWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.DeleteClient(ctx, input.OrgID, input.ClientID, p.UserID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})
}
