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

func (s svc) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/projects",
		Summary:       "Create a project",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  CreateProjectRequest
	}) (*response[domain.Project], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionProjectWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		proj, err := s.e.CreateProject(ctx, input.OrgID, engine.ProjectCreateOptions{
			ClientID:    input.Body.ClientID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			PricingType: input.Body.PricingType,
			FixedPrice:  input.Body.FixedPrice,
			HourlyRate:  input.Body.HourlyRate,
			ActorID:     p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(proj), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		ClientID string `query:"client_id"`
		Status   string `query:"status"`
	}) (*response[[]domain.Project], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionProjectRead); err != nil {
			return nil, s.handleError(err)
		}
		projects, err := s.e.Repo.ListProjects(ctx, input.OrgID, repo.ProjectFilters{
			ClientID: input.ClientID,
			Status:   input.Status,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(projects)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/projects/{project_id}",
		Summary:     "Get a project",
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		ProjectID string `path:"project_id"`
	}) (*response[domain.Project], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionProjectRead); err != nil {
			return nil, s.handleError(err)
		}
		proj, err := s.e.Repo.GetProject(ctx, input.OrgID, input.ProjectID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(proj), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/projects/{project_id}",
		Summary:     "Update a project",
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		ProjectID string `path:"project_id"`
		Body      UpdateProjectRequest
	}) (*response[domain.Project], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionProjectWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		proj, err := s.e.UpdateProject(ctx, input.OrgID, input.ProjectID, engine.ProjectUpdateOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			PricingType: input.Body.PricingType,
			FixedPrice:  input.Body.FixedPrice,
			HourlyRate:  input.Body.HourlyRate,
			ClearRate:   input.Body.ClearHourlyRate,
			Status:      input.Body.Status,
			ActorID:     p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(proj), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/projects/{project_id}",
		Summary:       "Delete a project",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionProjectWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.DeleteProject(ctx, input.OrgID, input.ProjectID, p.UserID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})
}
