package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ledgerline/internal/domain"
	"ledgerline/internal/engine/authz"
)

func (s svc) registerLabels(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-label",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/labels",
		Summary:       "Create a label",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  CreateLabelRequest
	}) (*response[domain.Label], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionLabelWrite); err != nil {
			return nil, s.handleError(err)
		}
		label, err := s.e.CreateLabel(ctx, input.OrgID, input.Body.Name, input.Body.Color)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(label), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-labels",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/labels",
		Summary:     "List labels",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*response[[]domain.Label], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionLabelRead); err != nil {
			return nil, s.handleError(err)
		}
		labels, err := s.e.Repo.ListLabels(ctx, input.OrgID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(labels)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "attach-label",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/tasks/{task_id}/labels",
		Summary:       "Attach a label to a task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		TaskID string `path:"task_id"`
		Body   AttachLabelRequest
	}) (*struct{}, error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionTaskWrite); err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.AttachLabel(ctx, input.OrgID, input.TaskID, input.Body.LabelID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "detach-label",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/tasks/{task_id}/labels/{label_id}",
		Summary:       "Detach a label from a task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID   string `path:"org_id"`
		TaskID  string `path:"task_id"`
		LabelID string `path:"label_id"`
	}) (*struct{}, error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionTaskWrite); err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.DetachLabel(ctx, input.OrgID, input.TaskID, input.LabelID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})
}
