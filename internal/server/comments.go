package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ledgerline/internal/domain"
	"ledgerline/internal/engine/authz"
)

func (s svc) registerComments(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/tasks/{task_id}/comments",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		TaskID string `path:"task_id"`
		Body   CreateCommentRequest
	}) (*response[domain.Comment], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionCommentWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		comment, err := s.e.AddComment(ctx, input.OrgID, input.TaskID, p.UserID, input.Body.Body)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(comment), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/tasks/{task_id}/comments",
		Summary:     "List comments on a task",
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		TaskID string `path:"task_id"`
	}) (*response[[]domain.Comment], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionCommentRead); err != nil {
			return nil, s.handleError(err)
		}
		if _, err := s.e.Repo.GetTask(ctx, input.OrgID, input.TaskID); err != nil {
			return nil, s.handleError(err)
		}
		comments, err := s.e.Repo.ListComments(ctx, input.TaskID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(comments)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-comment",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/tasks/{task_id}/comments/{comment_id}",
		Summary:       "Delete a comment",
		Description:   "Authors can delete their own comments; admins can delete any.",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		TaskID    string `path:"task_id"`
		CommentID string `path:"comment_id"`
	}) (*struct{}, error) {
		p, err := s.principal(ctx, input.OrgID)
		if err != nil {
			return nil, s.handleError(err)
		}
		comment, err := s.e.Repo.GetComment(ctx, input.CommentID)
		if err != nil {
			return nil, s.handleError(err)
		}
		if comment.AuthorID != p.UserID {
			if err := authz.Require(p.Role, authz.ActionCommentModerate); err != nil {
				return nil, s.handleError(err)
			}
		}
		if err := s.e.DeleteComment(ctx, input.OrgID, input.TaskID, input.CommentID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})
}
