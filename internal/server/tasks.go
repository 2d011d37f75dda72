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

func (s svc) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/tasks",
		Summary:       "Create a task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  CreateTaskRequest
	}) (*response[domain.Task], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTaskWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		task, err := s.e.CreateTask(ctx, input.OrgID, engine.TaskCreateOptions{
			ProjectID:   input.Body.ProjectID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			AssigneeID:  input.Body.AssigneeID,
			Priority:    input.Body.Priority,
			DueDate:     input.Body.DueDate,
			ActorID:     p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(task), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		OrgID      string `path:"org_id"`
		ProjectID  string `query:"project_id"`
		Status     string `query:"status"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit" minimum:"1" maximum:"200"`
		Cursor     string `query:"cursor"`
	}) (*response[paginatedTasks], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionTaskRead); err != nil {
			return nil, s.handleError(err)
		}
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		filters := repo.TaskFilters{
			ProjectID:  input.ProjectID,
			Status:     input.Status,
			AssigneeID: input.AssigneeID,
			Limit:      limit + 1,
		}
		if createdAt, id, ok := decodeCursor(input.Cursor); ok {
			filters.CursorCreatedAt = createdAt
			filters.CursorID = id
		}
		tasks, err := s.e.Repo.ListTasks(ctx, input.OrgID, filters)
		if err != nil {
			return nil, s.handleError(err)
		}
		page := paginatedTasks{Items: nonNilSlice(tasks)}
		if len(tasks) > limit {
			page.Items = tasks[:limit]
			last := page.Items[limit-1]
			page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
		}
		return respond(page), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/tasks/{task_id}",
		Summary:     "Get a task",
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		TaskID string `path:"task_id"`
	}) (*response[domain.Task], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionTaskRead); err != nil {
			return nil, s.handleError(err)
		}
		task, err := s.e.Repo.GetTask(ctx, input.OrgID, input.TaskID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(task), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/tasks/{task_id}",
		Summary:     "Update a task",
		Description: "Status writes are reconciled against the task's dependencies; a task with unfinished dependencies stays blocked.",
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		TaskID string `path:"task_id"`
		Body   UpdateTaskRequest
	}) (*response[domain.Task], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTaskWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		task, err := s.e.UpdateTask(ctx, input.OrgID, input.TaskID, engine.TaskUpdateOptions{
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			Status:        input.Body.Status,
			AssigneeID:    input.Body.AssigneeID,
			ClearAssignee: input.Body.ClearAssignee,
			Priority:      input.Body.Priority,
			DueDate:       input.Body.DueDate,
			ActorID:       p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(task), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/tasks/{task_id}",
		Summary:       "Delete a task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTaskWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.DeleteTask(ctx, input.OrgID, input.TaskID, p.UserID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-task-dependency",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/tasks/{task_id}/dependencies",
		Summary:       "Add a dependency to a task",
		Description:   "Rejects self-dependencies and any edge that would close a cycle.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		TaskID string `path:"task_id"`
		Body   AddDependencyRequest
	}) (*response[domain.TaskDependency], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTaskWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		dep, err := s.e.AddDependency(ctx, input.OrgID, input.TaskID, input.Body.DependsOnTaskID, p.UserID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(dep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-dependencies",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/tasks/{task_id}/dependencies",
		Summary:     "List a task's dependencies",
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		TaskID string `path:"task_id"`
	}) (*response[[]domain.TaskDependency], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionTaskRead); err != nil {
			return nil, s.handleError(err)
		}
		if _, err := s.e.Repo.GetTask(ctx, input.OrgID, input.TaskID); err != nil {
			return nil, s.handleError(err)
		}
		deps, err := s.e.Repo.ListDependencies(ctx, input.TaskID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(deps)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-task-dependency",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/tasks/{task_id}/dependencies/{dependency_id}",
		Summary:       "Remove a dependency from a task",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID        string `path:"org_id"`
		TaskID       string `path:"task_id"`
		DependencyID string `path:"dependency_id"`
	}) (*struct{}, error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTaskWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.RemoveDependency(ctx, input.OrgID, input.TaskID, input.DependencyID, p.UserID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})
}
