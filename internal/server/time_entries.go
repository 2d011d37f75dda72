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

func (s svc) registerTimeEntries(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-timer",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/timers/start",
		Summary:       "Start a timer on a task",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  StartTimerRequest
	}) (*response[domain.TimeEntry], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTimeWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		billable := true
		if input.Body.Billable != nil {
			billable = *input.Body.Billable
		}
		entry, err := s.e.StartTimer(ctx, input.OrgID, engine.TimerStartOptions{
			TaskID:      input.Body.TaskID,
			UserID:      p.UserID,
			Description: input.Body.Description,
			Billable:    billable,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-timer",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/timers/stop",
		Summary:     "Stop the caller's running timer on a task",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  StopTimerRequest
	}) (*response[domain.TimeEntry], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTimeWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		entry, err := s.e.StopTimer(ctx, input.OrgID, input.Body.TaskID, p.UserID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-time",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/time-entries",
		Summary:       "Log a completed time entry",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  LogTimeRequest
	}) (*response[domain.TimeEntry], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTimeWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		billable := true
		if input.Body.Billable != nil {
			billable = *input.Body.Billable
		}
		entry, err := s.e.LogTime(ctx, input.OrgID, engine.TimeLogOptions{
			TaskID:      input.Body.TaskID,
			UserID:      p.UserID,
			Description: input.Body.Description,
			StartedAt:   input.Body.StartedAt,
			EndedAt:     input.Body.EndedAt,
			Billable:    billable,
			ActorID:     p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-time-entries",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/time-entries",
		Summary:     "List time entries",
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		TaskID   string `query:"task_id"`
		UserID   string `query:"user_id"`
		Billable *bool  `query:"billable"`
		Open     bool   `query:"open" doc:"Only entries with a running timer"`
		Limit    int    `query:"limit" minimum:"1" maximum:"500"`
	}) (*response[[]domain.TimeEntry], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionTimeRead); err != nil {
			return nil, s.handleError(err)
		}
		entries, err := s.e.Repo.ListTimeEntries(ctx, input.OrgID, repo.TimeEntryFilters{
			TaskID:   input.TaskID,
			UserID:   input.UserID,
			Billable: input.Billable,
			Open:     input.Open,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(entries)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-time-entry",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/time-entries/{entry_id}",
		Summary:     "Get a time entry",
	}, func(ctx context.Context, input *struct {
		OrgID   string `path:"org_id"`
		EntryID string `path:"entry_id"`
	}) (*response[domain.TimeEntry], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionTimeRead); err != nil {
			return nil, s.handleError(err)
		}
		entry, err := s.e.Repo.GetTimeEntry(ctx, input.OrgID, input.EntryID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-time-entry",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/time-entries/{entry_id}",
		Summary:       "Delete a time entry",
		Description:   "Entries attached to an invoice cannot be deleted.",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID   string `path:"org_id"`
		EntryID string `path:"entry_id"`
	}) (*struct{}, error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionTimeWrite)
		if err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.DeleteTimeEntry(ctx, input.OrgID, input.EntryID, p.UserID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})
}
