package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ledgerline/internal/engine/authz"
)

func (s svc) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/events",
		Summary:     "List audit events, newest first",
	}, func(ctx context.Context, input *struct {
		OrgID    string `path:"org_id"`
		Type     string `query:"type"`
		Entity   string `query:"entity"`
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" minimum:"1" maximum:"500"`
		Cursor   int64  `query:"cursor" doc:"Return events with id below this value"`
	}) (*response[paginatedEvents], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionEventRead); err != nil {
			return nil, s.handleError(err)
		}
		limit := input.Limit
		if limit == 0 {
			limit = 100
		}
		events, err := s.e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.OrgID, input.Type, input.Entity, input.EntityID)
		if err != nil {
			return nil, s.handleError(err)
		}
		page := paginatedEvents{Items: make([]EventResponse, 0, len(events))}
		for _, evt := range events {
			page.Items = append(page.Items, eventResponse(evt))
		}
		if len(events) == limit {
			page.NextCursor = formatEventCursor(events[len(events)-1].ID)
		}
		return respond(page), nil
	})
}
