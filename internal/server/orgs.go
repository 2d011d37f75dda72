package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
	"ledgerline/internal/engine/authz"
)

func (s svc) registerOrgs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create an organization",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest
	}) (*response[domain.Organization], error) {
		userID, ok := userIDFromContext(ctx)
		if !ok {
			return nil, s.handleError(authz.UnauthorizedError{})
		}
		org, err := s.e.CreateOrganization(ctx, engine.OrgCreateOptions{
			Name:              input.Body.Name,
			Currency:          input.Body.Currency,
			DefaultHourlyRate: input.Body.DefaultHourlyRate,
			TaxRate:           input.Body.TaxRate,
			CreatorID:         userID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(org), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List organizations the caller belongs to",
	}, func(ctx context.Context, _ *struct{}) (*response[[]domain.Organization], error) {
		userID, ok := userIDFromContext(ctx)
		if !ok {
			return nil, s.handleError(authz.UnauthorizedError{})
		}
		orgs, err := s.e.Repo.ListOrganizationsForUser(ctx, userID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(nonNilSlice(orgs)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}",
		Summary:     "Get an organization",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*response[domain.Organization], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionOrgRead); err != nil {
			return nil, s.handleError(err)
		}
		org, err := s.e.Repo.GetOrganization(ctx, input.OrgID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(org), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-org",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}",
		Summary:     "Update organization settings",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  UpdateOrgRequest
	}) (*response[domain.Organization], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionOrgUpdate)
		if err != nil {
			return nil, s.handleError(err)
		}
		org, err := s.e.UpdateOrganization(ctx, input.OrgID, engine.OrgUpdateOptions{
			Name:              input.Body.Name,
			Currency:          input.Body.Currency,
			DefaultHourlyRate: input.Body.DefaultHourlyRate,
			ClearDefaultRate:  input.Body.ClearDefaultRate,
			TaxRate:           input.Body.TaxRate,
			ActorID:           p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(org), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user and their organizations",
	}, func(ctx context.Context, _ *struct{}) (*response[WhoamiResponse], error) {
		userID, ok := userIDFromContext(ctx)
		if !ok {
			return nil, s.handleError(authz.UnauthorizedError{})
		}
		user, err := s.e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, s.handleError(err)
		}
		orgs, err := s.e.Repo.ListOrganizationsForUser(ctx, userID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(WhoamiResponse{User: user, Orgs: nonNilSlice(orgs)}), nil
	})
}

func (s svc) registerMembers(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/members",
		Summary:     "List organization members",
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*response[[]MemberResponse], error) {
		if _, err := s.require(ctx, input.OrgID, authz.ActionMemberRead); err != nil {
			return nil, s.handleError(err)
		}
		memberships, err := s.e.Repo.ListMemberships(ctx, input.OrgID)
		if err != nil {
			return nil, s.handleError(err)
		}
		members := make([]MemberResponse, 0, len(memberships))
		for _, m := range memberships {
			user, err := s.e.Repo.GetUser(ctx, m.UserID)
			if err != nil {
				return nil, s.handleError(err)
			}
			members = append(members, memberResponse(m, user))
		}
		return respond(members), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/members",
		Summary:       "Add a member to the organization",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Body  AddMemberRequest
	}) (*response[domain.Membership], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionMemberManage)
		if err != nil {
			return nil, s.handleError(err)
		}
		m, err := s.e.AddMember(ctx, input.OrgID, engine.MemberAddOptions{
			UserID:  input.Body.UserID,
			Role:    input.Body.Role,
			ActorID: p.UserID,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-member-role",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/members/{user_id}",
		Summary:     "Change a member's role",
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		UserID string `path:"user_id"`
		Body   UpdateMemberRoleRequest
	}) (*response[domain.Membership], error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionMemberManage)
		if err != nil {
			return nil, s.handleError(err)
		}
		m, err := s.e.UpdateMemberRole(ctx, input.OrgID, input.UserID, input.Body.Role, p.UserID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/orgs/{org_id}/members/{user_id}",
		Summary:       "Remove a member from the organization",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		p, err := s.require(ctx, input.OrgID, authz.ActionMemberManage)
		if err != nil {
			return nil, s.handleError(err)
		}
		if err := s.e.RemoveMember(ctx, input.OrgID, input.UserID, p.UserID); err != nil {
			return nil, s.handleError(err)
		}
		return nil, nil
	})
}
