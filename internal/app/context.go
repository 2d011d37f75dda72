package app

import (
	"context"
	"errors"
	"fmt"

	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
	"ledgerline/internal/repo"
)

// ResolveOrg picks the org a CLI command targets. It prefers the override,
// then the user's single org membership.
func ResolveOrg(ctx context.Context, r repo.Repo, orgOverride, userID string) (string, error) {
	if orgOverride != "" {
		if _, err := r.GetOrganization(ctx, orgOverride); err != nil {
			return "", err
		}
		return orgOverride, nil
	}
	orgs, err := r.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	switch len(orgs) {
	case 0:
		return "", fmt.Errorf("no organizations; create one with ll org create")
	case 1:
		return orgs[0].ID, nil
	}
	return "", fmt.Errorf("multiple organizations; specify --org")
}

// EnsureUser returns the user with the given email, creating one when absent.
func EnsureUser(ctx context.Context, e engine.Engine, name, email string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	return e.CreateUser(ctx, name, email)
}
