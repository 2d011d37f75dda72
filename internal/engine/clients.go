package engine

import (
	"context"
	"fmt"
	"strings"

	"ledgerline/internal/domain"
	"ledgerline/internal/events"
	"ledgerline/internal/repo"
)

type ClientCreateOptions struct {
	Name       string
	Email      string
	HourlyRate *float64
	Notes      string
	ActorID    string
}

func (e Engine) CreateClient(ctx context.Context, orgID string, opts ClientCreateOptions) (domain.Client, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Client{}, validationf("name is required")
	}
	if opts.HourlyRate != nil && *opts.HourlyRate < 0 {
		return domain.Client{}, validationf("hourly rate cannot be negative")
	}
	if _, err := e.Repo.GetOrganization(ctx, orgID); err != nil {
		return domain.Client{}, err
	}
	now := e.timestamp()
	c := domain.Client{
		ID:         newID(),
		OrgID:      orgID,
		Name:       opts.Name,
		Email:      opts.Email,
		HourlyRate: opts.HourlyRate,
		Notes:      opts.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return domain.Client{}, fmt.Errorf("insert client: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "client.created", orgID, "client", c.ID, opts.ActorID, events.EventPayload{"name": c.Name}); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

type ClientUpdateOptions struct {
	Name       *string
	Email      *string
	HourlyRate *float64
	ClearRate  bool
	Notes      *string
	ActorID    string
}

func (e Engine) UpdateClient(ctx context.Context, orgID, clientID string, opts ClientUpdateOptions) (domain.Client, error) {
	c, err := e.Repo.GetClient(ctx, orgID, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.Client{}, validationf("name cannot be empty")
		}
		c.Name = *opts.Name
	}
	if opts.Email != nil {
		c.Email = *opts.Email
	}
	if opts.ClearRate {
		c.HourlyRate = nil
	} else if opts.HourlyRate != nil {
		if *opts.HourlyRate < 0 {
			return domain.Client{}, validationf("hourly rate cannot be negative")
		}
		c.HourlyRate = opts.HourlyRate
	}
	if opts.Notes != nil {
		c.Notes = *opts.Notes
	}
	c.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateClient(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	if err := e.Events.Append(ctx, tx, "client.updated", orgID, "client", c.ID, opts.ActorID, nil); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (e Engine) DeleteClient(ctx context.Context, orgID, clientID, actorID string) error {
	projects, err := e.Repo.ListProjects(ctx, orgID, repo.ProjectFilters{ClientID: clientID})
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		return conflictf("client has %d projects", len(projects))
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteClient(ctx, tx, orgID, clientID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "client.deleted", orgID, "client", clientID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

type ProjectCreateOptions struct {
	ClientID    string
	Name        string
	Description string
	PricingType string
	FixedPrice  *float64
	HourlyRate  *float64
	ActorID     string
}

func (e Engine) CreateProject(ctx context.Context, orgID string, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, validationf("name is required")
	}
	if opts.PricingType != "fixed" && opts.PricingType != "hourly" {
		return domain.Project{}, validationf("pricing type must be fixed or hourly")
	}
	if opts.FixedPrice != nil && *opts.FixedPrice < 0 {
		return domain.Project{}, validationf("fixed price cannot be negative")
	}
	if opts.HourlyRate != nil && *opts.HourlyRate < 0 {
		return domain.Project{}, validationf("hourly rate cannot be negative")
	}
	if _, err := e.Repo.GetClient(ctx, orgID, opts.ClientID); err != nil {
		return domain.Project{}, err
	}
	now := e.timestamp()
	p := domain.Project{
		ID:          newID(),
		OrgID:       orgID,
		ClientID:    opts.ClientID,
		Name:        opts.Name,
		Description: opts.Description,
		PricingType: opts.PricingType,
		FixedPrice:  opts.FixedPrice,
		HourlyRate:  opts.HourlyRate,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", orgID, "project", p.ID, opts.ActorID, events.EventPayload{"name": p.Name, "pricing_type": p.PricingType}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

type ProjectUpdateOptions struct {
	Name        *string
	Description *string
	PricingType *string
	FixedPrice  *float64
	HourlyRate  *float64
	ClearRate   bool
	Status      *string
	ActorID     string
}

func (e Engine) UpdateProject(ctx context.Context, orgID, projectID string, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, orgID, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.Project{}, validationf("name cannot be empty")
		}
		p.Name = *opts.Name
	}
	if opts.Description != nil {
		p.Description = *opts.Description
	}
	if opts.PricingType != nil {
		if *opts.PricingType != "fixed" && *opts.PricingType != "hourly" {
			return domain.Project{}, validationf("pricing type must be fixed or hourly")
		}
		p.PricingType = *opts.PricingType
	}
	if opts.FixedPrice != nil {
		if *opts.FixedPrice < 0 {
			return domain.Project{}, validationf("fixed price cannot be negative")
		}
		p.FixedPrice = opts.FixedPrice
	}
	if opts.ClearRate {
		p.HourlyRate = nil
	} else if opts.HourlyRate != nil {
		if *opts.HourlyRate < 0 {
			return domain.Project{}, validationf("hourly rate cannot be negative")
		}
		p.HourlyRate = opts.HourlyRate
	}
	if opts.Status != nil {
		if *opts.Status != "active" && *opts.Status != "archived" {
			return domain.Project{}, validationf("status must be active or archived")
		}
		p.Status = *opts.Status
	}
	p.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", orgID, "project", p.ID, opts.ActorID, nil); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, orgID, projectID, actorID string) error {
	tasks, err := e.Repo.ListTasks(ctx, orgID, repo.TaskFilters{ProjectID: projectID, Limit: 1})
	if err != nil {
		return err
	}
	if len(tasks) > 0 {
		return conflictf("project has tasks")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProject(ctx, tx, orgID, projectID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", orgID, "project", projectID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
