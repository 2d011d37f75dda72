package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledgerline/internal/config"
	"ledgerline/internal/domain"
	"ledgerline/internal/events"
	"ledgerline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.NewString()
}

// ValidationError rejects malformed or inconsistent input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError rejects an operation that contradicts current state, like a
// duplicate dependency edge or a running timer.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

func conflictf(format string, args ...any) error {
	return ConflictError{Msg: fmt.Sprintf(format, args...)}
}

type OrgCreateOptions struct {
	Name              string
	Currency          string
	DefaultHourlyRate *float64
	TaxRate           *float64
	CreatorID         string
}

// CreateOrganization creates an org and makes the creator its owner.
func (e Engine) CreateOrganization(ctx context.Context, opts OrgCreateOptions) (domain.Organization, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Organization{}, validationf("name is required")
	}
	if opts.CreatorID == "" {
		return domain.Organization{}, validationf("creator is required")
	}
	if _, err := e.Repo.GetUser(ctx, opts.CreatorID); err != nil {
		return domain.Organization{}, err
	}
	currency := opts.Currency
	if currency == "" {
		currency = e.defaultCurrency()
	}
	now := e.timestamp()
	o := domain.Organization{
		ID:                newID(),
		Name:              opts.Name,
		Currency:          currency,
		DefaultHourlyRate: opts.DefaultHourlyRate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if opts.TaxRate != nil {
		if *opts.TaxRate < 0 {
			return domain.Organization{}, validationf("tax rate cannot be negative")
		}
		o.TaxRate = *opts.TaxRate
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertOrganization(ctx, tx, o); err != nil {
		return domain.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	m := domain.Membership{OrgID: o.ID, UserID: opts.CreatorID, Role: "owner", CreatedAt: now}
	if err := e.Repo.InsertMembership(ctx, tx, m); err != nil {
		return domain.Organization{}, fmt.Errorf("insert membership: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "org.created", o.ID, "organization", o.ID, opts.CreatorID, events.EventPayload{"name": o.Name}); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func (e Engine) defaultCurrency() string {
	if e.Config != nil && e.Config.Billing.Currency != "" {
		return e.Config.Billing.Currency
	}
	return "USD"
}

type OrgUpdateOptions struct {
	Name              *string
	Currency          *string
	DefaultHourlyRate *float64
	ClearDefaultRate  bool
	TaxRate           *float64
	ActorID           string
}

func (e Engine) UpdateOrganization(ctx context.Context, orgID string, opts OrgUpdateOptions) (domain.Organization, error) {
	o, err := e.Repo.GetOrganization(ctx, orgID)
	if err != nil {
		return domain.Organization{}, err
	}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.Organization{}, validationf("name cannot be empty")
		}
		o.Name = *opts.Name
	}
	if opts.Currency != nil {
		o.Currency = *opts.Currency
	}
	if opts.ClearDefaultRate {
		o.DefaultHourlyRate = nil
	} else if opts.DefaultHourlyRate != nil {
		o.DefaultHourlyRate = opts.DefaultHourlyRate
	}
	if opts.TaxRate != nil {
		if *opts.TaxRate < 0 {
			return domain.Organization{}, validationf("tax rate cannot be negative")
		}
		o.TaxRate = *opts.TaxRate
	}
	o.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateOrganization(ctx, tx, o); err != nil {
		return domain.Organization{}, err
	}
	if err := e.Events.Append(ctx, tx, "org.updated", o.ID, "organization", o.ID, opts.ActorID, nil); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func (e Engine) CreateUser(ctx context.Context, name, email string) (domain.User, error) {
	if strings.TrimSpace(name) == "" {
		return domain.User{}, validationf("name is required")
	}
	if strings.TrimSpace(email) == "" {
		return domain.User{}, validationf("email is required")
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, conflictf("email %s already registered", email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	u := domain.User{
		ID:        newID(),
		Name:      name,
		Email:     email,
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

var validRoles = map[string]bool{"owner": true, "admin": true, "manager": true, "member": true}

type MemberAddOptions struct {
	UserID  string
	Role    string
	ActorID string
}

func (e Engine) AddMember(ctx context.Context, orgID string, opts MemberAddOptions) (domain.Membership, error) {
	if !validRoles[opts.Role] {
		return domain.Membership{}, validationf("unknown role %q", opts.Role)
	}
	if _, err := e.Repo.GetOrganization(ctx, orgID); err != nil {
		return domain.Membership{}, err
	}
	if _, err := e.Repo.GetUser(ctx, opts.UserID); err != nil {
		return domain.Membership{}, err
	}
	if _, err := e.Repo.GetMembership(ctx, orgID, opts.UserID); err == nil {
		return domain.Membership{}, conflictf("user already a member")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Membership{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	m := domain.Membership{OrgID: orgID, UserID: opts.UserID, Role: opts.Role, CreatedAt: e.timestamp()}
	if err := e.Repo.InsertMembership(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "member.added", orgID, "membership", opts.UserID, opts.ActorID, events.EventPayload{"role": opts.Role}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

func (e Engine) UpdateMemberRole(ctx context.Context, orgID, userID, role, actorID string) (domain.Membership, error) {
	if !validRoles[role] {
		return domain.Membership{}, validationf("unknown role %q", role)
	}
	m, err := e.Repo.GetMembership(ctx, orgID, userID)
	if err != nil {
		return domain.Membership{}, err
	}
	if m.Role == "owner" && role != "owner" {
		owners, err := e.Repo.CountMembersWithRole(ctx, orgID, "owner")
		if err != nil {
			return domain.Membership{}, err
		}
		if owners <= 1 {
			return domain.Membership{}, conflictf("cannot demote the last owner")
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateMembershipRole(ctx, tx, orgID, userID, role); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "member.role_changed", orgID, "membership", userID, actorID, events.EventPayload{"role": role}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	m.Role = role
	return m, nil
}

func (e Engine) RemoveMember(ctx context.Context, orgID, userID, actorID string) error {
	m, err := e.Repo.GetMembership(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if m.Role == "owner" {
		owners, err := e.Repo.CountMembersWithRole(ctx, orgID, "owner")
		if err != nil {
			return err
		}
		if owners <= 1 {
			return conflictf("cannot remove the last owner")
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteMembership(ctx, tx, orgID, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "member.removed", orgID, "membership", userID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
