package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ledgerline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertOrganization(ctx context.Context, tx *sql.Tx, o domain.Organization) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO organizations(id,name,currency,default_hourly_rate,tax_rate,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		o.ID, o.Name, o.Currency, nullableFloatPtr(o.DefaultHourlyRate), o.TaxRate, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	var o domain.Organization
	var rate sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,currency,default_hourly_rate,tax_rate,created_at,updated_at FROM organizations WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &o.Currency, &rate, &o.TaxRate, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if rate.Valid {
		o.DefaultHourlyRate = &rate.Float64
	}
	return o, err
}

func (r Repo) UpdateOrganization(ctx context.Context, tx *sql.Tx, o domain.Organization) error {
	res, err := tx.ExecContext(ctx, `UPDATE organizations SET name=?, currency=?, default_hourly_rate=?, tax_rate=?, updated_at=? WHERE id=?`,
		o.Name, o.Currency, nullableFloatPtr(o.DefaultHourlyRate), o.TaxRate, o.UpdatedAt, o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListOrganizationsForUser(ctx context.Context, userID string) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT o.id,o.name,o.currency,o.default_hourly_rate,o.tax_rate,o.created_at,o.updated_at
FROM organizations o JOIN memberships m ON m.org_id=o.id WHERE m.user_id=? ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		var o domain.Organization
		var rate sql.NullFloat64
		if err := rows.Scan(&o.ID, &o.Name, &o.Currency, &rate, &o.TaxRate, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if rate.Valid {
			o.DefaultHourlyRate = &rate.Float64
		}
		res = append(res, o)
	}
	return res, nil
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,email,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Name, u.Email, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,created_at FROM users WHERE email=?`, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertMembership(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memberships(org_id,user_id,role,created_at) VALUES (?,?,?,?)`,
		m.OrgID, m.UserID, m.Role, m.CreatedAt)
	return err
}

func (r Repo) GetMembership(ctx context.Context, orgID, userID string) (domain.Membership, error) {
	var m domain.Membership
	err := r.DB.QueryRowContext(ctx, `SELECT org_id,user_id,role,created_at FROM memberships WHERE org_id=? AND user_id=?`, orgID, userID).
		Scan(&m.OrgID, &m.UserID, &m.Role, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) UpdateMembershipRole(ctx context.Context, tx *sql.Tx, orgID, userID, role string) error {
	res, err := tx.ExecContext(ctx, `UPDATE memberships SET role=? WHERE org_id=? AND user_id=?`, role, orgID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteMembership(ctx context.Context, tx *sql.Tx, orgID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE org_id=? AND user_id=?`, orgID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMemberships(ctx context.Context, orgID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT org_id,user_id,role,created_at FROM memberships WHERE org_id=? ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

func (r Repo) CountMembersWithRole(ctx context.Context, orgID, role string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM memberships WHERE org_id=? AND role=?`, orgID, role).Scan(&n)
	return n, err
}

func (r Repo) LatestEvents(ctx context.Context, limit int, orgID, evtType, entity, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, orgID, evtType, entity, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, orgID, evtType, entity, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entity != "" {
		clauses = append(clauses, "entity=?")
		args = append(args, entity)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,org_id,entity,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, orgID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,org_id,entity,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OrgID, &e.Entity, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) WebhookCursor(ctx context.Context, target string) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT last_event_id FROM webhook_cursors WHERE target=?`, target).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

func (r Repo) SaveWebhookCursor(ctx context.Context, target string, lastEventID int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO webhook_cursors(target,last_event_id) VALUES (?,?)
ON CONFLICT(target) DO UPDATE SET last_event_id=excluded.last_event_id`, target, lastEventID)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
