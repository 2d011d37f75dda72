package server

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"ledgerline/internal/domain"
)

// Request payloads

type CreateOrgRequest struct {
	Name              string   `json:"name"`
	Currency          string   `json:"currency,omitempty"`
	DefaultHourlyRate *float64 `json:"default_hourly_rate,omitempty"`
	TaxRate           *float64 `json:"tax_rate,omitempty"`
}

type UpdateOrgRequest struct {
	Name              *string  `json:"name,omitempty"`
	Currency          *string  `json:"currency,omitempty"`
	DefaultHourlyRate *float64 `json:"default_hourly_rate,omitempty"`
	ClearDefaultRate  bool     `json:"clear_default_hourly_rate,omitempty"`
	TaxRate           *float64 `json:"tax_rate,omitempty"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"owner,admin,manager,member"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" enum:"owner,admin,manager,member"`
}

type CreateClientRequest struct {
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

type UpdateClientRequest struct {
	Name            *string  `json:"name,omitempty"`
	Email           *string  `json:"email,omitempty"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty"`
	ClearHourlyRate bool     `json:"clear_hourly_rate,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
}

type CreateProjectRequest struct {
	ClientID    string   `json:"client_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PricingType string   `json:"pricing_type" enum:"fixed,hourly"`
	FixedPrice  *float64 `json:"fixed_price,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
}

type UpdateProjectRequest struct {
	Name            *string  `json:"name,omitempty"`
	Description     *string  `json:"description,omitempty"`
	PricingType     *string  `json:"pricing_type,omitempty" enum:"fixed,hourly"`
	FixedPrice      *float64 `json:"fixed_price,omitempty"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty"`
	ClearHourlyRate bool     `json:"clear_hourly_rate,omitempty"`
	Status          *string  `json:"status,omitempty" enum:"active,archived"`
}

type CreateTaskRequest struct {
	ProjectID   string  `json:"project_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Status        *string `json:"status,omitempty" enum:"todo,in_progress,done,blocked"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	ClearAssignee bool    `json:"clear_assignee,omitempty"`
	Priority      *int    `json:"priority,omitempty"`
	DueDate       *string `json:"due_date,omitempty" format:"date-time"`
}

type AddDependencyRequest struct {
	DependsOnTaskID string `json:"depends_on_task_id"`
}

type StartTimerRequest struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description,omitempty"`
	Billable    *bool  `json:"billable,omitempty"`
}

type StopTimerRequest struct {
	TaskID string `json:"task_id"`
}

type LogTimeRequest struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description,omitempty"`
	StartedAt   string `json:"started_at" format:"date-time"`
	EndedAt     string `json:"ended_at" format:"date-time"`
	Billable    *bool  `json:"billable,omitempty"`
}

type GenerateInvoiceRequest struct {
	ProjectID    string   `json:"project_id"`
	TimeEntryIDs []string `json:"time_entry_ids,omitempty"`
	DueAt        *string  `json:"due_at,omitempty" format:"date-time"`
	Notes        string   `json:"notes,omitempty"`
}

type InvoiceLineRequest struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

type ReplaceInvoiceLinesRequest struct {
	Lines []InvoiceLineRequest `json:"lines"`
}

type SetInvoiceStatusRequest struct {
	Status string `json:"status" enum:"sent,paid,cancelled"`
}

type RecordPaymentRequest struct {
	Amount     float64 `json:"amount"`
	Method     string  `json:"method,omitempty"`
	Reference  string  `json:"reference,omitempty"`
	ReceivedAt string  `json:"received_at,omitempty" format:"date-time"`
}

type CreateLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type AttachLabelRequest struct {
	LabelID string `json:"label_id"`
}

type CreateCommentRequest struct {
	Body string `json:"body"`
}

// Response payloads

type WhoamiResponse struct {
	User domain.User           `json:"user"`
	Orgs []domain.Organization `json:"orgs"`
}

// MemberResponse joins a membership with the user's display fields so list
// callers do not need a second round trip.
type MemberResponse struct {
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role" enum:"owner,admin,manager,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts" format:"date-time"`
	Type     string         `json:"type"`
	OrgID    string         `json:"org_id"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id,omitempty"`
	ActorID  string         `json:"actor_id"`
	Payload  map[string]any `json:"payload"`
}

type paginatedTasks struct {
	Items      []domain.Task `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func memberResponse(m domain.Membership, u domain.User) MemberResponse {
	return MemberResponse{
		OrgID:     m.OrgID,
		UserID:    m.UserID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      m.Role,
		CreatedAt: m.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:       e.ID,
		TS:       e.TS,
		Type:     e.Type,
		OrgID:    e.OrgID,
		Entity:   e.Entity,
		EntityID: e.EntityID,
		ActorID:  e.ActorID,
		Payload:  decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

// Cursor helpers. Event cursors are the numeric id of the last row; task
// list cursors encode (created_at, id) of the last row.

func formatEventCursor(id int64) string {
	return strconv.FormatInt(id, 10)
}

func encodeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

func decodeCursor(cursor string) (createdAt, id string, ok bool) {
	if cursor == "" {
		return "", "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
