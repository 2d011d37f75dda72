package domain

type Organization struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Currency          string   `json:"currency"`
	DefaultHourlyRate *float64 `json:"default_hourly_rate,omitempty"`
	TaxRate           float64  `json:"tax_rate"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Membership struct {
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role" enum:"owner,admin,manager,member"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Client struct {
	ID         string   `json:"id"`
	OrgID      string   `json:"org_id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"org_id"`
	ClientID    string   `json:"client_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PricingType string   `json:"pricing_type" enum:"fixed,hourly"`
	FixedPrice  *float64 `json:"fixed_price,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	Status      string   `json:"status" enum:"active,archived"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID          string   `json:"id"`
	OrgID       string   `json:"org_id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status" enum:"todo,in_progress,done,blocked"`
	AssigneeID  *string  `json:"assignee_id,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
	DueDate     *string  `json:"due_date,omitempty" format:"date-time"`
	Labels      []string `json:"labels,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

type TaskDependency struct {
	ID              string `json:"id"`
	TaskID          string `json:"task_id"`
	DependsOnTaskID string `json:"depends_on_task_id"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

type TimeEntry struct {
	ID          string  `json:"id"`
	OrgID       string  `json:"org_id"`
	TaskID      string  `json:"task_id"`
	UserID      string  `json:"user_id"`
	Description string  `json:"description,omitempty"`
	StartedAt   string  `json:"started_at" format:"date-time"`
	EndedAt     *string `json:"ended_at,omitempty" format:"date-time"`
	Minutes     int     `json:"minutes"`
	Billable    bool    `json:"billable"`
	InvoiceID   *string `json:"invoice_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Invoice struct {
	ID          string             `json:"id"`
	OrgID       string             `json:"org_id"`
	ClientID    string             `json:"client_id"`
	ProjectID   string             `json:"project_id"`
	InvoiceNo   string             `json:"invoice_no"`
	Status      string             `json:"status" enum:"draft,sent,paid,cancelled"`
	Currency    string             `json:"currency"`
	Subtotal    float64            `json:"subtotal"`
	Tax         float64            `json:"tax"`
	Total       float64            `json:"total"`
	IssuedAt    string             `json:"issued_at" format:"date-time"`
	DueAt       *string            `json:"due_at,omitempty" format:"date-time"`
	Notes       string             `json:"notes,omitempty"`
	Lines       []InvoiceLine      `json:"lines,omitempty"`
	TimeEntries []InvoiceTimeEntry `json:"time_entries,omitempty"`
	CreatedAt   string             `json:"created_at" format:"date-time"`
	UpdatedAt   string             `json:"updated_at" format:"date-time"`
}

type InvoiceLine struct {
	ID          string  `json:"id"`
	InvoiceID   string  `json:"invoice_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
	Position    int     `json:"position"`
}

// InvoiceTimeEntry is a frozen snapshot of a billed time entry. The live
// entry may change afterwards; the invoice keeps what was billed.
type InvoiceTimeEntry struct {
	ID          string  `json:"id"`
	InvoiceID   string  `json:"invoice_id"`
	TimeEntryID string  `json:"time_entry_id"`
	UserName    string  `json:"user_name"`
	TaskTitle   string  `json:"task_title"`
	Minutes     int     `json:"minutes"`
	HourlyRate  float64 `json:"hourly_rate"`
	Hours       float64 `json:"hours"`
	Amount      float64 `json:"amount"`
}

type Payment struct {
	ID         string  `json:"id"`
	InvoiceID  string  `json:"invoice_id"`
	Amount     float64 `json:"amount"`
	Method     string  `json:"method,omitempty"`
	Reference  string  `json:"reference,omitempty"`
	ReceivedAt string  `json:"received_at" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Label struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type Comment struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	OrgID    string `json:"org_id"`
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id,omitempty"`
	ActorID  string `json:"actor_id"`
	Payload  string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
