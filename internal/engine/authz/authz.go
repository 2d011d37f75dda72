package authz

import "fmt"

// Principal identifies the caller of an operation after authentication.
// Role is the caller's membership role in the org the request targets.
type Principal struct {
	UserID string
	OrgID  string
	Role   string
}

// UnauthorizedError indicates the caller could not be authenticated.
type UnauthorizedError struct {
	Reason string
}

func (e UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "authentication required"
	}
	return e.Reason
}

// ForbiddenError indicates the caller's role does not permit the action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("action %s not permitted", e.Action)
}

// Actions checked by the API layer. Every handler names its action here and
// goes through Allow; no handler carries its own role list.
const (
	ActionOrgRead         = "org.read"
	ActionOrgUpdate       = "org.update"
	ActionMemberRead      = "member.read"
	ActionMemberManage    = "member.manage"
	ActionClientRead      = "client.read"
	ActionClientWrite     = "client.write"
	ActionProjectRead     = "project.read"
	ActionProjectWrite    = "project.write"
	ActionTaskRead        = "task.read"
	ActionTaskWrite       = "task.write"
	ActionTimeRead        = "time.read"
	ActionTimeWrite       = "time.write"
	ActionInvoiceRead     = "invoice.read"
	ActionInvoiceWrite    = "invoice.write"
	ActionPaymentRead     = "payment.read"
	ActionPaymentWrite    = "payment.write"
	ActionLabelRead       = "label.read"
	ActionLabelWrite      = "label.write"
	ActionCommentRead     = "comment.read"
	ActionCommentWrite    = "comment.write"
	ActionCommentModerate = "comment.moderate"
	ActionEventRead       = "event.read"
)

var roleRank = map[string]int{
	"member":  0,
	"manager": 1,
	"admin":   2,
	"owner":   3,
}

// minRole maps each action to the weakest role allowed to perform it.
var minRole = map[string]string{
	ActionOrgRead:         "member",
	ActionOrgUpdate:       "admin",
	ActionMemberRead:      "member",
	ActionMemberManage:    "admin",
	ActionClientRead:      "member",
	ActionClientWrite:     "manager",
	ActionProjectRead:     "member",
	ActionProjectWrite:    "manager",
	ActionTaskRead:        "member",
	ActionTaskWrite:       "member",
	ActionTimeRead:        "member",
	ActionTimeWrite:       "member",
	ActionInvoiceRead:     "manager",
	ActionInvoiceWrite:    "manager",
	ActionPaymentRead:     "manager",
	ActionPaymentWrite:    "manager",
	ActionLabelRead:       "member",
	ActionLabelWrite:      "manager",
	ActionCommentRead:     "member",
	ActionCommentWrite:    "member",
	ActionCommentModerate: "admin",
	ActionEventRead:       "admin",
}

// Allow reports whether a role may perform an action. Unknown actions and
// unknown roles are denied.
func Allow(role, action string) bool {
	min, ok := minRole[action]
	if !ok {
		return false
	}
	rank, ok := roleRank[role]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// Require returns a ForbiddenError when the role may not perform the action.
func Require(role, action string) error {
	if !Allow(role, action) {
		return ForbiddenError{Action: action}
	}
	return nil
}
