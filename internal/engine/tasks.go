package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ledgerline/internal/domain"
	"ledgerline/internal/events"
	"ledgerline/internal/repo"
)

var validTaskStatuses = map[string]bool{"todo": true, "in_progress": true, "done": true, "blocked": true}

type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	AssigneeID  *string
	Priority    *int
	DueDate     *string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, orgID string, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, validationf("title is required")
	}
	if _, err := e.Repo.GetProject(ctx, orgID, opts.ProjectID); err != nil {
		return domain.Task{}, err
	}
	if opts.AssigneeID != nil {
		if _, err := e.Repo.GetMembership(ctx, orgID, *opts.AssigneeID); err != nil {
			return domain.Task{}, err
		}
	}
	now := e.timestamp()
	t := domain.Task{
		ID:          newID(),
		OrgID:       orgID,
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      "todo",
		AssigneeID:  opts.AssigneeID,
		Priority:    opts.Priority,
		DueDate:     opts.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.created", orgID, "task", t.ID, opts.ActorID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

type TaskUpdateOptions struct {
	Title         *string
	Description   *string
	Status        *string
	AssigneeID    *string
	ClearAssignee bool
	Priority      *int
	DueDate       *string
	ActorID       string
}

// UpdateTask applies user edits. A status write is reconciled against the
// task's dependencies in the same transaction, so a caller cannot unblock a
// task whose dependencies are still unfinished.
func (e Engine) UpdateTask(ctx context.Context, orgID, taskID string, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, orgID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return domain.Task{}, validationf("title cannot be empty")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.ClearAssignee {
		t.AssigneeID = nil
	} else if opts.AssigneeID != nil {
		if _, err := e.Repo.GetMembership(ctx, orgID, *opts.AssigneeID); err != nil {
			return domain.Task{}, err
		}
		t.AssigneeID = opts.AssigneeID
	}
	if opts.Priority != nil {
		t.Priority = opts.Priority
	}
	if opts.DueDate != nil {
		t.DueDate = opts.DueDate
	}
	now := e.timestamp()
	if opts.Status != nil {
		if !validTaskStatuses[*opts.Status] {
			return domain.Task{}, validationf("unknown status %q", *opts.Status)
		}
		if *opts.Status == "done" && t.Status != "done" {
			t.CompletedAt = &now
		}
		if *opts.Status != "done" {
			t.CompletedAt = nil
		}
		t.Status = *opts.Status
	}
	t.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.refreshBlockedStatus(ctx, tx, orgID, t.ID); err != nil {
		return domain.Task{}, err
	}
	if opts.Status != nil {
		// A status change can unblock tasks waiting on this one.
		if err := e.refreshDependents(ctx, tx, orgID, t.ID); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.updated", orgID, "task", t.ID, opts.ActorID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, orgID, taskID)
}

func (e Engine) DeleteTask(ctx context.Context, orgID, taskID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Edges in both directions go with the task; dependents may unblock.
	dependents, err := e.Repo.ListDependentsOf(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, tx, orgID, taskID); err != nil {
		return err
	}
	for _, depID := range dependents {
		if err := e.refreshBlockedStatus(ctx, tx, orgID, depID); err != nil {
			return err
		}
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", orgID, "task", taskID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// AddDependency records that taskID cannot start before dependsOnTaskID is
// done. The cycle check and the insert share one transaction.
func (e Engine) AddDependency(ctx context.Context, orgID, taskID, dependsOnTaskID, actorID string) (domain.TaskDependency, error) {
	if taskID == dependsOnTaskID {
		return domain.TaskDependency{}, validationf("task cannot depend on itself")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskDependency{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTaskTx(ctx, tx, orgID, taskID); err != nil {
		return domain.TaskDependency{}, err
	}
	if _, err := e.Repo.GetTaskTx(ctx, tx, orgID, dependsOnTaskID); err != nil {
		return domain.TaskDependency{}, err
	}
	exists, err := e.Repo.DependencyExists(ctx, tx, taskID, dependsOnTaskID)
	if err != nil {
		return domain.TaskDependency{}, err
	}
	if exists {
		return domain.TaskDependency{}, conflictf("dependency already exists")
	}
	if err := e.ensureNoCycle(ctx, tx, taskID, dependsOnTaskID); err != nil {
		return domain.TaskDependency{}, err
	}

	d := domain.TaskDependency{
		ID:              newID(),
		TaskID:          taskID,
		DependsOnTaskID: dependsOnTaskID,
		CreatedAt:       e.timestamp(),
	}
	if err := e.Repo.InsertDependency(ctx, tx, d); err != nil {
		return domain.TaskDependency{}, err
	}
	if err := e.refreshBlockedStatus(ctx, tx, orgID, taskID); err != nil {
		return domain.TaskDependency{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.dependency_added", orgID, "task", taskID, actorID, events.EventPayload{"depends_on": dependsOnTaskID}); err != nil {
		return domain.TaskDependency{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskDependency{}, err
	}
	return d, nil
}

func (e Engine) RemoveDependency(ctx context.Context, orgID, taskID, dependencyID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTaskTx(ctx, tx, orgID, taskID); err != nil {
		return err
	}
	d, err := e.Repo.GetDependency(ctx, tx, dependencyID)
	if err != nil {
		return err
	}
	if d.TaskID != taskID {
		return repo.ErrNotFound
	}
	if err := e.Repo.DeleteDependency(ctx, tx, dependencyID); err != nil {
		return err
	}
	if err := e.refreshBlockedStatus(ctx, tx, orgID, taskID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.dependency_removed", orgID, "task", taskID, actorID, events.EventPayload{"depends_on": d.DependsOnTaskID}); err != nil {
		return err
	}
	return tx.Commit()
}

// ensureNoCycle rejects the edge taskID -> dependsOnTaskID when it would close
// a cycle. It first checks the direct reverse edge, then walks the dependency
// graph from dependsOnTaskID with an explicit stack; reaching taskID means the
// new edge would make the chain circular.
func (e Engine) ensureNoCycle(ctx context.Context, tx *sql.Tx, taskID, dependsOnTaskID string) error {
	reverse, err := e.Repo.DependencyExists(ctx, tx, dependsOnTaskID, taskID)
	if err != nil {
		return err
	}
	if reverse {
		return validationf("dependency would create a cycle")
	}
	visited := map[string]bool{}
	stack := []string{dependsOnTaskID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == taskID {
			return validationf("dependency would create a cycle")
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		next, err := e.Repo.ListDependenciesOf(ctx, tx, current)
		if err != nil {
			return err
		}
		stack = append(stack, next...)
	}
	return nil
}

// refreshBlockedStatus reconciles a task's blocked flag with its dependencies.
// All dependencies done (or none) releases a blocked task to todo; any unmet
// dependency forces blocked, whatever the current status.
func (e Engine) refreshBlockedStatus(ctx context.Context, tx *sql.Tx, orgID, taskID string) error {
	t, err := e.Repo.GetTaskTx(ctx, tx, orgID, taskID)
	if err != nil {
		return err
	}
	statuses, err := e.Repo.DependencyStatuses(ctx, tx, taskID)
	if err != nil {
		return err
	}
	allDone := true
	for _, s := range statuses {
		if s != "done" {
			allDone = false
			break
		}
	}
	switch {
	case allDone && t.Status == "blocked":
		return e.Repo.UpdateTaskStatus(ctx, tx, orgID, taskID, "todo", e.timestamp(), nil)
	case !allDone && t.Status != "blocked":
		return e.Repo.UpdateTaskStatus(ctx, tx, orgID, taskID, "blocked", e.timestamp(), nil)
	}
	return nil
}

func (e Engine) refreshDependents(ctx context.Context, tx *sql.Tx, orgID, taskID string) error {
	dependents, err := e.Repo.ListDependentsOf(ctx, tx, taskID)
	if err != nil {
		return err
	}
	for _, id := range dependents {
		if err := e.refreshBlockedStatus(ctx, tx, orgID, id); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) AddComment(ctx context.Context, orgID, taskID, authorID, body string) (domain.Comment, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Comment{}, validationf("body is required")
	}
	if _, err := e.Repo.GetTask(ctx, orgID, taskID); err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        newID(),
		TaskID:    taskID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertComment(ctx, c); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (e Engine) DeleteComment(ctx context.Context, orgID, taskID, commentID string) error {
	if _, err := e.Repo.GetTask(ctx, orgID, taskID); err != nil {
		return err
	}
	c, err := e.Repo.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.TaskID != taskID {
		return repo.ErrNotFound
	}
	return e.Repo.DeleteComment(ctx, commentID)
}

func (e Engine) CreateLabel(ctx context.Context, orgID, name, color string) (domain.Label, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Label{}, validationf("name is required")
	}
	exists, err := e.Repo.LabelExistsByName(ctx, orgID, name)
	if err != nil {
		return domain.Label{}, err
	}
	if exists {
		return domain.Label{}, conflictf("label %q already exists", name)
	}
	l := domain.Label{ID: newID(), OrgID: orgID, Name: name, Color: color}
	if err := e.Repo.InsertLabel(ctx, l); err != nil {
		return domain.Label{}, err
	}
	return l, nil
}

func (e Engine) AttachLabel(ctx context.Context, orgID, taskID, labelID string) error {
	if _, err := e.Repo.GetTask(ctx, orgID, taskID); err != nil {
		return err
	}
	if _, err := e.Repo.GetLabel(ctx, orgID, labelID); err != nil {
		return err
	}
	return e.Repo.AttachLabel(ctx, taskID, labelID)
}

func (e Engine) DetachLabel(ctx context.Context, orgID, taskID, labelID string) error {
	if _, err := e.Repo.GetTask(ctx, orgID, taskID); err != nil {
		return err
	}
	return e.Repo.DetachLabel(ctx, taskID, labelID)
}
