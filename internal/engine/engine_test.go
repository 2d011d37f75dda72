package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledgerline/internal/config"
	"ledgerline/internal/db"
	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
	"ledgerline/internal/migrate"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	User    domain.User
	Org     domain.Organization
	Client  domain.Client
	Project domain.Project
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	user, err := eng.CreateUser(ctx, "Tess", "tess@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	tax := 10.0
	org, err := eng.CreateOrganization(ctx, engine.OrgCreateOptions{
		Name:      "Acme",
		Currency:  "USD",
		TaxRate:   &tax,
		CreatorID: user.ID,
	})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	client, err := eng.CreateClient(ctx, org.ID, engine.ClientCreateOptions{Name: "Globex", ActorID: user.ID})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	project, err := eng.CreateProject(ctx, org.ID, engine.ProjectCreateOptions{
		ClientID:    client.ID,
		Name:        "Website",
		PricingType: "hourly",
		ActorID:     user.ID,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return &testEnv{Engine: eng, Ctx: ctx, User: user, Org: org, Client: client, Project: project}
}

func (env *testEnv) createTask(t *testing.T, title string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, env.Org.ID, engine.TaskCreateOptions{
		ProjectID: env.Project.ID,
		Title:     title,
		ActorID:   env.User.ID,
	})
	if err != nil {
		t.Fatalf("create task %q: %v", title, err)
	}
	return task
}

func (env *testEnv) setStatus(t *testing.T, taskID, status string) domain.Task {
	t.Helper()
	task, err := env.Engine.UpdateTask(env.Ctx, env.Org.ID, taskID, engine.TaskUpdateOptions{
		Status:  &status,
		ActorID: env.User.ID,
	})
	if err != nil {
		t.Fatalf("set status %s: %v", status, err)
	}
	return task
}

func (env *testEnv) eventCount(t *testing.T, eventType string) int {
	t.Helper()
	var n int
	err := env.Engine.DB.QueryRow(
		"SELECT COUNT(*) FROM events WHERE org_id = ? AND type = ?",
		env.Org.ID, eventType,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestCreateOrganizationSeedsOwner(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.Repo.GetMembership(env.Ctx, env.Org.ID, env.User.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if m.Role != "owner" {
		t.Fatalf("creator role = %q, want owner", m.Role)
	}
	if got := env.eventCount(t, "org.created"); got != 1 {
		t.Fatalf("org.created events = %d, want 1", got)
	}
}

func TestLastOwnerGuard(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.UpdateMemberRole(env.Ctx, env.Org.ID, env.User.ID, "admin", env.User.ID); err == nil {
		t.Fatal("expected demoting the last owner to fail")
	}
	if err := env.Engine.RemoveMember(env.Ctx, env.Org.ID, env.User.ID, env.User.ID); err == nil {
		t.Fatal("expected removing the last owner to fail")
	}

	second, err := env.Engine.CreateUser(env.Ctx, "Omar", "omar@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := env.Engine.AddMember(env.Ctx, env.Org.ID, engine.MemberAddOptions{
		UserID: second.ID, Role: "owner", ActorID: env.User.ID,
	}); err != nil {
		t.Fatalf("add second owner: %v", err)
	}
	m, err := env.Engine.UpdateMemberRole(env.Ctx, env.Org.ID, env.User.ID, "admin", env.User.ID)
	if err != nil {
		t.Fatalf("demote with second owner present: %v", err)
	}
	if m.Role != "admin" {
		t.Fatalf("role = %q, want admin", m.Role)
	}
}

func TestAddMemberTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.CreateUser(env.Ctx, "Nia", "nia@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := env.Engine.AddMember(env.Ctx, env.Org.ID, engine.MemberAddOptions{UserID: u.ID, Role: "member", ActorID: env.User.ID}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	_, err = env.Engine.AddMember(env.Ctx, env.Org.ID, engine.MemberAddOptions{UserID: u.ID, Role: "manager", ActorID: env.User.ID})
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want ConflictError, got %v", err)
	}
}

func TestDependencyBlocksAndReleases(t *testing.T) {
	env := newTestEnv(t)
	dep := env.createTask(t, "design")
	task := env.createTask(t, "build")

	if _, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, task.ID, dep.ID, env.User.ID); err != nil {
		t.Fatalf("add dependency: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, env.Org.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "blocked" {
		t.Fatalf("status after adding dependency = %q, want blocked", got.Status)
	}

	env.setStatus(t, dep.ID, "done")
	got, err = env.Engine.Repo.GetTask(env.Ctx, env.Org.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "todo" {
		t.Fatalf("status after dependency done = %q, want todo", got.Status)
	}

	// Reopening the dependency pushes the dependent back to blocked.
	env.setStatus(t, dep.ID, "in_progress")
	got, err = env.Engine.Repo.GetTask(env.Ctx, env.Org.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "blocked" {
		t.Fatalf("status after dependency reopened = %q, want blocked", got.Status)
	}
}

func TestStatusWriteCannotOverrideBlocked(t *testing.T) {
	env := newTestEnv(t)
	dep := env.createTask(t, "design")
	task := env.createTask(t, "build")
	if _, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, task.ID, dep.ID, env.User.ID); err != nil {
		t.Fatalf("add dependency: %v", err)
	}
	got := env.setStatus(t, task.ID, "in_progress")
	if got.Status != "blocked" {
		t.Fatalf("status = %q, want blocked while dependency is open", got.Status)
	}
}

func TestDependencyCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, "a")
	b := env.createTask(t, "b")
	c := env.createTask(t, "c")

	if _, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, a.ID, a.ID, env.User.ID); err == nil {
		t.Fatal("expected self-dependency to fail")
	}
	if _, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, b.ID, a.ID, env.User.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, c.ID, b.ID, env.User.ID); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, a.ID, c.ID, env.User.ID)
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("want ValidationError for cycle, got %v", err)
	}
	if _, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, b.ID, a.ID, env.User.ID); err == nil {
		t.Fatal("expected duplicate edge to fail")
	}
}

func TestRemoveDependencyUnblocks(t *testing.T) {
	env := newTestEnv(t)
	dep := env.createTask(t, "design")
	task := env.createTask(t, "build")
	edge, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, task.ID, dep.ID, env.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.RemoveDependency(env.Ctx, env.Org.ID, task.ID, edge.ID, env.User.ID); err != nil {
		t.Fatalf("remove dependency: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, env.Org.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "todo" {
		t.Fatalf("status after removing dependency = %q, want todo", got.Status)
	}
}

func TestDeleteTaskUnblocksDependents(t *testing.T) {
	env := newTestEnv(t)
	dep := env.createTask(t, "design")
	task := env.createTask(t, "build")
	if _, err := env.Engine.AddDependency(env.Ctx, env.Org.ID, task.ID, dep.ID, env.User.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, env.Org.ID, dep.ID, env.User.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, env.Org.ID, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "todo" {
		t.Fatalf("status after dependency deleted = %q, want todo", got.Status)
	}
}

func TestCompletedAtFollowsStatus(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "ship")
	got := env.setStatus(t, task.ID, "done")
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set on done")
	}
	got = env.setStatus(t, task.ID, "todo")
	if got.CompletedAt != nil {
		t.Fatal("completed_at not cleared on reopen")
	}
}

func TestTimerLifecycle(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "work")

	if _, err := env.Engine.StartTimer(env.Ctx, env.Org.ID, engine.TimerStartOptions{
		TaskID: task.ID, UserID: env.User.ID, Billable: true,
	}); err != nil {
		t.Fatalf("start timer: %v", err)
	}
	_, err := env.Engine.StartTimer(env.Ctx, env.Org.ID, engine.TimerStartOptions{
		TaskID: task.ID, UserID: env.User.ID, Billable: true,
	})
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want ConflictError for double start, got %v", err)
	}

	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 1, 1, 30, 0, 0, time.UTC) }
	entry, err := env.Engine.StopTimer(env.Ctx, env.Org.ID, task.ID, env.User.ID)
	if err != nil {
		t.Fatalf("stop timer: %v", err)
	}
	if entry.Minutes != 90 {
		t.Fatalf("minutes = %d, want 90", entry.Minutes)
	}
	if entry.EndedAt == nil {
		t.Fatal("ended_at not set")
	}

	if _, err := env.Engine.StopTimer(env.Ctx, env.Org.ID, task.ID, env.User.ID); err == nil {
		t.Fatal("expected stop without running timer to fail")
	}
}

func TestLogTimeValidatesRange(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "work")
	_, err := env.Engine.LogTime(env.Ctx, env.Org.ID, engine.TimeLogOptions{
		TaskID:    task.ID,
		UserID:    env.User.ID,
		StartedAt: "2024-01-01T10:00:00Z",
		EndedAt:   "2024-01-01T09:00:00Z",
		Billable:  true,
		ActorID:   env.User.ID,
	})
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("want ValidationError, got %v", err)
	}

	entry, err := env.Engine.LogTime(env.Ctx, env.Org.ID, engine.TimeLogOptions{
		TaskID:    task.ID,
		UserID:    env.User.ID,
		StartedAt: "2024-01-01T09:00:00Z",
		EndedAt:   "2024-01-01T09:45:00Z",
		Billable:  true,
		ActorID:   env.User.ID,
	})
	if err != nil {
		t.Fatalf("log time: %v", err)
	}
	if entry.Minutes != 45 {
		t.Fatalf("minutes = %d, want 45", entry.Minutes)
	}
}

func TestLabelNamesUniquePerOrg(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateLabel(env.Ctx, env.Org.ID, "urgent", "#ff0000"); err != nil {
		t.Fatalf("create label: %v", err)
	}
	if _, err := env.Engine.CreateLabel(env.Ctx, env.Org.ID, "urgent", "#00ff00"); err == nil {
		t.Fatal("expected duplicate label name to fail")
	}
}

func TestCommentBelongsToTask(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, "a")
	b := env.createTask(t, "b")
	c, err := env.Engine.AddComment(env.Ctx, env.Org.ID, a.ID, env.User.ID, "looks good")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if err := env.Engine.DeleteComment(env.Ctx, env.Org.ID, b.ID, c.ID); err == nil {
		t.Fatal("expected delete through wrong task to fail")
	}
	if err := env.Engine.DeleteComment(env.Ctx, env.Org.ID, a.ID, c.ID); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
}

func TestEventsRecordedPerOperation(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, "audit me")
	env.setStatus(t, task.ID, "in_progress")
	if got := env.eventCount(t, "task.created"); got != 1 {
		t.Fatalf("task.created events = %d, want 1", got)
	}
	if got := env.eventCount(t, "task.updated"); got != 1 {
		t.Fatalf("task.updated events = %d, want 1", got)
	}
}
