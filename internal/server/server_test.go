package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ledgerline/internal/config"
	"ledgerline/internal/db"
	"ledgerline/internal/domain"
	"ledgerline/internal/engine"
	"ledgerline/internal/migrate"
	"ledgerline/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	User   domain.User
}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	user, err := e.CreateUser(context.Background(), "Tess", "tess@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/api/v1", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL, Engine: e, User: user}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type testResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, testResponse) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out testResponse
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func (s *testServer) seedOrg(t *testing.T) domain.Organization {
	t.Helper()
	tax := 10.0
	org, err := s.Engine.CreateOrganization(context.Background(), engine.OrgCreateOptions{
		Name: "Acme", TaxRate: &tax, CreatorID: s.User.ID,
	})
	if err != nil {
		t.Fatalf("seed org: %v", err)
	}
	return org
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	resp, err := http.Get(s.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestMissingCredentialsRejected(t *testing.T) {
	s := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	status, body := s.do(t, http.MethodGet, "/api/v1/me", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if body.Success {
		t.Fatal("expected success=false")
	}
	if body.Message == "" {
		t.Fatal("expected an error message")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	s := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	status, _ := s.do(t, http.MethodGet, "/api/v1/me", "not-a-jwt", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestOrgProjectTaskFlow(t *testing.T) {
	s := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	token := s.token(t, s.User.ID)

	status, body := s.do(t, http.MethodPost, "/api/v1/orgs", token, CreateOrgRequest{Name: "Acme"})
	if status != http.StatusCreated {
		t.Fatalf("create org status = %d: %s", status, body.Message)
	}
	if !body.Success || body.Timestamp == "" {
		t.Fatalf("envelope = %+v, want success with timestamp", body)
	}
	var org domain.Organization
	if err := json.Unmarshal(body.Data, &org); err != nil {
		t.Fatalf("decode org: %v", err)
	}
	base := "/api/v1/orgs/" + org.ID

	status, body = s.do(t, http.MethodPost, base+"/clients", token, CreateClientRequest{Name: "Globex"})
	if status != http.StatusCreated {
		t.Fatalf("create client status = %d: %s", status, body.Message)
	}
	var client domain.Client
	if err := json.Unmarshal(body.Data, &client); err != nil {
		t.Fatal(err)
	}

	status, body = s.do(t, http.MethodPost, base+"/projects", token, CreateProjectRequest{
		ClientID: client.ID, Name: "Website", PricingType: "hourly",
	})
	if status != http.StatusCreated {
		t.Fatalf("create project status = %d: %s", status, body.Message)
	}
	var project domain.Project
	if err := json.Unmarshal(body.Data, &project); err != nil {
		t.Fatal(err)
	}

	status, body = s.do(t, http.MethodPost, base+"/tasks", token, CreateTaskRequest{
		ProjectID: project.ID, Title: "Build it",
	})
	if status != http.StatusCreated {
		t.Fatalf("create task status = %d: %s", status, body.Message)
	}
	var task domain.Task
	if err := json.Unmarshal(body.Data, &task); err != nil {
		t.Fatal(err)
	}
	if task.Status != "todo" {
		t.Fatalf("new task status = %q, want todo", task.Status)
	}

	status, body = s.do(t, http.MethodGet, base+"/tasks/"+task.ID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("get task status = %d: %s", status, body.Message)
	}
}

func TestMemberCannotTouchInvoices(t *testing.T) {
	s := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	org := s.seedOrg(t)
	ctx := context.Background()

	member, err := s.Engine.CreateUser(ctx, "Milo", "milo@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Engine.AddMember(ctx, org.ID, engine.MemberAddOptions{
		UserID: member.ID, Role: "member", ActorID: s.User.ID,
	}); err != nil {
		t.Fatal(err)
	}

	token := s.token(t, member.ID)
	status, body := s.do(t, http.MethodGet, "/api/v1/orgs/"+org.ID+"/invoices", token, nil)
	if status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", status, body.Message)
	}

	// Owners pass the same check.
	status, body = s.do(t, http.MethodGet, "/api/v1/orgs/"+org.ID+"/invoices", s.token(t, s.User.ID), nil)
	if status != http.StatusOK {
		t.Fatalf("owner status = %d: %s", status, body.Message)
	}
}

func TestCrossOrgAccessLooksLikeNotFound(t *testing.T) {
	s := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	org := s.seedOrg(t)
	ctx := context.Background()

	outsider, err := s.Engine.CreateUser(ctx, "Eve", "eve@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Engine.CreateOrganization(ctx, engine.OrgCreateOptions{
		Name: "Evil Corp", CreatorID: outsider.ID,
	}); err != nil {
		t.Fatal(err)
	}

	status, body := s.do(t, http.MethodGet, "/api/v1/orgs/"+org.ID, s.token(t, outsider.ID), nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", status, body.Message)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	s := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	ctx := context.Background()

	rawKey := "llk_" + uuid.NewString()
	tx, err := s.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Engine.Repo.InsertAPIKey(ctx, tx, domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    s.User.ID,
		Name:      "ci",
		KeyHash:   repo.HashAPIKey(rawKey),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodGet, s.URL+"/api/v1/me", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Api-Key", rawKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	req.Header.Set("X-Api-Key", "llk_wrong")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp2.StatusCode)
	}
}

func TestLegacyHeaderGatedByConfig(t *testing.T) {
	strict := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	req, _ := http.NewRequest(http.MethodGet, strict.URL+"/api/v1/me", nil)
	req.Header.Set("X-User-Id", strict.User.ID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with legacy header disabled", resp.StatusCode)
	}

	legacy := newTestServer(t, AuthConfig{JWTSecret: testSecret, AllowLegacyHeader: true})
	req2, _ := http.NewRequest(http.MethodGet, legacy.URL+"/api/v1/me", nil)
	req2.Header.Set("X-User-Id", legacy.User.ID)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with legacy header enabled", resp2.StatusCode)
	}
}

func TestDependencyEndpointRejectsCycles(t *testing.T) {
	s := newTestServer(t, AuthConfig{JWTSecret: testSecret})
	org := s.seedOrg(t)
	ctx := context.Background()
	client, err := s.Engine.CreateClient(ctx, org.ID, engine.ClientCreateOptions{Name: "Globex", ActorID: s.User.ID})
	if err != nil {
		t.Fatal(err)
	}
	project, err := s.Engine.CreateProject(ctx, org.ID, engine.ProjectCreateOptions{
		ClientID: client.ID, Name: "Website", PricingType: "hourly", ActorID: s.User.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.Engine.CreateTask(ctx, org.ID, engine.TaskCreateOptions{ProjectID: project.ID, Title: "a", ActorID: s.User.ID})
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Engine.CreateTask(ctx, org.ID, engine.TaskCreateOptions{ProjectID: project.ID, Title: "b", ActorID: s.User.ID})
	if err != nil {
		t.Fatal(err)
	}

	token := s.token(t, s.User.ID)
	base := fmt.Sprintf("/api/v1/orgs/%s/tasks", org.ID)

	status, body := s.do(t, http.MethodPost, fmt.Sprintf("%s/%s/dependencies", base, b.ID), token, AddDependencyRequest{DependsOnTaskID: a.ID})
	if status != http.StatusCreated {
		t.Fatalf("add dependency status = %d: %s", status, body.Message)
	}
	status, body = s.do(t, http.MethodPost, fmt.Sprintf("%s/%s/dependencies", base, a.ID), token, AddDependencyRequest{DependsOnTaskID: b.ID})
	if status != http.StatusBadRequest {
		t.Fatalf("cycle status = %d, want 400: %s", status, body.Message)
	}

	// The dependent is now blocked.
	status, body = s.do(t, http.MethodGet, fmt.Sprintf("%s/%s", base, b.ID), token, nil)
	if status != http.StatusOK {
		t.Fatalf("get task status = %d", status)
	}
	var task domain.Task
	if err := json.Unmarshal(body.Data, &task); err != nil {
		t.Fatal(err)
	}
	if task.Status != "blocked" {
		t.Fatalf("task status = %q, want blocked", task.Status)
	}
}
