package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ledgerline/internal/config"
	"ledgerline/internal/db"
	"ledgerline/internal/engine"
	"ledgerline/internal/migrate"
	"ledgerline/internal/server"
)

// Quick end-to-end smoke check: boot the API against a scratch workspace,
// create an org, and hit the task endpoint with a signed token.
func main() {
	workspace := "/tmp/ledgerline-check"
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg)
	ctx := context.Background()

	user, err := e.CreateUser(ctx, "Tester", fmt.Sprintf("tester+%d@example.com", time.Now().UnixNano()))
	if err != nil {
		panic(err)
	}
	org, err := e.CreateOrganization(ctx, engine.OrgCreateOptions{Name: "Check Org", CreatorID: user.ID})
	if err != nil {
		panic(err)
	}
	client, err := e.CreateClient(ctx, org.ID, engine.ClientCreateOptions{Name: "Check Client", ActorID: user.ID})
	if err != nil {
		panic(err)
	}
	project, err := e.CreateProject(ctx, org.ID, engine.ProjectCreateOptions{
		ClientID:    client.ID,
		Name:        "Check Project",
		PricingType: "hourly",
		ActorID:     user.ID,
	})
	if err != nil {
		panic(err)
	}

	jwtSecret := "check-secret"
	h, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/api/v1",
		Auth:     server.AuthConfig{JWTSecret: jwtSecret},
	})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		panic(err)
	}

	body, _ := json.Marshal(map[string]any{
		"project_id": project.ID,
		"title":      "Smoke task",
	})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/orgs/"+org.ID+"/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var resp any
	_ = json.NewDecoder(res.Body).Decode(&resp)
	fmt.Printf("status=%d resp=%v\n", res.StatusCode, resp)
}
