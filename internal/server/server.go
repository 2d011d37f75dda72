package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ledgerline/internal/config"
	"ledgerline/internal/engine"
	"ledgerline/internal/engine/authz"
	"ledgerline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Webhooks []config.Webhook
	DevMode  bool
	Logger   *zap.Logger
}

// envelope wraps every response body.
type envelope[T any] struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      T      `json:"data,omitempty"`
	Timestamp string `json:"timestamp" format:"date-time"`
}

type response[T any] struct {
	Body envelope[T]
}

func respond[T any](data T) *response[T] {
	return &response[T]{Body: envelope[T]{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}}
}

// apiError is the error side of the envelope; Data carries optional detail.
type apiError struct {
	status    int
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty" jsonschema:"type=object,additionalProperties=true"`
	Timestamp string         `json:"timestamp" format:"date-time"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string, data map[string]any) huma.StatusError {
	return &apiError{
		status:    status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

type svc struct {
	e   engine.Engine
	log *zap.Logger
	dev bool
}

// New returns an HTTP handler exposing the Ledgerline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := svc{e: cfg.Engine, log: logger, dev: cfg.DevMode}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema validation failures surface as bad requests.
			status = http.StatusBadRequest
		}
		var data map[string]any
		if len(errs) > 0 {
			details := make([]string, 0, len(errs))
			for _, e := range errs {
				details = append(details, e.Error())
			}
			data = map[string]any{"errors": details}
		}
		return newAPIError(status, msg, data)
	}

	router := chi.NewRouter()
	auth := cfg.Auth
	auth.Logger = logger
	router.Use(newAuthMiddleware(basePath, auth, cfg.Engine.Repo))

	hcfg := huma.DefaultConfig("Ledgerline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	s.registerOrgs(group)
	s.registerMembers(group)
	s.registerClients(group)
	s.registerProjects(group)
	s.registerTasks(group)
	s.registerTimeEntries(group)
	s.registerInvoices(group)
	s.registerLabels(group)
	s.registerComments(group)
	s.registerEvents(group)
	registerOpenAPI(router, api, basePath)

	if len(cfg.Webhooks) > 0 {
		startWebhookDispatcher(cfg.Engine, cfg.Webhooks, logger)
	}

	return router, nil
}

// principal resolves the authenticated user's membership in the path org.
// The membership's role drives authorization; a missing membership reads
// as a missing org so callers cannot probe for org existence.
func (s svc) principal(ctx context.Context, orgID string) (authz.Principal, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return authz.Principal{}, authz.UnauthorizedError{Reason: "no authenticated user"}
	}
	m, err := s.e.Repo.GetMembership(ctx, orgID, userID)
	if err != nil {
		return authz.Principal{}, err
	}
	return authz.Principal{UserID: userID, OrgID: orgID, Role: m.Role}, nil
}

// require resolves the principal and checks the action in one step.
func (s svc) require(ctx context.Context, orgID, action string) (authz.Principal, error) {
	p, err := s.principal(ctx, orgID)
	if err != nil {
		return authz.Principal{}, err
	}
	if err := authz.Require(p.Role, action); err != nil {
		return authz.Principal{}, err
	}
	return p, nil
}

func (s svc) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ue authz.UnauthorizedError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusUnauthorized, "authentication required", nil)
	}
	var fe authz.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, err.Error(), map[string]any{"action": fe.Action})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not found", nil)
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, err.Error(), nil)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, err.Error(), nil)
	}
	s.log.Error("internal error", zap.Error(err))
	msg := "internal error"
	if s.dev {
		msg = err.Error()
	}
	return newAPIError(http.StatusInternalServerError, msg, nil)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*response[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Ledgerline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
