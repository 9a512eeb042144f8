package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"editgate/internal/descriptor"
	"editgate/internal/domain"
	"editgate/internal/engine"
	"editgate/internal/groups"
	"editgate/internal/platform"
	"editgate/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Platform platform.Platform
	BasePath string
	Auth     AuthConfig
	// Gatherer backs /metrics; defaults to the Prometheus default registry.
	Gatherer prometheus.Gatherer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"no_permission"`
	Message string         `json:"message" example:"You do not have permission to create a note"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"signatures\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the editgate dev API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Platform.DB == nil || cfg.Platform.Resolver == nil {
		return nil, errors.New("server: platform is not initialised")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Platform.Repo))
	hcfg := huma.DefaultConfig("Editgate API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	p := cfg.Platform
	registerDocs(router, basePath)
	registerHealth(group)
	registerGroups(group, p)
	registerInvitations(group, p)
	registerNotes(group, p)
	registerResolve(group, p)
	registerEdits(group, p)
	registerEvents(group, p)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var details map[string]any
	var fe *engine.FieldError
	if errors.As(err, &fe) {
		details = map[string]any{"field": string(fe.Field)}
	}
	switch category := engine.Category(err); category {
	case "no_permission":
		return newAPIError(http.StatusForbidden, category, engine.Message(err), details)
	case "invalid_default", "parent_mismatch":
		return newAPIError(http.StatusUnprocessableEntity, category, engine.Message(err), details)
	case "unsupported_descriptor":
		return newAPIError(http.StatusBadRequest, category, err.Error(), details)
	case "lookup_failed":
		var le *groups.LookupError
		if errors.As(err, &le) {
			if details == nil {
				details = map[string]any{}
			}
			details["query"] = le.Query.String()
		}
		return newAPIError(http.StatusBadGateway, category, err.Error(), details)
	case "canceled":
		return newAPIError(http.StatusServiceUnavailable, category, err.Error(), details)
	}
	switch {
	case errors.Is(err, platform.ErrInvalidSelection):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_selection", err.Error(), nil)
	case errors.Is(err, platform.ErrNoteMismatch):
		return newAPIError(http.StatusConflict, "note_mismatch", err.Error(), nil)
	case errors.Is(err, descriptor.ErrInvalidInvitation):
		return newAPIError(http.StatusBadRequest, "invalid_invitation", err.Error(), nil)
	case errors.Is(err, repo.ErrInvalidPattern):
		return newAPIError(http.StatusBadRequest, "invalid_pattern", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func operations(item *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
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
		{},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if public[route] {
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
    <title>Editgate API Docs</title>
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
      Reads are open to guests. Writes need Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerGroups(api huma.API, p platform.Platform) {
	huma.Register(api, huma.Operation{
		OperationID: "list-groups",
		Method:      http.MethodGet,
		Path:        "/groups",
		Summary:     "Find groups by regex, prefix or id",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Regex     string `query:"regex" doc:"Whole-id regular expression, used for a|b unions"`
		Prefix    string `query:"prefix" doc:"Id prefix pattern such as Venue/Paper1/.*"`
		ID        string `query:"id"`
		Signatory string `query:"signatory" doc:"Keep only groups this profile may sign as"`
	}) (*struct {
		Body GroupsResponse `json:"body"`
	}, error) {
		set := 0
		for _, v := range []string{input.Regex, input.Prefix, input.ID} {
			if v != "" {
				set++
			}
		}
		if set > 1 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "only one of regex, prefix and id may be set", nil)
		}
		var (
			items []domain.Group
			err   error
		)
		if set == 0 && input.Signatory == "" {
			items, err = p.Repo.ListGroups(ctx)
		} else {
			items, err = p.Repo.FindGroups(ctx, groups.Query{
				Regex:     input.Regex,
				Prefix:    input.Prefix,
				ID:        input.ID,
				Signatory: input.Signatory,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GroupsResponse `json:"body"`
		}{Body: GroupsResponse{Groups: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-group",
		Method:      http.MethodGet,
		Path:        "/groups/{group_id}",
		Summary:     "Get group",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
	}) (*struct {
		Body domain.Group `json:"body"`
	}, error) {
		g, err := p.Repo.GetGroup(ctx, unescapeID(input.GroupID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Group `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-group",
		Method:      http.MethodPost,
		Path:        "/groups",
		Summary:     "Create or replace a group",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body GroupRequest `json:"body"`
	}) (*struct {
		Body domain.Group `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.ID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		g, err := p.UpsertGroup(ctx, domain.Group{ID: input.Body.ID, Members: input.Body.Members}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Group `json:"body"`
		}{Body: g}, nil
	})
}

func registerInvitations(api huma.API, p platform.Platform) {
	huma.Register(api, huma.Operation{
		OperationID: "list-invitations",
		Method:      http.MethodGet,
		Path:        "/invitations",
		Summary:     "List invitation ids",
	}, func(ctx context.Context, input *struct {
		Domain string `query:"domain"`
	}) (*struct {
		Body InvitationsResponse `json:"body"`
	}, error) {
		ids, err := p.Repo.ListInvitationIDs(ctx, input.Domain)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvitationsResponse `json:"body"`
		}{Body: InvitationsResponse{Invitations: ids}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-invitation",
		Method:      http.MethodGet,
		Path:        "/invitations/{invitation_id}",
		Summary:     "Get the stored invitation document",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		InvitationID string `path:"invitation_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		_, raw, err := p.Repo.GetInvitation(ctx, unescapeID(input.InvitationID))
		if err != nil {
			return nil, handleError(err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-invitation",
		Method:      http.MethodPost,
		Path:        "/invitations",
		Summary:     "Import an invitation document",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body map[string]any `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := bodyBytes(ctx)
		if len(raw) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := p.ImportInvitation(ctx, raw, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: input.Body}, nil
	})
}

func registerNotes(api huma.API, p platform.Platform) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notes",
		Method:      http.MethodGet,
		Path:        "/notes",
		Summary:     "List notes",
	}, func(ctx context.Context, input *struct {
		Forum string `query:"forum"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body NotesResponse `json:"body"`
	}, error) {
		items, err := p.Repo.ListNotes(ctx, input.Forum, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NotesResponse `json:"body"`
		}{Body: NotesResponse{Notes: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-note",
		Method:      http.MethodGet,
		Path:        "/notes/{note_id}",
		Summary:     "Get note",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NoteID string `path:"note_id"`
	}) (*struct {
		Body domain.Note `json:"body"`
	}, error) {
		n, err := p.Repo.GetNote(ctx, unescapeID(input.NoteID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Note `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-note",
		Method:      http.MethodPost,
		Path:        "/notes",
		Summary:     "Seed a note without invitation checks",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateNoteRequest `json:"body"`
	}) (*struct {
		Body domain.Note `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := p.CreateNote(ctx, platform.NoteCreateOptions{
			ID:         input.Body.ID,
			Forum:      input.Body.Forum,
			ReplyTo:    input.Body.ReplyTo,
			Invitation: input.Body.Invitation,
			Readers:    input.Body.Readers,
			Signatures: input.Body.Signatures,
			Content:    input.Body.Content,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Note `json:"body"`
		}{Body: n}, nil
	})
}

func registerResolve(api huma.API, p platform.Platform) {
	huma.Register(api, huma.Operation{
		OperationID: "resolve-edit",
		Method:      http.MethodPost,
		Path:        "/resolve",
		Summary:     "Resolve readers and signatures for an edit",
		Description: "Resolves for the authenticated profile, or as a guest when no credentials are sent.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body ResolveRequest `json:"body"`
	}) (*struct {
		Body ResolutionResponse `json:"body"`
	}, error) {
		if input.Body.Invitation == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invitation is required", nil)
		}
		res, err := p.Resolve(ctx, platform.ResolveOptions{
			Invitation: input.Body.Invitation,
			ReplyTo:    input.Body.ReplyTo,
			User:       profileFromContext(ctx),
			Prior:      engine.Prior{Readers: input.Body.Readers, Signatures: input.Body.Signatures},
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResolutionResponse `json:"body"`
		}{Body: resolutionResponse(res)}, nil
	})
}

func registerEdits(api huma.API, p platform.Platform) {
	huma.Register(api, huma.Operation{
		OperationID: "submit-edit",
		Method:      http.MethodPost,
		Path:        "/notes/edits",
		Summary:     "Submit a note edit",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body EditRequest `json:"body"`
	}) (*struct {
		Body EditResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Invitation == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invitation is required", nil)
		}
		note, edit, err := p.SubmitEdit(ctx, platform.EditOptions{
			Invitation: input.Body.Invitation,
			ReplyTo:    input.Body.ReplyTo,
			NoteID:     input.Body.NoteID,
			Readers:    input.Body.Readers,
			Signatures: input.Body.Signatures,
			Content:    input.Body.Content,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EditResponse `json:"body"`
		}{Body: EditResponse{Note: note, Edit: edit}}, nil
	})
}

func registerEvents(api huma.API, p platform.Platform) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"group,invitation,note"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := p.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		profile := strings.TrimSpace(input.Body.ProfileID)
		if profile == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "profile_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, profile)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		authCfg.logger().InfoContext(ctx, "dev token issued", "profile", profile)
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

// unescapeID decodes ids such as "Venue/-/Comment" sent as one escaped path segment.
func unescapeID(id string) string {
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

func decodeDocument(raw json.RawMessage) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("stored document: %w", err)
	}
	return doc, nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func requestLogger(cfg AuthConfig, r *http.Request) *slog.Logger {
	return cfg.logger().With("method", r.Method, "path", r.URL.Path)
}
