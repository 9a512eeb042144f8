package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"editgate/internal/db"
	"editgate/internal/domain"
	"editgate/internal/engine"
	"editgate/internal/metrics"
	"editgate/internal/migrate"
	"editgate/internal/platform"
	"editgate/internal/repo"
	editgatesdk "editgate/sdk/go"
)

const testSecret = "test-secret"

const reviewInvitation = `{
  "id": "V/Paper1/-/Official_Comment",
  "domain": "V",
  "edit": {
    "signatures": {"param": {"items": [{"prefix": "V/Paper1/Reviewer_.*"}, {"value": "V/Program_Chairs", "optional": true}]}},
    "note": {"readers": {"param": {"enum": ["V/Program_Chairs", "V/Paper1/Reviewers", "everyone"]}}}
  }
}`

type testServer struct {
	URL      string
	Platform platform.Platform
	client   *http.Client
	close    func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg := prometheus.NewRegistry()
	p, err := platform.New(conn, engine.WithMetrics(metrics.New(reg)))
	if err != nil {
		t.Fatalf("platform: %v", err)
	}
	handler, err := New(Config{Platform: p, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}, Gatherer: reg})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:      "http://" + ln.Addr().String(),
		Platform: p,
		client:   &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func devToken(t *testing.T, srv *testServer, profile string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]string{"profile_id": profile}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var out DevLoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	return out.Token
}

func seedVenue(t *testing.T, srv *testServer, token string) {
	t.Helper()
	auth := map[string]string{"Authorization": "Bearer " + token}
	for _, g := range []GroupRequest{
		{ID: "everyone"},
		{ID: "V/Program_Chairs", Members: []string{"~Chair1"}},
		{ID: "V/Paper1/Reviewers", Members: []string{"~Me1", "~Other1"}},
		{ID: "V/Paper1/Reviewer_Ab12", Members: []string{"~Me1"}},
		{ID: "V/Paper1/Reviewer_Cd34", Members: []string{"~Other1"}},
	} {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/groups", g, auth)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("create group %s status %d: %s", g.ID, res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/invitations", reviewInvitation, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import invitation status %d: %s", res.StatusCode, string(data))
	}
}

func TestHealthAndGuestReads(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "ok") {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("guest list groups status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/groups", GroupRequest{ID: "x"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("guest write should be 401, got %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token should be 401, got %d", res.StatusCode)
	}
}

func TestGroupQueries(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedVenue(t, srv, devToken(t, srv, "~Chair1"))

	cases := []struct {
		query string
		want  []string
	}{
		{"prefix=" + url.QueryEscape("V/Paper1/Reviewer_.*"), []string{"V/Paper1/Reviewer_Ab12", "V/Paper1/Reviewer_Cd34"}},
		{"prefix=" + url.QueryEscape("V/Paper1/.*") + "&signatory=" + url.QueryEscape("~Me1"), []string{"V/Paper1/Reviewers", "V/Paper1/Reviewer_Ab12"}},
		{"regex=" + url.QueryEscape("V/Program_Chairs|everyone"), []string{"everyone", "V/Program_Chairs"}},
		{"id=" + url.QueryEscape("V/Program_Chairs"), []string{"V/Program_Chairs"}},
	}
	for _, tc := range cases {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups?"+tc.query, nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", tc.query, res.StatusCode, string(data))
		}
		var out GroupsResponse
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal groups: %v", err)
		}
		var got []string
		for _, g := range out.Groups {
			got = append(got, g.ID)
		}
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Fatalf("%s: got %v want %v", tc.query, got, tc.want)
		}
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups?regex="+url.QueryEscape("a|("), nil, nil)
	if res.StatusCode != http.StatusBadRequest || !strings.Contains(string(data), "invalid_pattern") {
		t.Fatalf("bad regex status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups?regex=a&prefix=b", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("two selectors status %d: %s", res.StatusCode, string(data))
	}
}

func TestResolveAndSubmitThroughSDK(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedVenue(t, srv, devToken(t, srv, "~Chair1"))
	ctx := context.Background()

	client := editgatesdk.New(srv.URL + "/v0")
	token, err := client.DevLogin(ctx, "~Me1")
	if err != nil {
		t.Fatalf("dev login: %v", err)
	}
	client.BearerToken = token

	raw, err := client.Invitation(ctx, "V/Paper1/-/Official_Comment")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if !strings.Contains(string(raw), "Reviewer_") {
		t.Fatalf("unexpected invitation %s", string(raw))
	}

	res, err := client.Resolve(ctx, editgatesdk.ResolveRequest{Invitation: "V/Paper1/-/Official_Comment"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != "needs_input" {
		t.Fatalf("expected needs_input, got %s", res.Status)
	}
	if strings.Join(res.Signatures.Candidates, ",") != "V/Paper1/Reviewer_Ab12,V/Program_Chairs" {
		t.Fatalf("signature candidates %v", res.Signatures.Candidates)
	}
	if strings.Join(res.Readers.Candidates, ",") != "everyone,V/Program_Chairs,V/Paper1/Reviewers" {
		t.Fatalf("reader candidates %v", res.Readers.Candidates)
	}

	out, err := client.SubmitEdit(ctx, editgatesdk.EditRequest{
		Invitation: "V/Paper1/-/Official_Comment",
		Readers:    []string{"V/Program_Chairs", "V/Paper1/Reviewers"},
		Signatures: []string{"V/Paper1/Reviewer_Ab12"},
		Content:    map[string]any{"comment": "please clarify section 3"},
	})
	if err != nil {
		t.Fatalf("submit edit: %v", err)
	}
	if out.Edit.ActorID != "~Me1" || out.Note.ID == "" || out.Edit.NoteID != out.Note.ID {
		t.Fatalf("unexpected edit result %+v", out)
	}
	stored, err := client.Note(ctx, out.Note.ID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if strings.Join(stored.Readers, ",") != "V/Program_Chairs,V/Paper1/Reviewers" {
		t.Fatalf("stored readers %v", stored.Readers)
	}

	_, err = client.SubmitEdit(ctx, editgatesdk.EditRequest{
		Invitation: "V/Paper1/-/Official_Comment",
		Readers:    []string{"everyone"},
		Signatures: []string{"V/Paper1/Reviewer_Cd34"},
	})
	var apiErr *editgatesdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code != "invalid_selection" {
		t.Fatalf("expected invalid_selection, got %v", err)
	}

	events, err := client.Events(ctx, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) == 0 || events[0].Type != "edit.rejected" || events[0].Payload["category"] != "invalid_selection" {
		t.Fatalf("unexpected latest event %+v", events)
	}

	_, err = client.SubmitEdit(ctx, editgatesdk.EditRequest{
		Invitation: "V/Paper1/-/Official_Comment",
		NoteID:     out.Note.ID,
		ReplyTo:    "some-other-note",
		Readers:    []string{"V/Program_Chairs"},
		Signatures: []string{"V/Paper1/Reviewer_Ab12"},
	})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Code != "note_mismatch" {
		t.Fatalf("expected note_mismatch, got %v", err)
	}
}

func TestResolveErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	chair := devToken(t, srv, "~Chair1")
	seedVenue(t, srv, chair)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/invitations", `{
	  "id": "V/Paper1/-/Official_Review",
	  "edit": {
	    "signatures": {"param": {"regex": "V/Paper1/Reviewer_.*"}},
	    "note": {"readers": ["V/Program_Chairs"]}
	  }
	}`, map[string]string{"Authorization": "Bearer " + chair})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import review invitation status %d: %s", res.StatusCode, string(data))
	}

	headers := map[string]string{"Authorization": "Bearer " + devToken(t, srv, "~Stranger1")}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/resolve", ResolveRequest{Invitation: "V/Paper1/-/Official_Review"}, headers)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "no_permission" || envelope.Error.Message != engine.ErrNoPermission.Error() {
		t.Fatalf("unexpected envelope %+v", envelope.Error)
	}
	if envelope.Error.Details["field"] != "signatures" {
		t.Fatalf("expected signatures field detail, got %v", envelope.Error.Details)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/resolve", ResolveRequest{Invitation: "V/-/Missing"}, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}

func TestReplyReadersFollowParent(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	chair := devToken(t, srv, "~Chair1")
	seedVenue(t, srv, chair)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/notes", CreateNoteRequest{
		ID:      "review1",
		Readers: []string{"V/Program_Chairs", "V/Paper1/Reviewer_Ab12"},
	}, map[string]string{"Authorization": "Bearer " + chair})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create note status %d: %s", res.StatusCode, string(data))
	}

	headers := map[string]string{"Authorization": "Bearer " + devToken(t, srv, "~Me1")}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/resolve", ResolveRequest{
		Invitation: "V/Paper1/-/Official_Comment",
		ReplyTo:    "review1",
		Signatures: []string{"V/Paper1/Reviewer_Ab12"},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d: %s", res.StatusCode, string(data))
	}
	var out ResolutionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal resolution: %v", err)
	}
	if out.Status != "ready" {
		t.Fatalf("expected ready, got %s", out.Status)
	}
	if strings.Join(out.Readers.Selected, ",") != "V/Program_Chairs" {
		t.Fatalf("readers %v", out.Readers.Selected)
	}
	if out.Readers.View.Type != engine.ViewConst {
		t.Fatalf("expected const view for a single reader, got %s", out.Readers.View.Type)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	if err := srv.Platform.Repo.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", ProfileID: "~Chair1", KeyHash: repo.HashAPIKey("sekret")}); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/groups", GroupRequest{ID: "V/Program_Chairs", Members: []string{"~Chair1"}}, map[string]string{"X-Api-Key": "sekret"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key write status %d: %s", res.StatusCode, string(data))
	}
	evs, err := srv.Platform.Repo.LatestEvents(ctx, 1, "group.upserted", "group", "V/Program_Chairs")
	if err != nil || len(evs) != 1 || evs[0].ActorID != "~Chair1" {
		t.Fatalf("group event %+v %v", evs, err)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong api key should be 401, got %d", res.StatusCode)
	}
}

func TestOpenAPIAndMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedVenue(t, srv, devToken(t, srv, "~Chair1"))

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "/v0/resolve") || !strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("openapi missing paths or security")
	}

	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/resolve", ResolveRequest{Invitation: "V/Paper1/-/Official_Comment"},
		map[string]string{"Authorization": "Bearer " + devToken(t, srv, "~Me1")})
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "editgate_resolutions_total") {
		t.Fatalf("metrics missing resolution counter:\n%s", string(data))
	}
}
