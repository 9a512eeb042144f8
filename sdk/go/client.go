package editgatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal HTTP client for the groups, notes and invitations API.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Group represents the API group model.
type Group struct {
	ID      string   `json:"id"`
	Members []string `json:"members,omitempty"`
}

// GroupQuery selects groups. Exactly one of Regex, Prefix or ID is expected.
type GroupQuery struct {
	Regex     string
	Prefix    string
	ID        string
	Signatory string
}

// Note represents the API note model.
type Note struct {
	ID         string         `json:"id"`
	Forum      string         `json:"forum,omitempty"`
	ReplyTo    string         `json:"replyto,omitempty"`
	Invitation string         `json:"invitation,omitempty"`
	Readers    []string       `json:"readers"`
	Signatures []string       `json:"signatures,omitempty"`
	Content    map[string]any `json:"content,omitempty"`
	CreatedAt  string         `json:"created_at,omitempty"`
}

// Edit is a submitted note edit.
type Edit struct {
	ID         string   `json:"id"`
	Invitation string   `json:"invitation"`
	NoteID     string   `json:"note_id"`
	Readers    []string `json:"readers"`
	Signatures []string `json:"signatures"`
	ActorID    string   `json:"actor_id"`
	CreatedAt  string   `json:"created_at"`
}

// EditResult is the stored note and the edit that produced it.
type EditResult struct {
	Note Note `json:"note"`
	Edit Edit `json:"edit"`
}

// EditRequest is the payload of POST /notes/edits.
type EditRequest struct {
	Invitation string         `json:"invitation"`
	ReplyTo    string         `json:"replyto,omitempty"`
	NoteID     string         `json:"note_id,omitempty"`
	Readers    []string       `json:"readers,omitempty"`
	Signatures []string       `json:"signatures,omitempty"`
	Content    map[string]any `json:"content,omitempty"`
}

// ResolveRequest asks the server to resolve an edit for the caller.
type ResolveRequest struct {
	Invitation string   `json:"invitation"`
	ReplyTo    string   `json:"replyto,omitempty"`
	Readers    []string `json:"readers,omitempty"`
	Signatures []string `json:"signatures,omitempty"`
}

// Selection mirrors a resolved field.
type Selection struct {
	Field      string   `json:"field"`
	Shape      string   `json:"shape"`
	Candidates []string `json:"candidates"`
	Selected   []string `json:"selected"`
	Defaults   []string `json:"defaults,omitempty"`
	Mandatory  []string `json:"mandatory,omitempty"`
	Pending    bool     `json:"pending,omitempty"`

	Descriptions map[string]string `json:"descriptions,omitempty"`
}

// Resolution is the server-side resolution of an edit.
type Resolution struct {
	Status     string    `json:"status"`
	Readers    Selection `json:"readers"`
	Signatures Selection `json:"signatures"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code and Message are filled from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Groups lists groups matching the query.
func (c *Client) Groups(ctx context.Context, q GroupQuery) ([]Group, error) {
	params := url.Values{}
	if q.Regex != "" {
		params.Set("regex", q.Regex)
	}
	if q.Prefix != "" {
		params.Set("prefix", q.Prefix)
	}
	if q.ID != "" {
		params.Set("id", q.ID)
	}
	if q.Signatory != "" {
		params.Set("signatory", q.Signatory)
	}
	endpoint := "groups"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Groups []Group `json:"groups"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Groups, err
}

// Group fetches a group by id.
func (c *Client) Group(ctx context.Context, id string) (Group, error) {
	var resp Group
	err := c.do(ctx, http.MethodGet, "groups/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateGroup creates or replaces a group.
func (c *Client) CreateGroup(ctx context.Context, g Group) (Group, error) {
	var resp Group
	err := c.do(ctx, http.MethodPost, "groups", g, &resp)
	return resp, err
}

// InvitationIDs lists stored invitations, optionally for one domain.
func (c *Client) InvitationIDs(ctx context.Context, domain string) ([]string, error) {
	endpoint := "invitations"
	if domain != "" {
		endpoint += "?" + url.Values{"domain": {domain}}.Encode()
	}
	var resp struct {
		Invitations []string `json:"invitations"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Invitations, err
}

// Invitation returns the raw invitation document.
func (c *Client) Invitation(ctx context.Context, id string) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodGet, "invitations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ImportInvitation stores an invitation document.
func (c *Client) ImportInvitation(ctx context.Context, doc json.RawMessage) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodPost, "invitations", doc, &resp)
	return resp, err
}

// Note fetches a note by id.
func (c *Client) Note(ctx context.Context, id string) (Note, error) {
	var resp Note
	err := c.do(ctx, http.MethodGet, "notes/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateNote stores a note directly, bypassing edit validation.
func (c *Client) CreateNote(ctx context.Context, n Note) (Note, error) {
	var resp Note
	err := c.do(ctx, http.MethodPost, "notes", n, &resp)
	return resp, err
}

// Resolve runs the resolution server side for the authenticated profile.
func (c *Client) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	var resp Resolution
	err := c.do(ctx, http.MethodPost, "resolve", req, &resp)
	return resp, err
}

// SubmitEdit posts a resolved edit.
func (c *Client) SubmitEdit(ctx context.Context, req EditRequest) (EditResult, error) {
	var resp EditResult
	err := c.do(ctx, http.MethodPost, "notes/edits", req, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// DevLogin mints a development token for a profile id.
func (c *Client) DevLogin(ctx context.Context, profileID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]string{"profile_id": profileID}, &resp)
	return resp.Token, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
