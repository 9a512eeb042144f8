package server

import (
	"encoding/json"

	"editgate/internal/domain"
	"editgate/internal/engine"
)

// Request payloads

type GroupRequest struct {
	ID      string   `json:"id"`
	Members []string `json:"members,omitempty"`
}

type CreateNoteRequest struct {
	ID         string         `json:"id,omitempty"`
	Forum      string         `json:"forum,omitempty"`
	ReplyTo    string         `json:"replyto,omitempty"`
	Invitation string         `json:"invitation,omitempty"`
	Readers    []string       `json:"readers"`
	Signatures []string       `json:"signatures,omitempty"`
	Content    map[string]any `json:"content,omitempty"`
}

type ResolveRequest struct {
	Invitation string   `json:"invitation"`
	ReplyTo    string   `json:"replyto,omitempty"`
	Readers    []string `json:"readers,omitempty" doc:"Readers already picked by the user"`
	Signatures []string `json:"signatures,omitempty" doc:"Signatures already picked by the user"`
}

type EditRequest struct {
	Invitation string         `json:"invitation"`
	ReplyTo    string         `json:"replyto,omitempty"`
	NoteID     string         `json:"note_id,omitempty"`
	Readers    []string       `json:"readers,omitempty"`
	Signatures []string       `json:"signatures,omitempty"`
	Content    map[string]any `json:"content,omitempty"`
}

type DevLoginRequest struct {
	ProfileID string `json:"profile_id" example:"~Jane_Doe1"`
}

// Response payloads

type GroupsResponse struct {
	Groups []domain.Group `json:"groups"`
}

type InvitationsResponse struct {
	Invitations []string `json:"invitations"`
}

type NotesResponse struct {
	Notes []domain.Note `json:"notes"`
}

type SelectionResponse struct {
	Field        string            `json:"field" enum:"readers,signatures"`
	Shape        string            `json:"shape" enum:"none,const,current_user,regex,enum,items"`
	Candidates   []string          `json:"candidates"`
	Selected     []string          `json:"selected"`
	Defaults     []string          `json:"defaults,omitempty"`
	Mandatory    []string          `json:"mandatory,omitempty"`
	Descriptions map[string]string `json:"descriptions,omitempty"`
	Inherit      bool              `json:"inherit,omitempty"`
	Pending      bool              `json:"pending,omitempty"`
	View         engine.FieldView  `json:"view"`
}

type ResolutionResponse struct {
	Status     string            `json:"status" enum:"ready,needs_input"`
	Readers    SelectionResponse `json:"readers"`
	Signatures SelectionResponse `json:"signatures"`
}

type EditResponse struct {
	Note domain.Note `json:"note"`
	Edit domain.Edit `json:"edit"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Conversion helpers

func selectionResponse(sel engine.Selection) SelectionResponse {
	return SelectionResponse{
		Field:        string(sel.Field),
		Shape:        string(sel.Shape),
		Candidates:   nonNilSlice(sel.Candidates),
		Selected:     nonNilSlice(sel.Selected),
		Defaults:     sel.Defaults,
		Mandatory:    sel.Mandatory,
		Descriptions: sel.Descriptions,
		Inherit:      sel.Inherit,
		Pending:      sel.Pending,
		View:         engine.View(&sel),
	}
}

func resolutionResponse(res engine.Resolution) ResolutionResponse {
	return ResolutionResponse{
		Status:     string(res.Status),
		Readers:    selectionResponse(res.Readers),
		Signatures: selectionResponse(res.Signatures),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
