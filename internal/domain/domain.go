package domain

import "encoding/json"

// Everyone is the group id that makes a note public.
const Everyone = "everyone"

type Group struct {
	ID        string   `json:"id"`
	Members   []string `json:"members,omitempty"`
	CreatedAt string   `json:"created_at,omitempty" format:"date-time"`
}

type Note struct {
	ID         string         `json:"id"`
	Forum      string         `json:"forum,omitempty"`
	ReplyTo    string         `json:"replyto,omitempty"`
	Invitation string         `json:"invitation,omitempty"`
	Readers    []string       `json:"readers"`
	Signatures []string       `json:"signatures,omitempty"`
	Content    map[string]any `json:"content,omitempty"`
	CreatedAt  string         `json:"created_at,omitempty" format:"date-time"`
}

// Invitation is a venue-defined schema for an edit. Field descriptors are
// kept raw and classified by the descriptor package.
type Invitation struct {
	ID        string        `json:"id"`
	Domain    string        `json:"domain,omitempty"`
	Edit      *EditTemplate `json:"edit,omitempty"`
	Reply     *EditTemplate `json:"reply,omitempty"`
	CreatedAt string        `json:"created_at,omitempty"`
}

type EditTemplate struct {
	Readers    json.RawMessage `json:"readers,omitempty"`
	Signatures json.RawMessage `json:"signatures,omitempty"`
	Note       *NoteTemplate   `json:"note,omitempty"`
}

type NoteTemplate struct {
	Readers json.RawMessage `json:"readers,omitempty"`
}

// ReadersDescriptor returns the descriptor governing note readers:
// edit.note.readers, then edit.readers, then the legacy reply.readers.
func (i Invitation) ReadersDescriptor() json.RawMessage {
	if i.Edit != nil {
		if i.Edit.Note != nil && len(i.Edit.Note.Readers) > 0 {
			return i.Edit.Note.Readers
		}
		if len(i.Edit.Readers) > 0 {
			return i.Edit.Readers
		}
	}
	if i.Reply != nil {
		return i.Reply.Readers
	}
	return nil
}

// SignaturesDescriptor returns edit.signatures, falling back to reply.signatures.
func (i Invitation) SignaturesDescriptor() json.RawMessage {
	if i.Edit != nil && len(i.Edit.Signatures) > 0 {
		return i.Edit.Signatures
	}
	if i.Reply != nil {
		return i.Reply.Signatures
	}
	return nil
}

type Edit struct {
	ID         string   `json:"id"`
	Invitation string   `json:"invitation"`
	NoteID     string   `json:"note_id"`
	Readers    []string `json:"readers"`
	Signatures []string `json:"signatures"`
	ActorID    string   `json:"actor_id"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates a profile on the dev server. Only the hash is stored.
type APIKey struct {
	ID        string `json:"id"`
	ProfileID string `json:"profile_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at"`
}
