// Package platform implements the dev server's writes. Each write commits
// together with the event that records it.
package platform

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"editgate/internal/descriptor"
	"editgate/internal/domain"
	"editgate/internal/engine"
	"editgate/internal/events"
	"editgate/internal/groups"
	"editgate/internal/repo"
)

// ErrInvalidSelection rejects a submitted edit whose readers or signatures
// are not what the invitation allows for the submitting user.
var ErrInvalidSelection = errors.New("invalid selection")

// ErrNoteMismatch rejects an edit of an existing note that names another
// invitation or parent than the note was created under.
var ErrNoteMismatch = errors.New("edit does not match note")

type Platform struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Resolver *engine.Engine
	Now      func() time.Time
	Logger   *slog.Logger
}

// New wires a platform whose resolver looks groups up in the local database.
func New(db *sql.DB, opts ...engine.Option) (Platform, error) {
	r := repo.Repo{DB: db}
	resolver, err := engine.New(groups.LookupFunc(r.FindGroups), opts...)
	if err != nil {
		return Platform{}, err
	}
	return Platform{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{},
		Resolver: resolver,
		Now:      time.Now,
		Logger:   slog.New(slog.DiscardHandler),
	}, nil
}

func (p Platform) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func (p Platform) now() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (p Platform) eventWriter() events.Writer {
	w := p.Events
	if w.Now == nil {
		w.Now = p.Now
	}
	return w
}

func (p Platform) UpsertGroup(ctx context.Context, g domain.Group, actorID string) (domain.Group, error) {
	g.ID = strings.TrimSpace(g.ID)
	if g.ID == "" {
		return domain.Group{}, errors.New("group id is required")
	}
	if g.CreatedAt == "" {
		g.CreatedAt = p.now()
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, err
	}
	defer tx.Rollback()

	if err := p.Repo.UpsertGroup(ctx, tx, g); err != nil {
		return domain.Group{}, err
	}
	if err := p.eventWriter().Append(ctx, tx, events.GroupUpserted, "group", g.ID, actorID, events.EventPayload{"members": len(g.Members)}); err != nil {
		return domain.Group{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Group{}, err
	}
	return p.Repo.GetGroup(ctx, g.ID)
}

// ImportInvitation validates an invitation document and stores it in RFC 8785
// canonical form. The import event carries the digest of the stored body.
func (p Platform) ImportInvitation(ctx context.Context, raw []byte, actorID string) (domain.Invitation, error) {
	inv, err := descriptor.DecodeInvitation(raw)
	if err != nil {
		return domain.Invitation{}, err
	}
	body, err := jcs.Transform(raw)
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("canonicalize invitation: %w", err)
	}
	digest := sha256.Sum256(body)
	inv.CreatedAt = p.now()
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()

	if err := p.Repo.UpsertInvitation(ctx, tx, inv, json.RawMessage(body)); err != nil {
		return domain.Invitation{}, err
	}
	if err := p.eventWriter().Append(ctx, tx, events.InvitationImported, "invitation", inv.ID, actorID, events.EventPayload{
		"domain": inv.Domain,
		"digest": hex.EncodeToString(digest[:]),
	}); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

// NoteCreateOptions seed a note directly, without invitation checks.
type NoteCreateOptions struct {
	ID         string
	Forum      string
	ReplyTo    string
	Invitation string
	Readers    []string
	Signatures []string
	Content    map[string]any
	ActorID    string
}

func (p Platform) CreateNote(ctx context.Context, opts NoteCreateOptions) (domain.Note, error) {
	if len(opts.Readers) == 0 {
		return domain.Note{}, errors.New("readers are required")
	}
	n := domain.Note{
		ID:         opts.ID,
		Forum:      opts.Forum,
		ReplyTo:    opts.ReplyTo,
		Invitation: opts.Invitation,
		Readers:    opts.Readers,
		Signatures: opts.Signatures,
		Content:    opts.Content,
		CreatedAt:  p.now(),
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := p.placeInForum(ctx, &n); err != nil {
		return domain.Note{}, err
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, err
	}
	defer tx.Rollback()

	if err := p.Repo.InsertNote(ctx, tx, n); err != nil {
		return domain.Note{}, fmt.Errorf("insert note: %w", err)
	}
	if err := p.eventWriter().Append(ctx, tx, events.NoteCreated, "note", n.ID, opts.ActorID, events.EventPayload{
		"forum":   n.Forum,
		"replyto": n.ReplyTo,
		"readers": n.Readers,
	}); err != nil {
		return domain.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, err
	}
	return n, nil
}

// placeInForum fills Forum: a reply joins its parent's forum, a top-level
// note starts its own.
func (p Platform) placeInForum(ctx context.Context, n *domain.Note) error {
	if n.ReplyTo == "" {
		if n.Forum == "" {
			n.Forum = n.ID
		}
		return nil
	}
	parent, err := p.Repo.GetNote(ctx, n.ReplyTo)
	if err != nil {
		return fmt.Errorf("parent note %s: %w", n.ReplyTo, err)
	}
	if n.Forum == "" {
		n.Forum = parent.Forum
		if n.Forum == "" {
			n.Forum = parent.ID
		}
	}
	return nil
}

type ResolveOptions struct {
	Invitation string
	ReplyTo    string
	User       string
	Prior      engine.Prior
}

// Resolve runs the edit resolution for a stored invitation and optional parent note.
func (p Platform) Resolve(ctx context.Context, opts ResolveOptions) (engine.Resolution, error) {
	req, err := p.request(ctx, opts)
	if err != nil {
		return engine.Resolution{}, err
	}
	return p.Resolver.ResolveForEdit(ctx, req)
}

func (p Platform) request(ctx context.Context, opts ResolveOptions) (engine.Request, error) {
	inv, _, err := p.Repo.GetInvitation(ctx, opts.Invitation)
	if err != nil {
		return engine.Request{}, fmt.Errorf("invitation %s: %w", opts.Invitation, err)
	}
	req := engine.Request{Invitation: inv, User: opts.User, Prior: opts.Prior}
	if opts.ReplyTo != "" {
		parent, err := p.Repo.GetNote(ctx, opts.ReplyTo)
		if err != nil {
			return engine.Request{}, fmt.Errorf("parent note %s: %w", opts.ReplyTo, err)
		}
		req.Parent = &parent
	}
	return req, nil
}

type EditOptions struct {
	Invitation string
	ReplyTo    string
	// NoteID names the note to create or, when it exists, to update.
	NoteID     string
	Readers    []string
	Signatures []string
	Content    map[string]any
	ActorID    string
}

// SubmitEdit re-resolves the invitation for the submitting user, using the
// submitted values as the prior selection, and stores the edit only when
// the result is ready and every submitted value is an allowed candidate.
// An edit of an existing note is resolved against that note's own parent.
// Rejections are recorded in the event log.
func (p Platform) SubmitEdit(ctx context.Context, opts EditOptions) (domain.Note, domain.Edit, error) {
	existing, err := p.existingNote(ctx, opts.NoteID)
	if err != nil {
		return domain.Note{}, domain.Edit{}, err
	}
	replyTo := opts.ReplyTo
	if existing != nil {
		replyTo = existing.ReplyTo
	}
	err = checkExisting(existing, opts)
	var res engine.Resolution
	if err == nil {
		res, err = p.Resolve(ctx, ResolveOptions{
			Invitation: opts.Invitation,
			ReplyTo:    replyTo,
			User:       opts.ActorID,
			Prior:      engine.Prior{Readers: opts.Readers, Signatures: opts.Signatures},
		})
	}
	if err == nil {
		err = checkSubmission(res, opts)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Note{}, domain.Edit{}, err
		}
		p.recordRejection(ctx, opts, replyTo, err)
		return domain.Note{}, domain.Edit{}, err
	}

	readers, signatures := res.Payload()
	now := p.now()
	edit := domain.Edit{
		ID:         uuid.NewString(),
		Invitation: opts.Invitation,
		NoteID:     opts.NoteID,
		Readers:    readers,
		Signatures: signatures,
		ActorID:    opts.ActorID,
		CreatedAt:  now,
	}

	var note domain.Note
	if existing != nil {
		note = *existing
	} else {
		note = domain.Note{
			ID:         opts.NoteID,
			ReplyTo:    opts.ReplyTo,
			Invitation: opts.Invitation,
			Content:    opts.Content,
			CreatedAt:  now,
		}
		if note.ID == "" {
			note.ID = uuid.NewString()
		}
		if err := p.placeInForum(ctx, &note); err != nil {
			return domain.Note{}, domain.Edit{}, err
		}
		edit.NoteID = note.ID
	}
	note.Readers = readers
	note.Signatures = signatures

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Note{}, domain.Edit{}, err
	}
	defer tx.Rollback()

	if existing != nil {
		err = p.Repo.UpdateNoteAccess(ctx, tx, note.ID, readers, signatures)
	} else {
		err = p.Repo.InsertNote(ctx, tx, note)
	}
	if err != nil {
		return domain.Note{}, domain.Edit{}, fmt.Errorf("store note: %w", err)
	}
	if err := p.Repo.InsertEdit(ctx, tx, edit); err != nil {
		return domain.Note{}, domain.Edit{}, fmt.Errorf("insert edit: %w", err)
	}
	if err := p.eventWriter().Append(ctx, tx, events.EditSubmitted, "note", note.ID, opts.ActorID, events.EventPayload{
		"edit":       edit.ID,
		"invitation": edit.Invitation,
		"readers":    readers,
		"signatures": signatures,
	}); err != nil {
		return domain.Note{}, domain.Edit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Note{}, domain.Edit{}, err
	}
	return note, edit, nil
}

// existingNote loads the note an edit targets, or nil when the edit creates
// a new one.
func (p Platform) existingNote(ctx context.Context, id string) (*domain.Note, error) {
	if id == "" {
		return nil, nil
	}
	note, err := p.Repo.GetNote(ctx, id)
	switch {
	case err == nil:
		return &note, nil
	case errors.Is(err, repo.ErrNotFound):
		return nil, nil
	}
	return nil, fmt.Errorf("note %s: %w", id, err)
}

func checkExisting(note *domain.Note, opts EditOptions) error {
	if note == nil {
		return nil
	}
	if note.Invitation != opts.Invitation {
		return fmt.Errorf("%w: note %s was not created under %s", ErrNoteMismatch, note.ID, opts.Invitation)
	}
	if opts.ReplyTo != "" && opts.ReplyTo != note.ReplyTo {
		return fmt.Errorf("%w: note %s does not reply to %s", ErrNoteMismatch, note.ID, opts.ReplyTo)
	}
	return nil
}

func checkSubmission(res engine.Resolution, opts EditOptions) error {
	for _, check := range []struct {
		sel       engine.Selection
		submitted []string
	}{
		{res.Readers, opts.Readers},
		{res.Signatures, opts.Signatures},
	} {
		for _, v := range check.submitted {
			if !slices.Contains(check.sel.Candidates, v) {
				return fmt.Errorf("%w: %s %q is not allowed", ErrInvalidSelection, check.sel.Field, v)
			}
		}
		if check.sel.Pending {
			return fmt.Errorf("%w: %s must be selected", ErrInvalidSelection, check.sel.Field)
		}
	}
	if res.Status != engine.StatusReady {
		return fmt.Errorf("%w: resolution is %s", ErrInvalidSelection, res.Status)
	}
	return nil
}

func (p Platform) recordRejection(ctx context.Context, opts EditOptions, replyTo string, cause error) {
	category := engine.Category(cause)
	switch {
	case errors.Is(cause, ErrInvalidSelection):
		category = "invalid_selection"
	case errors.Is(cause, ErrNoteMismatch):
		category = "note_mismatch"
	}
	if err := p.appendRejection(ctx, opts, replyTo, category, cause); err != nil {
		p.logger().ErrorContext(ctx, "edit rejection not recorded",
			"invitation", opts.Invitation,
			"user", opts.ActorID,
			"category", category,
			"cause", cause,
			"error", err,
		)
	}
}

func (p Platform) appendRejection(ctx context.Context, opts EditOptions, replyTo, category string, cause error) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	payload := events.EventPayload{
		"category": category,
		"error":    cause.Error(),
		"replyto":  replyTo,
	}
	if opts.NoteID != "" {
		payload["note"] = opts.NoteID
	}
	if err := p.eventWriter().Append(ctx, tx, events.EditRejected, "invitation", opts.Invitation, opts.ActorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey stores a new key for profileID and returns the plaintext
// token. Only its hash is kept, so the token cannot be shown again.
func (p Platform) CreateAPIKey(ctx context.Context, profileID, name string) (domain.APIKey, string, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return domain.APIKey{}, "", errors.New("profile id is required")
	}
	token := "eg_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(token),
		CreatedAt: p.now(),
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := p.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := p.eventWriter().Append(ctx, tx, events.APIKeyCreated, "api_key", key.ID, profileID, events.EventPayload{
		"name": key.Name,
	}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, token, nil
}
