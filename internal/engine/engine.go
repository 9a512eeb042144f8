// Package engine resolves the readers and signatures of a note edit from an
// invitation, the current user and the parent note.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"editgate/internal/descriptor"
	"editgate/internal/domain"
	"editgate/internal/groups"
	"editgate/internal/metrics"
)

type Status string

const (
	StatusReady      Status = "ready"
	StatusNeedsInput Status = "needs_input"
)

// Engine runs edit resolutions. It holds no state between resolutions and is
// safe for concurrent use.
type Engine struct {
	lookup         groups.Lookup
	logger         *slog.Logger
	metrics        *metrics.Metrics
	verifyLiterals bool
	lookupTimeout  time.Duration
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLiteralVerification checks literal group options with an id lookup and
// drops those that do not exist.
func WithLiteralVerification(enabled bool) Option {
	return func(e *Engine) {
		e.verifyLiterals = enabled
	}
}

// WithLookupTimeout bounds the group lookups of one resolution.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lookupTimeout = d
	}
}

func New(lookup groups.Lookup, opts ...Option) (*Engine, error) {
	if lookup == nil {
		return nil, errors.New("group lookup is required")
	}
	e := &Engine{
		lookup: lookup,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Prior holds values already picked by the user, if any.
type Prior struct {
	Readers    []string
	Signatures []string
}

type Request struct {
	Invitation domain.Invitation
	// Parent is nil for a new top-level note.
	Parent *domain.Note
	// User is the current profile id; empty for a guest.
	User  string
	Prior Prior
}

type Resolution struct {
	Status     Status    `json:"status"`
	Readers    Selection `json:"readers"`
	Signatures Selection `json:"signatures"`
}

// Payload returns the readers and signatures to submit.
func (r Resolution) Payload() (readers, signatures []string) {
	return r.Readers.Selected, r.Signatures.Selected
}

// ResolveForEdit resolves signatures and readers concurrently. A field with
// several candidates and no usable prior selection yields StatusNeedsInput;
// the caller resolves again with Prior filled in. Any error aborts the edit.
func (e *Engine) ResolveForEdit(ctx context.Context, req Request) (Resolution, error) {
	start := time.Now()
	if e.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lookupTimeout)
		defer cancel()
	}
	session := groups.NewSession(e.lookup, e.metrics)

	var res Resolution
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sel, err := e.resolveSignatures(gctx, session, req)
		res.Signatures = sel
		return err
	})
	g.Go(func() error {
		sel, err := e.resolveReaders(gctx, session, req)
		res.Readers = sel
		return err
	})
	err := g.Wait()
	e.metrics.ObserveResolveLatency(time.Since(start))
	if err != nil {
		e.metrics.IncrementOutcome(Category(err))
		e.logger.InfoContext(ctx, "edit resolution failed",
			"invitation", req.Invitation.ID,
			"user", req.User,
			"category", Category(err),
			"error", err,
		)
		return Resolution{}, err
	}

	res.Status = StatusReady
	if res.Readers.Pending || res.Signatures.Pending {
		res.Status = StatusNeedsInput
	}
	e.metrics.IncrementOutcome(string(res.Status))
	e.logger.DebugContext(ctx, "edit resolved",
		"invitation", req.Invitation.ID,
		"user", req.User,
		"status", res.Status,
		"readers", len(res.Readers.Candidates),
		"signatures", len(res.Signatures.Candidates),
		"duration", time.Since(start),
	)
	return res, nil
}

// ResolveField classifies and resolves a single descriptor without parent
// reconciliation. Signature lookups carry the current user as signatory.
func (e *Engine) ResolveField(ctx context.Context, field Field, raw json.RawMessage, user string, prior []string) (Selection, error) {
	return e.resolveField(ctx, groups.NewSession(e.lookup, e.metrics), field, raw, user, prior)
}

func (e *Engine) resolveField(ctx context.Context, session *groups.Session, field Field, raw json.RawMessage, user string, prior []string) (Selection, error) {
	d, err := descriptor.Parse(raw)
	if err != nil {
		return Selection{Field: field}, &FieldError{Field: field, Err: err}
	}
	src := optionSource{
		lookup:         session,
		currentUser:    user,
		verifyLiterals: e.verifyLiterals,
	}
	if field == FieldSignatures {
		src.signatory = user
	}
	sel, err := src.resolveOptions(ctx, field, d)
	if err != nil {
		return sel, &FieldError{Field: field, Err: err}
	}
	return sel.choose(prior), nil
}

func (e *Engine) resolveSignatures(ctx context.Context, session *groups.Session, req Request) (Selection, error) {
	sel, err := e.resolveField(ctx, session, FieldSignatures, req.Invitation.SignaturesDescriptor(), req.User, req.Prior.Signatures)
	if err != nil {
		return sel, err
	}
	if sel.Applicable() && len(sel.Candidates) == 0 {
		return sel, &FieldError{Field: FieldSignatures, Err: ErrNoPermission}
	}
	return sel, nil
}

func (e *Engine) resolveReaders(ctx context.Context, session *groups.Session, req Request) (Selection, error) {
	sel, err := e.resolveField(ctx, session, FieldReaders, req.Invitation.ReadersDescriptor(), req.User, req.Prior.Readers)
	if err != nil {
		return sel, err
	}
	if req.Parent != nil && sel.Applicable() {
		parent := Parent{
			Readers:            req.Parent.Readers,
			DirectReplyToForum: req.Parent.Forum == "" || req.Parent.Forum == req.Parent.ID,
		}
		e.logger.DebugContext(ctx, "reconciling readers with parent",
			"parent", req.Parent.ID,
			"parent_readers", len(parent.Readers),
			"direct_reply_to_forum", parent.DirectReplyToForum,
		)
		sel, err = Reconcile(sel, parent)
		if err != nil {
			return sel, &FieldError{Field: FieldReaders, Err: err}
		}
	}
	if sel.Applicable() && len(sel.Candidates) == 0 {
		return sel, &FieldError{Field: FieldReaders, Err: ErrNoPermission}
	}
	return sel, nil
}
