package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"editgate/internal/descriptor"
	"editgate/internal/domain"
	"editgate/internal/groups"
)

// optionSource expands a classified descriptor into candidates.
type optionSource struct {
	lookup         *groups.Session
	signatory      string
	currentUser    string
	verifyLiterals bool
}

// resolveOptions produces the candidate list of one field. It never applies
// parent readers; see Reconcile.
func (o optionSource) resolveOptions(ctx context.Context, field Field, d descriptor.Descriptor) (Selection, error) {
	sel := Selection{Field: field, Shape: d.Shape, Defaults: d.Default}
	switch d.Shape {
	case descriptor.ShapeNone:
		return sel, nil
	case descriptor.ShapeConst:
		values := make([]string, 0, len(d.Values))
		for _, v := range d.Values {
			if descriptor.IsParentReadersToken(v) {
				sel.Inherit = true
				continue
			}
			values = append(values, v)
		}
		sel.Candidates = dedupe(values)
		return sel, nil
	case descriptor.ShapeCurrentUser:
		if o.currentUser == "" {
			return sel, ErrNoPermission
		}
		sel.Candidates = []string{o.currentUser}
		return sel, nil
	case descriptor.ShapeRegex:
		gs, err := o.lookup.Groups(ctx, groups.ForPattern(d.Pattern, o.signatory))
		if err != nil {
			return sel, err
		}
		sel.Candidates = dedupe(groups.IDs(gs))
	case descriptor.ShapeEnum, descriptor.ShapeItems:
		candidates, err := o.expand(ctx, d.Options)
		if err != nil {
			return sel, err
		}
		sel.Candidates = candidates
		sel.Descriptions = descriptions(d.Options)
		if d.Shape == descriptor.ShapeItems {
			sel.Mandatory = mandatory(d.Options, candidates)
		}
	default:
		return sel, fmt.Errorf("%w: shape %q", descriptor.ErrUnsupportedDescriptor, d.Shape)
	}
	if len(sel.Candidates) == 0 {
		return sel, ErrNoPermission
	}
	if d.HasDefault() && !subset(d.Default, sel.Candidates) {
		return sel, ErrInvalidDefault
	}
	return sel, nil
}

// expand resolves each option independently and concatenates the results in
// option order. Wildcard options are looked up concurrently and any failure
// fails the whole expansion.
func (o optionSource) expand(ctx context.Context, options []descriptor.Option) ([]string, error) {
	results := make([][]string, len(options))
	g, ctx := errgroup.WithContext(ctx)
	for i, opt := range options {
		switch {
		case opt.IsPattern():
			g.Go(func() error {
				gs, err := o.lookup.Groups(ctx, groups.Query{Prefix: opt.Value, Signatory: o.signatory})
				if err != nil {
					return err
				}
				results[i] = groups.IDs(gs)
				return nil
			})
		case o.verifyLiterals && verifiable(opt.Value):
			g.Go(func() error {
				gs, err := o.lookup.Groups(ctx, groups.ForID(opt.Value))
				if err != nil {
					return err
				}
				if len(gs) > 0 {
					results[i] = []string{opt.Value}
				}
				return nil
			})
		default:
			results[i] = []string{opt.Value}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var flat []string
	for _, r := range results {
		flat = append(flat, r...)
	}
	return dedupe(flat), nil
}

// verifiable reports whether a literal option names a group that can be
// checked with an id lookup.
func verifiable(id string) bool {
	return !isProfile(id) && !isEmail(id) && id != domain.Everyone
}

// mandatory lists the literal non-optional items that survived expansion.
func mandatory(options []descriptor.Option, candidates []string) []string {
	var out []string
	for _, opt := range options {
		if opt.Optional || opt.IsPattern() {
			continue
		}
		if contains(candidates, opt.Value) && !contains(out, opt.Value) {
			out = append(out, opt.Value)
		}
	}
	return out
}

func descriptions(options []descriptor.Option) map[string]string {
	var out map[string]string
	for _, opt := range options {
		if opt.Description == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[opt.Value] = opt.Description
	}
	return out
}
