package engine

import (
	"editgate/internal/descriptor"
	"editgate/internal/domain"
)

const everyone = domain.Everyone

type Field string

const (
	FieldReaders    Field = "readers"
	FieldSignatures Field = "signatures"
)

// Selection is the resolved state of one field: the legal candidates and
// what is currently chosen among them.
type Selection struct {
	Field      Field            `json:"field"`
	Shape      descriptor.Shape `json:"shape"`
	Candidates []string         `json:"candidates"`
	Selected   []string         `json:"selected"`
	// Defaults pre-check values in a picker; they are not a selection.
	Defaults []string `json:"defaults,omitempty"`
	// Mandatory values are always part of Selected.
	Mandatory    []string          `json:"mandatory,omitempty"`
	Descriptions map[string]string `json:"descriptions,omitempty"`
	// Inherit is set for a const field that copies the parent note's readers.
	Inherit bool `json:"inherit,omitempty"`
	// Pending means the caller has to pick among several candidates.
	Pending bool `json:"pending,omitempty"`
}

// Fixed reports whether the field offers no choice.
func (s Selection) Fixed() bool {
	switch s.Shape {
	case descriptor.ShapeNone, descriptor.ShapeConst, descriptor.ShapeCurrentUser:
		return true
	}
	return len(s.Candidates) == 1
}

// Applicable is false when the invitation does not describe the field.
func (s Selection) Applicable() bool { return s.Shape != descriptor.ShapeNone }

// choose settles Selected against prior, the values already picked for this
// field. Fixed fields, and fields where every candidate is mandatory, select
// every candidate.
func (s Selection) choose(prior []string) Selection {
	s.Pending = false
	if s.Fixed() {
		s.Selected = append([]string{}, s.Candidates...)
		return s
	}
	mandatory := intersect(s.Candidates, s.Mandatory)
	s.Mandatory = mandatory
	if len(s.Candidates) > 0 && len(mandatory) == len(s.Candidates) {
		s.Selected = mandatory
		return s
	}
	picked := intersect(s.Candidates, prior)
	if len(picked) == 0 {
		s.Selected = mandatory
		s.Pending = true
		return s
	}
	s.Selected = intersect(s.Candidates, append(picked, mandatory...))
	return s
}
