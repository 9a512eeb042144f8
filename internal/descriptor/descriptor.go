// Package descriptor classifies reader and signature field descriptors of an
// invitation into a closed set of shapes.
//
// Accepted inputs are a plain JSON array (const), an object carrying a
// "param" sub-object (const, regex, enum or items), or one of the legacy
// v1 keys (values, values-regexp, values-dropdown, values-checkbox). An
// absent descriptor classifies as ShapeNone, which callers treat as "not
// applicable" rather than an error.
package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Shape string

const (
	ShapeNone        Shape = "none"
	ShapeConst       Shape = "const"
	ShapeCurrentUser Shape = "currentUser"
	ShapeRegex       Shape = "regex"
	ShapeEnum        Shape = "enum"
	ShapeItems       Shape = "items"
)

// RegexMode selects the group query form used to expand a regex descriptor.
type RegexMode string

const (
	// RegexUnion is the legacy "a|b|c" form, queried with regex=.
	RegexUnion RegexMode = "union"
	// RegexPrefix is a single pattern, queried with prefix=.
	RegexPrefix RegexMode = "prefix"
)

const (
	// CurrentUserPattern is the regex that stands for the logged-in profile.
	CurrentUserPattern = "~.*"
	// Wildcard marks an enum option or item value that needs expansion.
	Wildcard = ".*"
)

var ErrUnsupportedDescriptor = errors.New("unsupported descriptor")

// Option is one enum entry or checklist item.
type Option struct {
	Value       string
	Description string
	// Prefix is set for items declared with "prefix" instead of "value".
	Prefix bool
	// Optional is only meaningful for items; enum options are always optional.
	Optional bool
}

// IsPattern reports whether the option must be expanded through a group lookup.
func (o Option) IsPattern() bool {
	return o.Prefix || strings.Contains(o.Value, Wildcard)
}

// Descriptor is the classified form of a reader or signature field.
type Descriptor struct {
	Shape   Shape
	Values  []string
	Pattern string
	Mode    RegexMode
	Options []Option
	Default []string
}

// HasDefault reports whether the invitation declared default values.
func (d Descriptor) HasDefault() bool { return len(d.Default) > 0 }

// Classify returns only the shape of a raw descriptor.
func Classify(raw json.RawMessage) (Shape, error) {
	d, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return d.Shape, nil
}

// Parse classifies a raw descriptor and extracts the fields its shape needs.
func Parse(raw json.RawMessage) (Descriptor, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Descriptor{Shape: ShapeNone}, nil
	}
	switch trimmed[0] {
	case '[':
		var values []string
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return Descriptor{}, fmt.Errorf("%w: const list: %v", ErrUnsupportedDescriptor, err)
		}
		return Descriptor{Shape: ShapeConst, Values: values}, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrUnsupportedDescriptor, err)
		}
		if env.Param != nil {
			return env.Param.descriptor()
		}
		return env.legacy()
	default:
		return Descriptor{}, fmt.Errorf("%w: expected array or object", ErrUnsupportedDescriptor)
	}
}

type envelope struct {
	Param          *param          `json:"param"`
	Values         json.RawMessage `json:"values"`
	ValuesRegexp   *string         `json:"values-regexp"`
	ValuesDropdown []enumEntry     `json:"values-dropdown"`
	ValuesCheckbox []enumEntry     `json:"values-checkbox"`
	Default        stringList      `json:"default"`
}

type param struct {
	Const   json.RawMessage `json:"const"`
	Regex   *string         `json:"regex"`
	Enum    []enumEntry     `json:"enum"`
	Items   []itemEntry     `json:"items"`
	Default stringList      `json:"default"`
}

func (p param) descriptor() (Descriptor, error) {
	present := 0
	hasConst := !isNull(p.Const)
	for _, set := range []bool{hasConst, p.Regex != nil, p.Enum != nil, p.Items != nil} {
		if set {
			present++
		}
	}
	if present == 0 {
		return Descriptor{}, fmt.Errorf("%w: param has none of const, regex, enum, items", ErrUnsupportedDescriptor)
	}
	if present > 1 {
		return Descriptor{}, fmt.Errorf("%w: param declares more than one of const, regex, enum, items", ErrUnsupportedDescriptor)
	}
	switch {
	case hasConst:
		var values stringList
		if err := json.Unmarshal(p.Const, &values); err != nil {
			return Descriptor{}, fmt.Errorf("%w: const: %v", ErrUnsupportedDescriptor, err)
		}
		return Descriptor{Shape: ShapeConst, Values: values}, nil
	case p.Regex != nil:
		return regexDescriptor(*p.Regex, p.Default), nil
	case p.Enum != nil:
		opts := make([]Option, 0, len(p.Enum))
		for _, e := range p.Enum {
			opts = append(opts, Option{Value: e.Value, Description: e.Description, Optional: true})
		}
		return Descriptor{Shape: ShapeEnum, Options: opts, Default: p.Default}, nil
	default:
		opts := make([]Option, 0, len(p.Items))
		for _, it := range p.Items {
			opt, err := it.option()
			if err != nil {
				return Descriptor{}, err
			}
			opts = append(opts, opt)
		}
		return Descriptor{Shape: ShapeItems, Options: opts, Default: p.Default}, nil
	}
}

func (e envelope) legacy() (Descriptor, error) {
	hasValues := !isNull(e.Values)
	present := 0
	for _, set := range []bool{hasValues, e.ValuesRegexp != nil, e.ValuesDropdown != nil, e.ValuesCheckbox != nil} {
		if set {
			present++
		}
	}
	if present == 0 {
		return Descriptor{}, fmt.Errorf("%w: no param or values key", ErrUnsupportedDescriptor)
	}
	if present > 1 {
		return Descriptor{}, fmt.Errorf("%w: more than one values key", ErrUnsupportedDescriptor)
	}
	switch {
	case hasValues:
		var values stringList
		if err := json.Unmarshal(e.Values, &values); err != nil {
			return Descriptor{}, fmt.Errorf("%w: values: %v", ErrUnsupportedDescriptor, err)
		}
		return Descriptor{Shape: ShapeConst, Values: values}, nil
	case e.ValuesRegexp != nil:
		return regexDescriptor(*e.ValuesRegexp, e.Default), nil
	case e.ValuesDropdown != nil:
		opts := make([]Option, 0, len(e.ValuesDropdown))
		for _, v := range e.ValuesDropdown {
			opts = append(opts, Option{Value: v.Value, Description: v.Description, Optional: true})
		}
		return Descriptor{Shape: ShapeEnum, Options: opts, Default: e.Default}, nil
	default:
		opts := make([]Option, 0, len(e.ValuesCheckbox))
		for _, v := range e.ValuesCheckbox {
			opts = append(opts, Option{Value: v.Value, Description: v.Description, Optional: true})
		}
		return Descriptor{Shape: ShapeItems, Options: opts, Default: e.Default}, nil
	}
}

func regexDescriptor(pattern string, def []string) Descriptor {
	if pattern == CurrentUserPattern {
		return Descriptor{Shape: ShapeCurrentUser, Pattern: pattern}
	}
	mode := RegexPrefix
	if strings.Contains(pattern, "|") {
		mode = RegexUnion
	}
	return Descriptor{Shape: ShapeRegex, Pattern: pattern, Mode: mode, Default: def}
}

// IsParentReadersToken reports whether a const value asks to copy the readers
// of the note being replied to, e.g. "${{note.replyto}.readers}" or
// "${2/note/replyto/readers}".
func IsParentReadersToken(v string) bool {
	if !strings.HasPrefix(v, "${") || !strings.HasSuffix(v, "}") {
		return false
	}
	return strings.Contains(v, "replyto") && strings.HasSuffix(strings.TrimSuffix(v, "}"), "readers")
}

// stringList accepts either a JSON string or a list of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var one string
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*s = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// enumEntry accepts "value" or {"value": ..., "description": ...}.
type enumEntry struct {
	Value       string
	Description string
}

func (e *enumEntry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &e.Value)
	}
	var obj struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	if obj.Value == "" {
		return errors.New("enum entry without value")
	}
	e.Value, e.Description = obj.Value, obj.Description
	return nil
}

type itemEntry struct {
	Value       string `json:"value"`
	Prefix      string `json:"prefix"`
	Optional    bool   `json:"optional"`
	Description string `json:"description"`
}

func (it itemEntry) option() (Option, error) {
	switch {
	case it.Value != "" && it.Prefix != "":
		return Option{}, fmt.Errorf("%w: item declares both value and prefix", ErrUnsupportedDescriptor)
	case it.Prefix != "":
		return Option{Value: it.Prefix, Prefix: true, Optional: it.Optional, Description: it.Description}, nil
	case it.Value != "":
		return Option{Value: it.Value, Optional: it.Optional, Description: it.Description}, nil
	default:
		return Option{}, fmt.Errorf("%w: item without value or prefix", ErrUnsupportedDescriptor)
	}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
