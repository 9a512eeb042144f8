package descriptor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"editgate/internal/domain"
)

//go:embed invitation.schema.json
var invitationSchemaJSON string

const invitationSchemaURL = "https://editgate.schemas.local/invitation.schema.json"

var ErrInvalidInvitation = errors.New("invalid invitation")

var (
	invitationSchemaOnce sync.Once
	invitationSchema     *jsonschema.Schema
	invitationSchemaErr  error
)

func compiledInvitationSchema() (*jsonschema.Schema, error) {
	invitationSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(invitationSchemaURL, bytes.NewReader([]byte(invitationSchemaJSON))); err != nil {
			invitationSchemaErr = fmt.Errorf("invitation schema load failed: %w", err)
			return
		}
		invitationSchema, invitationSchemaErr = c.Compile(invitationSchemaURL)
		if invitationSchemaErr != nil {
			invitationSchemaErr = fmt.Errorf("invitation schema compile failed: %w", invitationSchemaErr)
		}
	})
	return invitationSchema, invitationSchemaErr
}

// DecodeInvitation validates a raw invitation document against the embedded
// schema, decodes it and checks that its reader and signature descriptors
// classify.
func DecodeInvitation(raw []byte) (domain.Invitation, error) {
	schema, err := compiledInvitationSchema()
	if err != nil {
		return domain.Invitation{}, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Invitation{}, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return domain.Invitation{}, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}
	var inv domain.Invitation
	if err := json.Unmarshal(raw, &inv); err != nil {
		return domain.Invitation{}, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}
	if _, err := Parse(inv.ReadersDescriptor()); err != nil {
		return domain.Invitation{}, fmt.Errorf("readers: %w", err)
	}
	if _, err := Parse(inv.SignaturesDescriptor()); err != nil {
		return domain.Invitation{}, fmt.Errorf("signatures: %w", err)
	}
	return inv, nil
}
