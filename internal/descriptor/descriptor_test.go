package descriptor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Shape
	}{
		{name: "absent", raw: "", want: ShapeNone},
		{name: "null", raw: "null", want: ShapeNone},
		{name: "plain array", raw: `["everyone"]`, want: ShapeConst},
		{name: "param const list", raw: `{"param":{"const":["A/Program_Chairs"]}}`, want: ShapeConst},
		{name: "param const string", raw: `{"param":{"const":"A/Program_Chairs"}}`, want: ShapeConst},
		{name: "current user", raw: `{"param":{"regex":"~.*"}}`, want: ShapeCurrentUser},
		{name: "regex prefix", raw: `{"param":{"regex":"A/Submission1/Reviewer_.*"}}`, want: ShapeRegex},
		{name: "regex union", raw: `{"param":{"regex":"A/Program_Chairs|~.*"}}`, want: ShapeRegex},
		{name: "enum", raw: `{"param":{"enum":["everyone","A/Reviewers.*"]}}`, want: ShapeEnum},
		{name: "items", raw: `{"param":{"items":[{"value":"A/Program_Chairs","optional":false}]}}`, want: ShapeItems},
		{name: "legacy values", raw: `{"values":["everyone"]}`, want: ShapeConst},
		{name: "legacy regexp", raw: `{"values-regexp":"~.*"}`, want: ShapeCurrentUser},
		{name: "legacy dropdown", raw: `{"values-dropdown":["a","b"]}`, want: ShapeEnum},
		{name: "legacy checkbox", raw: `{"values-checkbox":["a","b"]}`, want: ShapeItems},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classify(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyRejectsAmbiguousOrUnknown(t *testing.T) {
	for _, raw := range []string{
		`{"param":{"regex":"a.*","enum":["b"]}}`,
		`{"param":{"const":["a"],"items":[{"value":"b"}]}}`,
		`{"param":{}}`,
		`{"description":"no shape"}`,
		`{"values":["a"],"values-regexp":"b.*"}`,
		`"everyone"`,
		`{"param":{"items":[{"value":"a","prefix":"b"}]}}`,
		`{"param":{"items":[{"optional":true}]}}`,
	} {
		_, err := Classify(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrUnsupportedDescriptor, raw)
	}
}

func TestParseRegexMode(t *testing.T) {
	d, err := Parse(json.RawMessage(`{"param":{"regex":"A/Program_Chairs|A/Submission1/Authors"}}`))
	require.NoError(t, err)
	assert.Equal(t, RegexUnion, d.Mode)

	d, err = Parse(json.RawMessage(`{"param":{"regex":"A/Submission1/Reviewer_.*","default":"A/Submission1/Reviewers"}}`))
	require.NoError(t, err)
	assert.Equal(t, RegexPrefix, d.Mode)
	assert.Equal(t, []string{"A/Submission1/Reviewers"}, d.Default)
}

func TestParseEnumEntries(t *testing.T) {
	d, err := Parse(json.RawMessage(`{"param":{
		"enum":["~Test_IdOne1",{"value":"A/Area_Chairs.*","description":"Area chairs"}],
		"default":["~Test_IdOne1"]}}`))
	require.NoError(t, err)
	require.Len(t, d.Options, 2)
	assert.Equal(t, "~Test_IdOne1", d.Options[0].Value)
	assert.False(t, d.Options[0].IsPattern())
	assert.Equal(t, "Area chairs", d.Options[1].Description)
	assert.True(t, d.Options[1].IsPattern())
	assert.True(t, d.HasDefault())
}

func TestParseItems(t *testing.T) {
	d, err := Parse(json.RawMessage(`{"param":{"items":[
		{"value":"A/Program_Chairs","optional":false},
		{"prefix":"A/Submission1/Reviewer_","optional":true},
		{"value":"A/Submission1/Authors"}]}}`))
	require.NoError(t, err)
	require.Len(t, d.Options, 3)
	assert.False(t, d.Options[0].Optional)
	assert.True(t, d.Options[1].Prefix)
	assert.True(t, d.Options[1].IsPattern())
	assert.False(t, d.Options[2].Optional)
}

func TestLegacyCheckboxItemsAreOptional(t *testing.T) {
	d, err := Parse(json.RawMessage(`{"values-checkbox":["a","b"],"default":["a"]}`))
	require.NoError(t, err)
	for _, o := range d.Options {
		assert.True(t, o.Optional)
	}
	assert.Equal(t, []string{"a"}, d.Default)
}

func TestIsParentReadersToken(t *testing.T) {
	assert.True(t, IsParentReadersToken("${{note.replyto}.readers}"))
	assert.True(t, IsParentReadersToken("${2/note/replyto/readers}"))
	assert.True(t, IsParentReadersToken("${3/note/replyto/readers}"))
	assert.False(t, IsParentReadersToken("${2/note/readers}"))
	assert.False(t, IsParentReadersToken("everyone"))
	assert.False(t, IsParentReadersToken("${{note.replyto}.signatures}"))
}

func TestDecodeInvitation(t *testing.T) {
	raw := []byte(`{
		"id": "A/-/Official_Comment",
		"domain": "A",
		"edit": {
			"signatures": {"param": {"enum": ["A/Program_Chairs", "A/Submission1/Reviewer_.*"]}},
			"note": {"readers": {"param": {"items": [{"value": "A/Program_Chairs", "optional": false}]}}}
		}
	}`)
	inv, err := DecodeInvitation(raw)
	require.NoError(t, err)
	assert.Equal(t, "A/-/Official_Comment", inv.ID)

	shape, err := Classify(inv.ReadersDescriptor())
	require.NoError(t, err)
	assert.Equal(t, ShapeItems, shape)
}

func TestDecodeInvitationLegacyReply(t *testing.T) {
	inv, err := DecodeInvitation([]byte(`{"id":"B/-/Comment","reply":{"readers":{"values":["everyone"]},"signatures":{"values-regexp":"~.*"}}}`))
	require.NoError(t, err)
	shape, err := Classify(inv.SignaturesDescriptor())
	require.NoError(t, err)
	assert.Equal(t, ShapeCurrentUser, shape)
}

func TestDecodeInvitationRejectsInvalid(t *testing.T) {
	_, err := DecodeInvitation([]byte(`{"domain":"A"}`))
	assert.ErrorIs(t, err, ErrInvalidInvitation)

	_, err = DecodeInvitation([]byte(`{"id":"A/-/X","edit":{"readers":42}}`))
	assert.ErrorIs(t, err, ErrInvalidInvitation)

	_, err = DecodeInvitation([]byte(`{"id":"A/-/X","edit":{"readers":{"param":{"regex":"a.*","enum":["b"]}}}}`))
	assert.ErrorIs(t, err, ErrUnsupportedDescriptor)
}
