package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editgate/internal/descriptor"
)

func listSelection(candidates ...string) Selection {
	return Selection{Field: FieldReaders, Shape: descriptor.ShapeEnum, Candidates: candidates}.choose(nil)
}

func constSelection(values ...string) Selection {
	return Selection{Field: FieldReaders, Shape: descriptor.ShapeConst, Candidates: values}.choose(nil)
}

func TestReconcileWithoutParentIsUnchanged(t *testing.T) {
	sel := listSelection("A/Program_Chairs", "A/Reviewers")
	got, err := Reconcile(sel, Parent{})
	require.NoError(t, err)
	assert.Equal(t, sel, got)
}

func TestReconcileEveryoneParentBypass(t *testing.T) {
	sel := constSelection("X/Program_Chairs")
	got, err := Reconcile(sel, Parent{Readers: []string{"everyone"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"X/Program_Chairs"}, got.Candidates)
	assert.Equal(t, []string{"X/Program_Chairs"}, got.Selected)
}

func TestReconcileReinstatesAnonymousReviewers(t *testing.T) {
	sel := listSelection("A/Reviewers", "A/Reviewer_abcd")
	got, err := Reconcile(sel, Parent{Readers: []string{"A/Reviewers"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A/Reviewers", "A/Reviewer_abcd"}, got.Candidates)
}

func TestReconcileDoesNotReinstateWhenAnonPresent(t *testing.T) {
	sel := listSelection("A/Reviewers", "A/Reviewer_abcd", "A/AnonReviewer2")
	got, err := Reconcile(sel, Parent{Readers: []string{"A/Reviewers", "A/Reviewer_abcd"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A/Reviewers", "A/Reviewer_abcd"}, got.Candidates)
}

func TestReconcileIntersectionKeepsCandidateOrder(t *testing.T) {
	sel := listSelection("C", "B", "A")
	got, err := Reconcile(sel, Parent{Readers: []string{"A", "B"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, got.Candidates)
	assert.True(t, got.Pending)
}

func TestReconcileSingleSurvivorIsSelected(t *testing.T) {
	got, err := Reconcile(listSelection("A", "B"), Parent{Readers: []string{"B"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, got.Selected)
	assert.False(t, got.Pending)
}

func TestReconcileKeepsPriorSelection(t *testing.T) {
	sel := Selection{Field: FieldReaders, Shape: descriptor.ShapeEnum, Candidates: []string{"A", "B", "C"}}.choose([]string{"A", "C"})
	got, err := Reconcile(sel, Parent{Readers: []string{"A", "B"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.Candidates)
	assert.Equal(t, []string{"A"}, got.Selected)
	assert.False(t, got.Pending)
}

func TestReconcileEmptyIntersection(t *testing.T) {
	_, err := Reconcile(listSelection("A", "B"), Parent{Readers: []string{"C"}})
	assert.ErrorIs(t, err, ErrNoPermission)
}

func TestReconcileConstSubsetRule(t *testing.T) {
	parent := Parent{Readers: []string{"A/Program_Chairs", "A/Submission1/Reviewers"}}

	got, err := Reconcile(constSelection("A/Program_Chairs", "A/Submission1/Reviewer_abcd"), parent)
	require.NoError(t, err)
	assert.Equal(t, []string{"A/Program_Chairs", "A/Submission1/Reviewer_abcd"}, got.Selected)

	_, err = Reconcile(constSelection("A/Program_Chairs", "A/Submission2/Reviewer_abcd"), parent)
	require.ErrorIs(t, err, ErrParentMismatch)
	assert.Equal(t, "Can not create note, readers must match parent note", err.Error())
}

func TestReconcileDefaultsMustSurvive(t *testing.T) {
	sel := listSelection("A", "B")
	sel.Defaults = []string{"A"}
	_, err := Reconcile(sel, Parent{Readers: []string{"B"}})
	assert.ErrorIs(t, err, ErrInvalidDefault)
}

func TestReconcileInheritTakesParentReaders(t *testing.T) {
	sel := constSelection()
	sel.Inherit = true
	got, err := Reconcile(sel, Parent{Readers: []string{"everyone"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"everyone"}, got.Candidates)
	assert.False(t, got.Inherit)
}

func TestReconcileInheritKeepsParentOrder(t *testing.T) {
	sel := constSelection("A/Authors", "A/PC")
	sel.Inherit = true
	got, err := Reconcile(sel, Parent{Readers: []string{"A/PC", "everyone"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A/PC", "everyone", "A/Authors"}, got.Candidates)
	assert.Equal(t, got.Candidates, got.Selected)
	assert.False(t, got.Pending)
}

func TestReconcileDirectReplyUsesSameRules(t *testing.T) {
	a, errA := Reconcile(listSelection("A/Reviewers", "A/Reviewer_x"), Parent{Readers: []string{"A/Reviewers"}})
	b, errB := Reconcile(listSelection("A/Reviewers", "A/Reviewer_x"), Parent{Readers: []string{"A/Reviewers"}, DirectReplyToForum: true})
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestReviewersGroupOf(t *testing.T) {
	g, ok := reviewersGroupOf("A/Submission1/Reviewer_abcd")
	require.True(t, ok)
	assert.Equal(t, "A/Submission1/Reviewers", g)
	_, ok = reviewersGroupOf("A/Submission1/Authors")
	assert.False(t, ok)
}
