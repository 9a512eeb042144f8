package engine

import "editgate/internal/descriptor"

// Parent is the note being replied to or edited.
type Parent struct {
	Readers []string
	// DirectReplyToForum is set when the parent is the forum note itself.
	DirectReplyToForum bool
}

// Reconcile narrows reader candidates to what the parent note allows. It is
// pure and applies to the readers field only.
//
// An empty parent reader set leaves the selection unchanged, as does a parent
// readable by everyone. A const field carrying the copy-parent token takes the
// parent readers verbatim, followed by any other const values it names.
// Otherwise candidates are intersected with the parent readers, reinstating
// anonymous reviewer ids when the reviewers group survives, and a const field
// must fit inside the parent readers as a whole.
func Reconcile(sel Selection, parent Parent) (Selection, error) {
	if len(parent.Readers) == 0 {
		return sel, nil
	}
	prior := sel.Selected
	if sel.Pending {
		prior = nil
	}
	if sel.Inherit {
		inherited := append([]string{}, parent.Readers...)
		for _, c := range sel.Candidates {
			if !contains(inherited, c) {
				inherited = append(inherited, c)
			}
		}
		sel.Candidates = inherited
		sel.Inherit = false
		return sel.choose(prior), nil
	}
	if contains(parent.Readers, everyone) {
		return sel, nil
	}

	var reconciled []string
	if sel.Shape == descriptor.ShapeConst {
		for _, v := range sel.Candidates {
			if contains(parent.Readers, v) {
				continue
			}
			if group, ok := reviewersGroupOf(v); ok && contains(parent.Readers, group) {
				continue
			}
			return sel, ErrParentMismatch
		}
		reconciled = sel.Candidates
	} else {
		reconciled = intersect(sel.Candidates, parent.Readers)
		if hasReviewersWithoutAnon(reconciled) {
			for _, c := range sel.Candidates {
				if isAnonReviewer(c) && !contains(reconciled, c) {
					reconciled = append(reconciled, c)
				}
			}
		}
	}
	if len(reconciled) == 0 {
		return sel, ErrNoPermission
	}
	if len(sel.Defaults) > 0 && !subset(sel.Defaults, reconciled) {
		return sel, ErrInvalidDefault
	}
	sel.Candidates = reconciled
	return sel.choose(prior), nil
}

func hasReviewersWithoutAnon(ids []string) bool {
	reviewers := false
	for _, id := range ids {
		if isAnonReviewer(id) {
			return false
		}
		if isReviewersGroup(id) {
			reviewers = true
		}
	}
	return reviewers
}
