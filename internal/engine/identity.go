package engine

import "strings"

// Identity helpers apply lexical tests only; ids carry no other structure.

func isProfile(id string) bool { return strings.HasPrefix(id, "~") }

func isEmail(id string) bool { return strings.Contains(id, "@") }

func isReviewersGroup(id string) bool { return strings.HasSuffix(id, "/Reviewers") }

func isAnonReviewer(id string) bool {
	return strings.Contains(id, "/AnonReviewer") || strings.Contains(id, "/Reviewer_")
}

// reviewersGroupOf maps "X/Submission1/Reviewer_abcd" to "X/Submission1/Reviewers".
func reviewersGroupOf(id string) (string, bool) {
	i := strings.LastIndex(id, "/Reviewer_")
	if i < 0 {
		return "", false
	}
	return id[:i] + "/Reviewers", true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func subset(sub, set []string) bool {
	for _, v := range sub {
		if !contains(set, v) {
			return false
		}
	}
	return true
}

// dedupe keeps the first occurrence of each id and moves "everyone" to the front.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	hasEveryone := false
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if id == everyone {
			hasEveryone = true
			continue
		}
		out = append(out, id)
	}
	if hasEveryone {
		out = append([]string{everyone}, out...)
	}
	return out
}

// intersect returns the members of a also in b, in a's order.
func intersect(a, b []string) []string {
	out := []string{}
	for _, v := range a {
		if contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
