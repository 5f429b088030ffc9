package game

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler score a registry name must
// reach before it is offered as a "did you mean" suggestion on a failed
// resolution.
const suggestThreshold = 0.70

// MatchKind classifies the outcome of resolving a name to a participant.
type MatchKind int

const (
	// MatchNone means no tracked participant carries the queried name.
	MatchNone MatchKind = iota

	// MatchUnique means exactly one participant matched.
	MatchUnique

	// MatchAmbiguous means two or more participants share the resolved name.
	MatchAmbiguous
)

// String returns the human-readable name of the kind.
func (k MatchKind) String() string {
	switch k {
	case MatchNone:
		return "no-match"
	case MatchUnique:
		return "unique"
	case MatchAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// MatchResult is the outcome of [Resolve].
type MatchResult struct {
	Kind MatchKind

	// IDs holds the single match for [MatchUnique] or every colliding
	// participant for [MatchAmbiguous]. Empty for [MatchNone].
	IDs []string

	// Suggestion is the closest-sounding tracked name when Kind is
	// [MatchNone], or empty when nothing comes close. Purely advisory.
	Suggestion string
}

// Resolve maps an ambiguous name string (spoken or typed) to registry
// entries. Matching is exact and case-insensitive: aliases are consulted
// first, display names only when no alias matches. Ties yield
// [MatchAmbiguous]. Pure and side-effect-free.
func Resolve(snap Snapshot, query string) MatchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return MatchResult{Kind: MatchNone}
	}

	var byAlias, byDisplay []string
	for _, p := range snap.Participants {
		if p.Alias != "" && strings.EqualFold(p.Alias, q) {
			byAlias = append(byAlias, p.ID)
		}
		if strings.EqualFold(p.DisplayName, q) {
			byDisplay = append(byDisplay, p.ID)
		}
	}

	matched := byAlias
	if len(matched) == 0 {
		matched = byDisplay
	}

	switch len(matched) {
	case 0:
		return MatchResult{Kind: MatchNone, Suggestion: suggest(snap, q)}
	case 1:
		return MatchResult{Kind: MatchUnique, IDs: matched}
	default:
		return MatchResult{Kind: MatchAmbiguous, IDs: matched}
	}
}

// suggest finds the tracked name closest to q. Candidates are filtered by
// Double Metaphone overlap first, then ranked by Jaro-Winkler similarity;
// a candidate below the threshold is discarded.
func suggest(snap Snapshot, q string) string {
	qPrimary, qSecondary := matchr.DoubleMetaphone(q)

	var best string
	var bestScore float64
	for _, p := range snap.Participants {
		for _, name := range []string{p.Alias, p.DisplayName} {
			if name == "" {
				continue
			}
			lower := strings.ToLower(name)
			if !phoneticOverlap(qPrimary, qSecondary, lower) {
				continue
			}
			if score := matchr.JaroWinkler(q, lower, false); score >= suggestThreshold && score > bestScore {
				best, bestScore = name, score
			}
		}
	}
	return best
}

// phoneticOverlap reports whether q and name share a Double Metaphone code.
func phoneticOverlap(qPrimary, qSecondary, name string) bool {
	p, s := matchr.DoubleMetaphone(name)
	for _, qc := range []string{qPrimary, qSecondary} {
		if qc == "" {
			continue
		}
		if qc == p || (s != "" && qc == s) {
			return true
		}
	}
	return false
}
