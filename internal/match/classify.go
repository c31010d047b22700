package match

import (
	"strings"

	"svj-registry/internal/domain"
)

// Thresholds holds the similarity cutoffs used across classification and
// exchange. Hoisted into one struct so boundary behavior is testable
// without patching constants.
type Thresholds struct {
	// Partial: classifier reports StatusPartial at or above this ratio.
	Partial float64
	// Suggest: minimum ratio for candidate suggestions shown to the
	// operator. Looser than Partial since a human makes the final call.
	Suggest float64
	// Auto: minimum ratio for unattended bulk exchange. Only very close
	// matches are auto-applied.
	Auto float64
}

// DefaultThresholds returns the production cutoffs, tuned for short
// personal names.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Partial: 0.75,
		Suggest: 0.5,
		Auto:    0.9,
	}
}

// Classifier assigns a discrepancy status to one current/external owner
// alignment. Pure: no I/O, deterministic for a given Thresholds.
type Classifier struct {
	thresholds Thresholds
}

func NewClassifier(t Thresholds) Classifier {
	return Classifier{thresholds: t}
}

// Classify compares the current owner name/share against the external
// snapshot's name/share. Names are trimmed and compared
// case-insensitively. Cheap exact and token-swap checks run before the
// O(n·m) fuzzy ratio so large batches stay fast.
//
// Priority order: missing, match, share_mismatch, reordered, partial,
// different. An empty current name always yields missing, even when the
// external name is also empty.
func (c Classifier) Classify(currentName, externalName, currentShare, externalShare string) domain.SyncStatus {
	cur := Normalize(currentName)
	ext := Normalize(externalName)

	if cur == "" {
		return domain.StatusMissing
	}

	sharesEqual := strings.TrimSpace(currentShare) == strings.TrimSpace(externalShare)

	if cur == ext {
		if sharesEqual {
			return domain.StatusMatch
		}
		return domain.StatusShareMismatch
	}

	// Two-token external name with tokens swapped, e.g. "Jan Novák" vs
	// "Novák Jan". A share difference still wins over the reordering.
	if parts := strings.Fields(ext); len(parts) == 2 {
		if parts[1]+" "+parts[0] == cur {
			if sharesEqual {
				return domain.StatusReordered
			}
			return domain.StatusShareMismatch
		}
	}

	if Ratio(cur, ext) >= c.thresholds.Partial {
		return domain.StatusPartial
	}

	return domain.StatusDifferent
}

// Normalize prepares a name for comparison: trim surrounding whitespace
// and lowercase.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
