// Package version implements the per-artifact-kind version comparators:
// Debian dpkg-style comparison for Debian artifacts, and regex-driven tag
// comparison (integer, semver, or custom capture group) for Docker
// artifacts.
package version

import (
	"log/slog"
	"sync"

	"github.com/vigneshm/keel/internal/model"
)

// Comparator produces a strict total ordering on version strings. Compare
// returns a positive number if a ranks higher (newer) than b, negative if
// lower, zero if equal. Unparseable inputs rank lowest.
type Comparator interface {
	Compare(a, b string) int
}

var warnedOnce sync.Map

func warnUnparseable(logger *slog.Logger, artifact, input, reason string) {
	if _, already := warnedOnce.LoadOrStore(artifact+"\x00"+input, struct{}{}); already {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("unparseable version", "artifact", artifact, "version", input, "reason", reason)
}

// ForArtifact returns the comparator for a's versioning strategy.
func ForArtifact(a model.Artifact, logger *slog.Logger) (Comparator, error) {
	if !a.Strategy.IsDocker {
		return &debianComparator{artifact: a.Name, logger: logger}, nil
	}
	cmp := &dockerComparator{artifact: a.Name, kind: a.Strategy.DockerKind, logger: logger}
	if err := cmp.compile(a.Strategy.CustomRegex); err != nil {
		return nil, err
	}
	return cmp, nil
}

// compareRanked ranks a parsed version above any unparseable one; among
// two unparseable versions the original string is compared for a stable,
// deterministic tiebreak.
func compareRanked(aParsed bool, aRaw string, bParsed bool, bRaw string, parsedCmp func() int) int {
	switch {
	case aParsed && bParsed:
		return parsedCmp()
	case aParsed && !bParsed:
		return 1
	case !aParsed && bParsed:
		return -1
	default:
		if aRaw < bRaw {
			return -1
		}
		if aRaw > bRaw {
			return 1
		}
		return 0
	}
}
