package version

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/vigneshm/keel/internal/keelerrors"
	"github.com/vigneshm/keel/internal/model"
)

var builtinDockerPatterns = map[model.DockerTagKind]string{
	model.DockerTagIncreasing:      `^(\d+)$`,
	model.DockerTagSemver:          `^v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)$`,
	model.DockerTagBranchQualified: `^[A-Za-z0-9_.\/-]+-(\d+)$`,
}

// dockerComparator implements the Docker tag strategy: a regex (built-in
// per kind, or caller-supplied) extracts exactly one capture group from
// the tag, compared as an integer or semver depending on kind.
type dockerComparator struct {
	artifact string
	kind     model.DockerTagKind
	logger   *slog.Logger
	re       *regexp.Regexp
}

func (c *dockerComparator) compile(customRegex string) error {
	pattern := customRegex
	if pattern == "" {
		pattern = builtinDockerPatterns[c.kind]
		if pattern == "" {
			pattern = builtinDockerPatterns[model.DockerTagIncreasing]
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if re.NumSubexp() > 1 {
		return keelerrors.ErrInvalidRegex
	}
	c.re = re
	return nil
}

func (c *dockerComparator) extract(tag string) (string, bool) {
	m := c.re.FindStringSubmatch(tag)
	if m == nil {
		return "", false
	}
	if c.re.NumSubexp() == 0 {
		warnUnparseable(c.logger, c.artifact, tag, "regex has zero capture groups")
		return "", false
	}
	return m[1], true
}

func (c *dockerComparator) Compare(a, b string) int {
	aGroup, aOK := c.extract(a)
	bGroup, bOK := c.extract(b)
	if !aOK {
		warnUnparseable(c.logger, c.artifact, a, "tag does not match strategy regex")
	}
	if !bOK {
		warnUnparseable(c.logger, c.artifact, b, "tag does not match strategy regex")
	}
	return compareRanked(aOK, a, bOK, b, func() int {
		return c.compareGroups(aGroup, bGroup)
	})
}

func (c *dockerComparator) compareGroups(a, b string) int {
	switch c.kind {
	case model.DockerTagSemver:
		return c.compareSemver(a, b)
	default:
		return c.compareIntegerOrFallback(a, b)
	}
}

func (c *dockerComparator) compareSemver(a, b string) int {
	av, aErr := semver.NewVersion(strings.TrimPrefix(a, "v"))
	bv, bErr := semver.NewVersion(strings.TrimPrefix(b, "v"))
	aOK, bOK := aErr == nil, bErr == nil
	if !aOK {
		warnUnparseable(c.logger, c.artifact, a, "not valid semver")
	}
	if !bOK {
		warnUnparseable(c.logger, c.artifact, b, "not valid semver")
	}
	return compareRanked(aOK, a, bOK, b, func() int { return av.Compare(bv) })
}

func (c *dockerComparator) compareIntegerOrFallback(a, b string) int {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
