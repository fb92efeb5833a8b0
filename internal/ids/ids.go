// Package ids provides the two identifier concerns the core needs:
// time-sortable run identifiers, and validation/normalization for the
// human-readable, slug-like identifiers (line_id, scene_id, route_id) that
// flow through the data model from ingest onward.
//
// Run IDs only need to be unique and totally ordered within a storage root;
// a nanosecond timestamp plus a short random suffix satisfies both without
// adding a UUID dependency, derived the same way as other run identifiers
// built from time.Now().UnixNano().
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// slugRe is the line/scene identifier shape: a lowercase letter run
// followed by one or more underscore-separated numeric segments (e.g.
// "a_1", "scene_12", "npc_3_7").
var slugRe = regexp.MustCompile(`^[a-z]+(?:_[0-9]+)+$`)

// NewRunID returns a new run identifier. IDs generated later sort after IDs
// generated earlier when compared as plain strings, because the timestamp
// component is zero-padded to a fixed width.
func NewRunID() string {
	return fmt.Sprintf("run-%020d-%s", time.Now().UnixNano(), randomSuffix(4))
}

// randomSuffix returns n random hex bytes as a lowercase hex string. It
// exists only to break ties between run IDs minted within the same
// nanosecond tick; it carries no ordering meaning of its own.
func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to the timestamp alone rather than panic.
		return "0000"
	}
	return hex.EncodeToString(buf)
}

// ValidSlug reports whether s is already a well-formed slug-like identifier:
// a run of lowercase ASCII letters followed by one or more "_<digits>"
// segments (so "npc_3_7" is valid, while "npc_greta" and "a__1" are not).
func ValidSlug(s string) bool {
	return slugRe.MatchString(s)
}

// Slugify normalizes s into the `^[a-z]+(?:_[0-9]+)+$` shape adapters must
// produce for line_id/scene_id: every letter in s is folded into a
// single lowercase run, and every digit run in s becomes one underscore-
// prefixed numeric segment, in order of appearance. If s contains no digits
// at all, a single "_1" segment is appended so the result still matches.
func Slugify(s string) string {
	lower := strings.ToLower(s)

	var letters strings.Builder
	var segments []string
	var digitRun strings.Builder

	flushDigits := func() {
		if digitRun.Len() > 0 {
			segments = append(segments, digitRun.String())
			digitRun.Reset()
		}
	}

	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z':
			flushDigits()
			letters.WriteRune(r)
		case r >= '0' && r <= '9':
			digitRun.WriteRune(r)
		default:
			flushDigits()
		}
	}
	flushDigits()

	prefix := letters.String()
	if prefix == "" {
		prefix = "line"
	}
	if len(segments) == 0 {
		segments = []string{"1"}
	}

	return prefix + "_" + strings.Join(segments, "_")
}
