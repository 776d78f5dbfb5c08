// Package metadata encodes and decodes the hidden priority/iteration
// block carried in GitHub issue bodies. GitHub has no native fields for
// either, so the body is their only durable home. All construction and
// parsing of the comment block goes through this package; no other code
// touches the pattern.
package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/devpilot-kr/devpilot/internal/apperr"
)

// Sentinels returned when a body carries no metadata block. Issues
// created outside devpilot are expected to look like this; it is valid
// input, not an error.
const (
	PriorityUnknown  = "U"
	IterationUnknown = -1
)

// Priorities accepted by Encode, MoSCoW-style.
var validPriorities = map[string]bool{"M": true, "S": true, "C": true, "W": true}

var (
	decodePattern = regexp.MustCompile(`(?i)<!--\s*priority:\s*(\w+)\s*\n\s*iteration:\s*(\d+)\s*-->`)
	// \s matches newlines, so this covers the canonical multi-line form
	// as well; re-encoding replaces instead of duplicating.
	replacePattern = regexp.MustCompile(`(?i)<!--\s*priority:\s*\w+\s*iteration:\s*\d+\s*-->`)
)

// Decode extracts (priority, iteration) from an issue body. A body with
// no block yields the unknown sentinels and never an error.
func Decode(body string) (priority string, iteration int) {
	m := decodePattern.FindStringSubmatch(body)
	if m == nil {
		return PriorityUnknown, IterationUnknown
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		// Unreachable with the \d+ capture, but fall back to unknown
		// rather than guessing.
		return PriorityUnknown, IterationUnknown
	}
	return m[1], n
}

// Encode validates and embeds (priority, iteration) into body. An
// existing block is replaced in place; otherwise a new block is appended
// after a blank line. Decode(Encode(body, p, i)) returns (p, i) exactly.
func Encode(body, priority string, iteration int) (string, error) {
	if !validPriorities[priority] || iteration < 0 {
		return "", apperr.InvalidPriority(priority, iteration)
	}

	block := fmt.Sprintf("<!--\npriority: %s\niteration: %d\n-->", priority, iteration)

	if replacePattern.MatchString(body) {
		return replacePattern.ReplaceAllString(body, block), nil
	}
	return strings.TrimRight(body, " \t\n") + "\n\n" + block, nil
}
