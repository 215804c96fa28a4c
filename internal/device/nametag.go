package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Name-tag structure: RTB/<prefix>/<scope>/<seq>.
const (
	// TagRoot is the fixed first segment of every name tag.
	TagRoot = "RTB"

	// ScopeDefault is the scope segment for unassigned devices.
	ScopeDefault = "DEFAULT"

	// tagSeqWidth is the zero-padded width of the sequence segment.
	tagSeqWidth = 3

	// scopeCodeLen is the length of a district scope code.
	scopeCodeLen = 3

	// scopePadChar pads district codes shorter than scopeCodeLen.
	scopePadChar = 'X'
)

// categoryPrefixes maps every category to its tag prefix. The mapping is
// total: anything unrecognised falls back to the "other" prefix.
var categoryPrefixes = map[Category]string{
	CategoryLaptop:    "LT",
	CategoryDesktop:   "DT",
	CategoryProjector: "PT",
	CategoryOther:     "OT",
}

// CategoryPrefix returns the two-letter tag prefix for a category.
// Unknown categories map to the "other" prefix.
func CategoryPrefix(c Category) string {
	if p, ok := categoryPrefixes[c]; ok {
		return p
	}
	return categoryPrefixes[CategoryOther]
}

// DefaultTag returns the tag for an unassigned device of the category.
//
// The sequence is always the literal 001: default tags are deliberately
// NOT unique per device. Downstream exports match on the exact
// "DEFAULT/001" string, so a second unassigned device of the same
// category collides on the name_tag unique index and the caller sees
// ErrDuplicateTag. See doc.go.
func DefaultTag(c Category) string {
	return FormatTag(CategoryPrefix(c), ScopeDefault, 1)
}

// DistrictCode derives the three-letter scope code from a district name:
// uppercase first three characters, right-padded with 'X' when the
// district is shorter than three characters.
func DistrictCode(district string) string {
	code := strings.ToUpper(strings.TrimSpace(district))
	if len(code) > scopeCodeLen {
		code = code[:scopeCodeLen]
	}
	for len(code) < scopeCodeLen {
		code += string(scopePadChar)
	}
	return code
}

// FormatTag assembles a name tag from its segments.
func FormatTag(prefix, scope string, seq int) string {
	return fmt.Sprintf("%s/%s/%s/%0*d", TagRoot, prefix, scope, tagSeqWidth, seq)
}

// TagPattern returns the SQL LIKE pattern matching all tags in a
// (prefix, scope) pair, used for sequence derivation.
func TagPattern(prefix, scope string) string {
	return fmt.Sprintf("%s/%s/%s/%%", TagRoot, prefix, scope)
}

// ParseTagSequence extracts the numeric sequence from a name tag.
// Returns 0 for tags that do not end in a parseable number.
func ParseTagSequence(tag string) int {
	idx := strings.LastIndexByte(tag, '/')
	if idx < 0 || idx == len(tag)-1 {
		return 0
	}
	n, err := strconv.Atoi(tag[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
