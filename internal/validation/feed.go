// Package validation checks user input before it reaches the feed session.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxCommentLength is the longest comment body accepted, in characters.
const MaxCommentLength = 2000

var postIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidatePostID checks that id looks like an opaque backend identifier.
func ValidatePostID(id string) error {
	if !postIDRegex.MatchString(id) {
		return fmt.Errorf("post id must be 1-64 characters of letters, digits, '-' or '_'")
	}
	return nil
}

// ValidateCommentBody checks a comment before it is written.
func ValidateCommentBody(body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("comment cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxCommentLength {
		return fmt.Errorf("comment must be at most %d characters", MaxCommentLength)
	}
	return nil
}

// ValidateScrollOffset checks a scroll offset reported by the UI.
func ValidateScrollOffset(offset float64) error {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return fmt.Errorf("scroll offset must be a finite number")
	}
	if offset < 0 {
		return fmt.Errorf("scroll offset cannot be negative")
	}
	return nil
}
