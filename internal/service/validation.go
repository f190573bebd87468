package service

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxStaffNoteLength   = 500
	MaxNameLength        = 50
	MinPasswordLength    = 6
)

// fieldErrors accumulates one message per offending field; the first message for a field wins.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

func (f fieldErrors) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		f.add(field, "is required")
		return false
	}
	return true
}

func (f fieldErrors) maxLength(field, value string, limit int) {
	if utf8.RuneCountInString(value) > limit {
		f.add(field, fmt.Sprintf("must be at most %d characters", limit))
	}
}
