package domain

import (
	"context"
	"fmt"
	"strings"
)

// LearnerKey is a normalized registration number.
type LearnerKey string

// NormalizeKey trims surrounding whitespace and upper-cases a raw
// registration number. Every lookup and storage path uses the result.
func NormalizeKey(raw string) (LearnerKey, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return "", fmt.Errorf("%w: registration number is required", ErrInvalidInput)
	}
	return LearnerKey(key), nil
}

// Learner is a roster entry. It is read-only once loaded.
type Learner struct {
	Key        LearnerKey
	Name       string
	Contact    string            // Optional email address
	Attributes map[string]string // Dept, Year, Section, ...
}

// Attribute returns the named attribute, matched case-insensitively.
func (l *Learner) Attribute(name string) string {
	if v, ok := l.Attributes[name]; ok {
		return v
	}
	for k, v := range l.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Roster resolves learner keys to roster entries.
type Roster interface {
	Get(ctx context.Context, key LearnerKey) (*Learner, error)
	Len() int
}
