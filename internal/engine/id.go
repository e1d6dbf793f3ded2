package engine

import (
	"fmt"
	"regexp"
)

// MaxContextIDLength bounds context ids so the backing file name stays valid
// on every common file system.
const MaxContextIDLength = 221

var contextIDPattern = regexp.MustCompile(`^[_a-zA-Z0-9][-_a-zA-Z0-9]{0,220}$`)

// ValidateContextID returns ErrInvalidContextID unless id may name a context.
func ValidateContextID(id string) error {
	if !contextIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidContextID, id)
	}
	return nil
}
