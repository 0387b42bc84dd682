package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a random identifier for configurations and runs.
func NewID() string {
	return uuid.NewString()
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
