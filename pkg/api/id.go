package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const executionIDPrefix = "exec_"

var executionIDPattern = regexp.MustCompile(`^exec_[0-9a-f]{32}$`)

// NewExecutionID generates a new execution ID with the "exec_" prefix
// followed by the 32 hex digits of a random (v4) UUID.
func NewExecutionID() string {
	return executionIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateExecutionID checks whether the given string is a valid execution ID.
func ValidateExecutionID(id string) bool {
	return executionIDPattern.MatchString(id)
}
