package domain

import "fmt"

// ValidationError is raised before any network call for input that cannot be
// submitted. Field names the offending input.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
