package todo

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no todo has the requested id
	ErrNotFound = errors.New("record not found")

	// ErrTitleConflict is returned by the repository when the unique title
	// index rejects a write
	ErrTitleConflict = errors.New("title already taken")
)

// Violation is a single rule failure
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FullMessage joins the humanized field name and the message, e.g. "Title can't be blank"
func (v Violation) FullMessage() string {
	return humanize(v.Field) + " " + v.Message
}

// ValidationError carries every violation found for one draft, in rule order
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.FullMessages(), ", ")
}

// Add appends a violation
func (e *ValidationError) Add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

// Empty reports whether no violation was recorded
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Violations) == 0
}

// FullMessages flattens the violations into client-facing messages
func (e *ValidationError) FullMessages() []string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.FullMessage())
	}
	return msgs
}

// ByField groups messages by field name
func (e *ValidationError) ByField() map[string][]string {
	m := make(map[string][]string)
	for _, v := range e.Violations {
		m[v.Field] = append(m[v.Field], v.Message)
	}
	return m
}

// Has reports whether field has a violation with message
func (e *ValidationError) Has(field, message string) bool {
	for _, v := range e.Violations {
		if v.Field == field && v.Message == message {
			return true
		}
	}
	return false
}

// BadRequestError means the request envelope itself is unusable
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
