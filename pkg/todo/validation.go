package todo

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fluxorio/todos/pkg/core/failfast"
)

const (
	TitleMinLength       = 2
	TitleMaxLength       = 100
	DescriptionMaxLength = 500
)

// Validation messages, completed by the humanized field name
const (
	MsgBlank        = "can't be blank"
	MsgTaken        = "has already been taken"
	MsgNotIncluded  = "is not included in the list"
	MsgOnlyNumbers  = "cannot be only numbers"
	msgTooShortTmpl = "is too short (minimum is %d characters)"
	msgTooLongTmpl  = "is too long (maximum is %d characters)"
)

var onlyDigits = regexp.MustCompile(`\A[0-9]+\z`)

// TitleChecker reports whether a title is used by a row other than excludeID.
// excludeID is 0 for records not yet stored.
type TitleChecker interface {
	TitleTaken(ctx context.Context, title string, excludeID int64) (bool, error)
}

// Validator applies the todo rules. Every rule is evaluated so a client
// sees all problems at once.
type Validator struct {
	titles TitleChecker
}

// NewValidator creates a validator that looks up title uniqueness in titles
func NewValidator(titles TitleChecker) *Validator {
	failfast.NotNil(titles, "titles")
	return &Validator{titles: titles}
}

// TooShort returns the length violation message for a minimum
func TooShort(min int) string { return fmt.Sprintf(msgTooShortTmpl, min) }

// TooLong returns the length violation message for a maximum
func TooLong(max int) string { return fmt.Sprintf(msgTooLongTmpl, max) }

// Validate checks d, which is stored as id (0 for a new record).
// It returns nil when d is valid, a *ValidationError listing the violations
// otherwise, or an error when the uniqueness lookup itself failed.
func (v *Validator) Validate(ctx context.Context, id int64, d Draft) (*ValidationError, error) {
	verr := &ValidationError{}
	titleBlank := strings.TrimSpace(d.Title) == ""

	if titleBlank {
		verr.Add("title", MsgBlank)
	}

	switch n := utf8.RuneCountInString(d.Title); {
	case n < TitleMinLength:
		verr.Add("title", TooShort(TitleMinLength))
	case n > TitleMaxLength:
		verr.Add("title", TooLong(TitleMaxLength))
	}

	if !titleBlank {
		taken, err := v.titles.TitleTaken(ctx, d.Title, id)
		if err != nil {
			return nil, fmt.Errorf("check title uniqueness: %w", err)
		}
		if taken {
			verr.Add("title", MsgTaken)
		}
	}

	if d.Description != nil && strings.TrimSpace(*d.Description) != "" &&
		utf8.RuneCountInString(*d.Description) > DescriptionMaxLength {
		verr.Add("description", TooLong(DescriptionMaxLength))
	}

	if d.Completed == nil {
		verr.Add("completed", MsgNotIncluded)
	}

	if !titleBlank && onlyDigits.MatchString(d.Title) {
		verr.Add("title", MsgOnlyNumbers)
	}

	if verr.Empty() {
		return nil, nil
	}
	return verr, nil
}
