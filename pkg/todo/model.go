package todo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Todo is the single managed entity
type Todo struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Draft is a candidate record on its way to validation and storage.
// Completed is nil when the client supplied something other than a boolean.
type Draft struct {
	Title       string
	Description *string
	Completed   *bool
}

// NewDraft returns the defaults for a record being created
func NewDraft() Draft {
	completed := false
	return Draft{Completed: &completed}
}

// DraftOf returns a draft holding the stored values of t
func DraftOf(t Todo) Draft {
	completed := t.Completed
	d := Draft{Title: t.Title, Completed: &completed}
	if t.Description != nil {
		desc := *t.Description
		d.Description = &desc
	}
	return d
}

// Filter selects todos in List. Zero values impose no constraint.
type Filter struct {
	// Title matches as a case-insensitive substring
	Title string
	// Completed matches exactly when non-nil
	Completed *bool
}

// Params carries the keys a client sent under "todo". Keys that were not
// sent leave the draft untouched; anything else is ignored.
type Params struct {
	Title       OptionalString `json:"title"`
	Description OptionalString `json:"description"`
	Completed   OptionalBool   `json:"completed"`
}

// Apply merges the supplied keys into d
func (p Params) Apply(d Draft) Draft {
	if p.Title.Set {
		d.Title = p.Title.Value
	}
	if p.Description.Set {
		if p.Description.Null {
			d.Description = nil
		} else {
			desc := p.Description.Value
			d.Description = &desc
		}
	}
	if p.Completed.Set {
		if p.Completed.Valid {
			v := p.Completed.Value
			d.Completed = &v
		} else {
			d.Completed = nil
		}
	}
	return d
}

// OptionalString distinguishes an absent key, a null and a string. Numbers
// and booleans are kept as their JSON text.
type OptionalString struct {
	Set   bool
	Null  bool
	Value string
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Null = true
		o.Value = ""
		return nil
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		o.Value = v
	case json.Number:
		o.Value = v.String()
	case bool:
		o.Value = strconv.FormatBool(v)
	default:
		return fmt.Errorf("todo: cannot read %s as a string", b)
	}
	return nil
}

// OptionalBool records whether the key was sent and whether its value was
// a JSON boolean. Other values are kept as invalid rather than rejected, so
// validation can report them.
type OptionalBool struct {
	Set   bool
	Valid bool
	Value bool
}

func (o *OptionalBool) UnmarshalJSON(b []byte) error {
	o.Set = true
	switch string(bytes.TrimSpace(b)) {
	case "true":
		o.Valid, o.Value = true, true
	case "false":
		o.Valid, o.Value = true, false
	default:
		o.Valid, o.Value = false, false
	}
	return nil
}

// String returns a pointer to s, for building drafts and params
func String(s string) *string {
	return &s
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}
