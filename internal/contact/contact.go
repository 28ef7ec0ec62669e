// Package contact holds the people the engine messages: lifecycle
// status, tags, custom fields, and the mutation events that drive
// trigger fan-out. The engine treats contacts as read-mostly; workflow
// processors mutate nothing here except status.
package contact

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a contact.
type Status string

const (
	StatusNew          Status = "new"
	StatusContacted    Status = "contacted"
	StatusResponded    Status = "responded"
	StatusQualified    Status = "qualified"
	StatusDisqualified Status = "disqualified"
)

// IsValid returns true if this is a recognized Status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusResponded, StatusQualified, StatusDisqualified:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Contact is a messageable person.
type Contact struct {
	ID              string
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Status          Status
	DoNotContact    bool
	Replied         bool
	LastContactedAt *time.Time
	Tags            []string
	CustomFields    map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New creates a contact in status "new" with a fresh id.
func New(firstName, lastName string) *Contact {
	now := time.Now()
	return &Contact{
		ID:           uuid.New().String(),
		FirstName:    firstName,
		LastName:     lastName,
		Status:       StatusNew,
		CustomFields: map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// FullName joins the name parts, tolerating either being empty.
func (c *Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// HasTag reports tag membership, case-insensitively.
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// StandardField resolves one of the built-in field names. Booleans
// render as "true"/"false", timestamps as RFC 3339, absent values as
// the empty string.
func (c *Contact) StandardField(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "first_name":
		return c.FirstName, true
	case "last_name":
		return c.LastName, true
	case "full_name":
		return c.FullName(), true
	case "email":
		return c.Email, true
	case "phone":
		return c.Phone, true
	case "status":
		return string(c.Status), true
	case "replied":
		if c.Replied {
			return "true", true
		}
		return "false", true
	case "last_contacted":
		if c.LastContactedAt == nil {
			return "", true
		}
		return c.LastContactedAt.Format(time.RFC3339), true
	}
	return "", false
}

// CustomField resolves a custom field by case-insensitive name.
func (c *Contact) CustomField(name string) (string, bool) {
	if v, ok := c.CustomFields[name]; ok {
		return v, true
	}
	for k, v := range c.CustomFields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
