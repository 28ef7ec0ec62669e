package testutil

import (
	"time"

	"github.com/zjrosen/followup/internal/contact"
)

// ContactOption configures a contact during fixture setup.
type ContactOption func(*contact.Contact)

// NewContact creates a contact with both addresses populated, applying
// any options on top.
func NewContact(firstName, lastName string, opts ...ContactOption) *contact.Contact {
	c := contact.New(firstName, lastName)
	c.Email = firstName + "@example.com"
	c.Phone = "+15550100"
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Email sets the contact email.
func Email(email string) ContactOption {
	return func(c *contact.Contact) { c.Email = email }
}

// Phone sets the contact phone number.
func Phone(phone string) ContactOption {
	return func(c *contact.Contact) { c.Phone = phone }
}

// NoAddresses clears both email and phone.
func NoAddresses() ContactOption {
	return func(c *contact.Contact) {
		c.Email = ""
		c.Phone = ""
	}
}

// Status sets the contact status.
func Status(s contact.Status) ContactOption {
	return func(c *contact.Contact) { c.Status = s }
}

// Tags sets the contact tags.
func Tags(tags ...string) ContactOption {
	return func(c *contact.Contact) { c.Tags = tags }
}

// CustomField sets a single custom field.
func CustomField(key, value string) ContactOption {
	return func(c *contact.Contact) { c.CustomFields[key] = value }
}

// Replied marks the contact as having replied.
func Replied() ContactOption {
	return func(c *contact.Contact) { c.Replied = true }
}

// DoNotContact marks the contact as unmessageable.
func DoNotContact() ContactOption {
	return func(c *contact.Contact) { c.DoNotContact = true }
}

// LastContactedAt sets the last outbound contact time.
func LastContactedAt(at time.Time) ContactOption {
	return func(c *contact.Contact) { c.LastContactedAt = &at }
}
