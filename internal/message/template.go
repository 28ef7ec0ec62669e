package message

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/followup/internal/contact"
)

// Template is a reusable message body with {{placeholder}} tokens.
// Subject applies to email templates only.
type Template struct {
	ID        string
	Name      string
	Channel   Channel
	Subject   string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTemplate creates a template with a fresh id.
func NewTemplate(name string, channel Channel, subject, body string) *Template {
	now := time.Now()
	return &Template{
		ID:        uuid.New().String(),
		Name:      name,
		Channel:   channel,
		Subject:   subject,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render substitutes {{key}} tokens from the contact. Keys match
// case-insensitively. Standard keys are first_name, last_name,
// full_name, email, and phone; any other key resolves against custom
// fields. Unresolved tokens stay literal.
func Render(text string, c *contact.Contact) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(token string) string {
		key := placeholderRe.FindStringSubmatch(token)[1]
		if v, ok := renderKey(key, c); ok {
			return v
		}
		return token
	})
}

func renderKey(key string, c *contact.Contact) (string, bool) {
	switch strings.ToLower(key) {
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
	}
	return c.CustomField(key)
}
