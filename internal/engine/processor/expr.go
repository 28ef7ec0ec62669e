package processor

import (
	"regexp"

	"github.com/zjrosen/followup/internal/contact"
	"github.com/zjrosen/followup/internal/engine/evaluator"
)

var contactExprRe = regexp.MustCompile(`\{\{\s*contact\.(\w+)\s*\}\}`)

// ResolveContactExpr substitutes {{contact.<field>}} placeholders in an
// input-mapping value against the contact, using the same field
// resolution as the condition evaluator. Anything else passes through
// literally.
func ResolveContactExpr(s string, c *contact.Contact) string {
	if c == nil {
		return s
	}
	return contactExprRe.ReplaceAllStringFunc(s, func(token string) string {
		field := contactExprRe.FindStringSubmatch(token)[1]
		return evaluator.ResolveField(c, field)
	})
}

// ResolveContactExprMap resolves every value of an input-mapping map.
func ResolveContactExprMap(in map[string]string, c *contact.Contact) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = ResolveContactExpr(v, c)
	}
	return out
}
