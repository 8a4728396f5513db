package outreach

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"reachloop/models"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render substitutes {{name}} placeholders with values from vars. It is
// pure: same inputs, same output. Missing variables render as an empty
// string and values are HTML-escaped before substitution.
func Render(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		value, ok := vars[name]
		if !ok {
			return ""
		}
		return html.EscapeString(value)
	})
}

// RenderMessage renders a template's subject and body with one variable bag.
func RenderMessage(tpl *models.MessageTemplate, vars map[string]string) (subject, body string) {
	return Render(tpl.Subject, vars), Render(tpl.Body, vars)
}

// ValidateTemplate rejects unbalanced placeholder braces.
func ValidateTemplate(template string) error {
	opens := strings.Count(template, "{{")
	closes := strings.Count(template, "}}")
	if opens != closes {
		return fmt.Errorf("unbalanced placeholder braces: %d opening, %d closing", opens, closes)
	}
	return nil
}

// ExtractVariables returns the distinct placeholder names in first-seen order.
func ExtractVariables(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// BuildVars assembles the variable bag for a contact. Custom fields are
// exposed under their own names and never shadow the built-ins.
func BuildVars(contact *models.Contact) map[string]string {
	vars := map[string]string{
		"first_name": contact.FirstName,
		"last_name":  contact.LastName,
		"full_name":  strings.TrimSpace(contact.FirstName + " " + contact.LastName),
		"company":    contact.Company,
		"job_title":  contact.JobTitle,
		"email":      contact.Email,
		"phone":      contact.Phone,
	}
	for _, f := range contact.CustomFields {
		if _, exists := vars[f.Name]; !exists {
			vars[f.Name] = f.Value
		}
	}
	return vars
}
