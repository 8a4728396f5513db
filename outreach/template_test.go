package outreach

import (
	"testing"

	"reachloop/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	out := Render("Hi {{first_name}}, greetings from {{company}}!", map[string]string{
		"first_name": "Ada",
		"company":    "Initech",
	})
	assert.Equal(t, "Hi Ada, greetings from Initech!", out)
}

func TestRenderMissingVariablesAreEmpty(t *testing.T) {
	out := Render("Hi {{first_name}}{{unknown}}!", map[string]string{
		"first_name": "Ada",
	})
	assert.Equal(t, "Hi Ada!", out)
}

func TestRenderEscapesValues(t *testing.T) {
	out := Render("{{payload}}", map[string]string{
		"payload": `<script>alert("x")</script>`,
	})
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestRenderIsDeterministic(t *testing.T) {
	vars := map[string]string{"first_name": "Ada", "company": "Initech"}
	tpl := "Hi {{first_name}} of {{ company }}, re {{missing}}"
	first := Render(tpl, vars)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Render(tpl, vars))
	}
}

func TestRenderToleratesWhitespaceInPlaceholders(t *testing.T) {
	out := Render("{{ first_name }}", map[string]string{"first_name": "Ada"})
	assert.Equal(t, "Ada", out)
}

func TestValidateTemplate(t *testing.T) {
	assert.NoError(t, ValidateTemplate("Hi {{first_name}}"))
	assert.NoError(t, ValidateTemplate("no placeholders"))
	assert.Error(t, ValidateTemplate("Hi {{first_name}"))
	assert.Error(t, ValidateTemplate("Hi first_name}}"))
}

func TestExtractVariables(t *testing.T) {
	names := ExtractVariables("{{a}} {{b}} {{a}} {{ c }}")
	assert.Equal(t, []string{"a", "b", "c"}, names)

	assert.Empty(t, ExtractVariables("plain text"))
}

func TestBuildVars(t *testing.T) {
	contact := &models.Contact{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Company:   "Analytical Engines",
		Email:     "ada@example.com",
		CustomFields: []models.ContactCustomField{
			{Name: "favorite_tool", Value: "difference engine"},
			{Name: "email", Value: "should-not-shadow"},
		},
	}

	vars := BuildVars(contact)
	require.NotNil(t, vars)
	assert.Equal(t, "Ada", vars["first_name"])
	assert.Equal(t, "Ada Lovelace", vars["full_name"])
	assert.Equal(t, "difference engine", vars["favorite_tool"])
	// built-ins win over custom fields with the same name
	assert.Equal(t, "ada@example.com", vars["email"])
}
