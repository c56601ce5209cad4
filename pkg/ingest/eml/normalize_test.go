package eml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContent_PrefersHTML(t *testing.T) {
	email := parseFixture(t, "multipart.eml")

	got := NormalizeContent(email)

	assert.Contains(t, got, "<strong>HTML</strong>")
	assert.NotContains(t, got, "alert(1)")
	assert.NotContains(t, got, "color:red")
	assert.NotContains(t, got, "plain text version")
}

func TestNormalizeContent_HTMLOnly(t *testing.T) {
	got := NormalizeContent(parseFixture(t, "html_only.eml"))

	assert.Contains(t, got, "Ready for launch")
	assert.NotContains(t, got, "track()")
}

func TestNormalizeContent_PlainStripsReply(t *testing.T) {
	got := NormalizeContent(parseFixture(t, "simple.eml"))

	assert.Equal(t, "Hi Jane,\n\nThis is a simple test email.", got)
}

func TestNormalizeContent_ScriptOnlyHTMLFallsBackToText(t *testing.T) {
	email := &ParsedEmail{
		BodyHTML: "<html><head><script>x()</script></head><body>  </body></html>",
		BodyText: "plain fallback",
	}

	assert.Equal(t, "plain fallback", NormalizeContent(email))
}

func TestNormalizeContent_Empty(t *testing.T) {
	assert.Equal(t, "", NormalizeContent(nil))
	assert.Equal(t, "", NormalizeContent(&ParsedEmail{}))
}

func TestNormalizeContent_DoesNotTruncate(t *testing.T) {
	long := make([]byte, 50000)
	for i := range long {
		long[i] = 'a'
	}

	got := NormalizeContent(&ParsedEmail{BodyText: string(long)})
	assert.Len(t, got, 50000)
}
