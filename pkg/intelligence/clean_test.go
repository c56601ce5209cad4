package intelligence

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCleaner_Clean(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		contains   []string
		notContain []string
	}{
		{
			name:       "strips boilerplate lines",
			input:      "Hello Bob,\nLet's meet Tuesday.\nUnsubscribe from this list\nView in browser\n© 2024 Acme Inc. All rights reserved\n",
			contains:   []string{"Hello Bob,", "Let's meet Tuesday."},
			notContain: []string{"Unsubscribe", "View in browser", "All rights reserved"},
		},
		{
			name:       "converts html",
			input:      "<html><body><p>Quarterly <b>numbers</b> attached.</p><script>track()</script></body></html>",
			contains:   []string{"Quarterly numbers attached."},
			notContain: []string{"<p>", "<b>", "track()"},
		},
		{
			name:       "collapses whitespace",
			input:      "one    two\n\n\n\n\nthree",
			contains:   []string{"one two\n\nthree"},
			notContain: []string{"\n\n\n"},
		},
		{
			name:       "drops markdown links",
			input:      "See [our site](https://acme.com/promo) for more.\n",
			contains:   []string{"See for more."},
			notContain: []string{"acme.com/promo"},
		},
	}

	c := &Cleaner{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := c.Clean(context.Background(), tt.input)
			assert.False(t, truncated)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.notContain {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func TestCleaner_Truncates(t *testing.T) {
	c := &Cleaner{MaxChars: 100}
	input := strings.Repeat("a", 200) + strings.Repeat("z", 200)

	got, truncated := c.Clean(context.Background(), input)
	assert.True(t, truncated)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 70)))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("z", 30)))
	assert.Contains(t, got, strings.TrimSpace(TruncationMarker))
}

func TestTruncateMiddle_Runes(t *testing.T) {
	input := strings.Repeat("é", 50)

	got, truncated := truncateMiddle(input, 10)
	assert.True(t, truncated)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 7)+TruncationMarker+strings.Repeat("é", 3), got)

	got, truncated = truncateMiddle("short", 10)
	assert.False(t, truncated)
	assert.Equal(t, "short", got)
}

func TestCleaner_UnwrapsLinks(t *testing.T) {
	c := &Cleaner{Links: NewLinkResolver(nil, 0)}
	input := "Docs: https://nam02.safelinks.protection.outlook.com/?url=https%3A%2F%2Facme.com%2Fdocs&data=x\n"

	got, _ := c.Clean(context.Background(), input)
	assert.Equal(t, "Docs: https://acme.com/docs", got)
}
