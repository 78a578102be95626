package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// ToText converts an HTML fragment to plain text for terminal output.
// Entities are decoded, tags stripped, and runs of blank lines and
// indentation left by the template are collapsed.
func ToText(s string) string {
	text := html2text.HTML2TextWithOptions(s, html2text.WithUnixLineBreaks())

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
