package render

import (
	"html"
	"strings"
)

// BotMessage formats backend reply text as HTML. Each line is escaped;
// lines ending in "?" are emphasised, other lines starting with "-" become
// list items with consecutive items sharing one list, and the remaining
// lines are joined with <br>.
func BotMessage(text string) string {
	var b strings.Builder
	inList := false
	needBreak := false

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		question := strings.HasSuffix(trimmed, "?")

		if !question && strings.HasPrefix(trimmed, "-") {
			if !inList {
				b.WriteString("<ul>")
				inList = true
			}
			b.WriteString("<li>")
			b.WriteString(html.EscapeString(strings.TrimSpace(trimmed[1:])))
			b.WriteString("</li>")
			needBreak = false
			continue
		}
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
		if trimmed == "" {
			continue
		}
		if needBreak {
			b.WriteString("<br>")
		}
		if question {
			b.WriteString("<strong>" + html.EscapeString(trimmed) + "</strong>")
		} else {
			b.WriteString(html.EscapeString(trimmed))
		}
		needBreak = true
	}
	if inList {
		b.WriteString("</ul>")
	}
	return b.String()
}
