package normalizer

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"golang.org/x/text/unicode/norm"
)

const maxDescriptionLength = 20000

var converter = md.NewConverter("", true, nil)

var (
	smartQuotes = strings.NewReplacer(
		"‘", "'", "’", "'",
		"“", `"`, "”", `"`,
		"–", "-", "—", "-",
		"…", "...",
	)
	whitespaceRun = regexp.MustCompile(`[ \t]+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
)

// CleanDescription implements spec §4.4 step 7: HTML to Markdown, entity
// decoding (handled by the converter), Unicode NFC normalization,
// smart-quote normalization, whitespace collapse, and a hard length cap.
func CleanDescription(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	text, err := converter.ConvertString(html)
	if err != nil {
		text = html // degrade to the raw input rather than drop the field
	}

	text = norm.NFC.String(text)
	text = smartQuotes.Replace(text)
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if len(text) > maxDescriptionLength {
		text = text[:maxDescriptionLength]
	}
	return text
}

// CleanTitle applies the same Unicode/whitespace normalization as
// CleanDescription without Markdown conversion, since titles never carry
// HTML.
func CleanTitle(title string) string {
	title = norm.NFC.String(title)
	title = smartQuotes.Replace(title)
	title = whitespaceRun.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}
