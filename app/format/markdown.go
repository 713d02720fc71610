package format

import (
	"regexp"
	"strings"
)

var (
	reCodeBlock   = regexp.MustCompile("(?s)```.*?```")
	reInlineCode  = regexp.MustCompile("`([^`]*)`")
	reImage       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	reLink        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reMarkdownEsc = regexp.MustCompile(`([\\` + "`" + `*_{}\[\]()#+\-.!|>])`)

	reWikiH6        = regexp.MustCompile(`(?m)^######\s*(.+)$`)
	reWikiH5        = regexp.MustCompile(`(?m)^#####\s*(.+)$`)
	reWikiH4        = regexp.MustCompile(`(?m)^####\s*(.+)$`)
	reWikiH3        = regexp.MustCompile(`(?m)^###\s*(.+)$`)
	reWikiH2        = regexp.MustCompile(`(?m)^##\s*(.+)$`)
	reWikiH1        = regexp.MustCompile(`(?m)^#\s*(.+)$`)
	reWikiBoldStar  = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reWikiBoldUnder = regexp.MustCompile(`__(.+?)__`)
	reWikiItalStar  = regexp.MustCompile(`\*([^*\n]+)\*`)
	reWikiItalUnder = regexp.MustCompile(`_([^_\n]+)_`)
	reWikiLink      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reWikiImage     = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	reWikiInline    = regexp.MustCompile("`([^`]+)`")
	reWikiCode      = regexp.MustCompile("(?s)```\\w*\\n?(.*?)```")
	reWikiUList     = regexp.MustCompile(`(?m)^[\-\*]\s+`)
	reWikiOList     = regexp.MustCompile(`(?m)^\d+\.\s+`)
	reWikiHRule     = regexp.MustCompile(`(?m)^[\-\*]{3,}\s*$`)
)

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// stripMarkdown flattens markdown to plain text: code blocks removed,
// inline code and links reduced to their text.
func stripMarkdown(text string) string {
	cleaned := strings.TrimSpace(normalizeNewlines(text))
	cleaned = reCodeBlock.ReplaceAllString(cleaned, "")
	cleaned = reInlineCode.ReplaceAllString(cleaned, "$1")
	cleaned = reImage.ReplaceAllString(cleaned, "$1")
	cleaned = reLink.ReplaceAllString(cleaned, "$1")
	return cleaned
}

func escapeMarkdown(text string) string {
	return reMarkdownEsc.ReplaceAllString(text, `\$1`)
}

func cleanDescription(text string) string {
	if text == "" {
		return Missing
	}
	cleaned := stripMarkdown(text)
	if cleaned == "" {
		return Missing
	}
	return escapeMarkdown(cleaned)
}

// markdownDescription keeps the markdown, only normalizing line endings.
func markdownDescription(text string) string {
	if text == "" {
		return Missing
	}
	return strings.TrimSpace(normalizeNewlines(text))
}

// wikiDescription converts markdown to MediaWiki wikitext.
func wikiDescription(text string) string {
	if text == "" {
		return Missing
	}
	result := strings.TrimSpace(normalizeNewlines(text))

	result = reWikiH6.ReplaceAllString(result, "====== $1 ======")
	result = reWikiH5.ReplaceAllString(result, "===== $1 =====")
	result = reWikiH4.ReplaceAllString(result, "==== $1 ====")
	result = reWikiH3.ReplaceAllString(result, "=== $1 ===")
	result = reWikiH2.ReplaceAllString(result, "== $1 ==")
	result = reWikiH1.ReplaceAllString(result, "= $1 =")

	// Code blocks go before inline code so the fences are not eaten.
	result = reWikiCode.ReplaceAllString(result, "<pre>$1</pre>")
	result = reWikiInline.ReplaceAllString(result, "<code>$1</code>")

	// Images before links: the image syntax is a superset.
	result = reWikiImage.ReplaceAllString(result, "[[File:$2|$1]]")
	result = reWikiLink.ReplaceAllString(result, "[$2 $1]")

	// Bold before italic so ** pairs are consumed first.
	result = reWikiBoldStar.ReplaceAllString(result, "'''$1'''")
	result = reWikiBoldUnder.ReplaceAllString(result, "'''$1'''")
	result = reWikiItalStar.ReplaceAllString(result, "''$1''")
	result = reWikiItalUnder.ReplaceAllString(result, "''$1''")

	result = reWikiHRule.ReplaceAllString(result, "----")
	result = reWikiUList.ReplaceAllString(result, "* ")
	result = reWikiOList.ReplaceAllString(result, "# ")

	return result
}
