package extract

import (
	"regexp"
	"strings"
)

var (
	mdFence       = regexp.MustCompile("(?m)^\\s*(```|~~~)[^\\n]*$")
	mdImage       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdHeading     = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	mdBlockquote  = regexp.MustCompile(`(?m)^\s*>\s?`)
	mdRule        = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	mdBullet      = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	mdEmphasis    = regexp.MustCompile(`(\*\*|__|\*|_)([^*_\n]+)(\*\*|__|\*|_)`)
	mdInlineCode  = regexp.MustCompile("`([^`\\n]+)`")
	mdFrontMatter = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
	mdBlankRuns   = regexp.MustCompile(`\n{3,}`)
)

// markdownTitle is the first ATX H1, else the front-matter-free filename.
func markdownTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			if title := strings.TrimSpace(strings.TrimPrefix(line, "# ")); title != "" {
				return title
			}
		}
	}
	return titleFromFilename(path)
}

// stripMarkdown removes markup but keeps the words, including code inside
// fenced blocks, since personal notes often hold snippets worth finding.
func stripMarkdown(content string) string {
	content = normalizeNewlines(content)
	content = mdFrontMatter.ReplaceAllString(content, "")
	content = mdFence.ReplaceAllString(content, "")
	content = mdImage.ReplaceAllString(content, "$1")
	content = mdLink.ReplaceAllString(content, "$1")
	content = mdHeading.ReplaceAllString(content, "")
	content = mdBlockquote.ReplaceAllString(content, "")
	content = mdRule.ReplaceAllString(content, "")
	content = mdBullet.ReplaceAllString(content, "$1")
	content = mdEmphasis.ReplaceAllString(content, "$2")
	content = mdInlineCode.ReplaceAllString(content, "$1")
	content = mdBlankRuns.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
