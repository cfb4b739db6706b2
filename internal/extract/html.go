package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTitleTag   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlDropBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`),
		regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`),
		regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`),
		regexp.MustCompile(`(?s)<!--.*?-->`),
	}
	htmlBlockBreak = regexp.MustCompile(`(?i)</?(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article|header|footer)(\s[^>]*)?/?>`)
	htmlAnyTag     = regexp.MustCompile(`<[^>]+>`)
	htmlSpaceRuns  = regexp.MustCompile(`[ \t\r\f\v]+`)
)

func htmlTitle(content, path string) string {
	if m := htmlTitleTag.FindStringSubmatch(content); len(m) > 1 {
		if title := strings.TrimSpace(html.UnescapeString(m[1])); title != "" {
			return title
		}
	}
	return titleFromFilename(path)
}

// stripHTML keeps visible text, one block element per line.
func stripHTML(content string) string {
	for _, re := range htmlDropBlocks {
		content = re.ReplaceAllString(content, "")
	}
	content = htmlBlockBreak.ReplaceAllString(content, "\n")
	content = htmlAnyTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = htmlSpaceRuns.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
