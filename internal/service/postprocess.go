package service

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"invest-assist-go/internal/model"
)

var (
	// 第一组为 markdown 链接 [text](url)，否则整个匹配是裸 URL
	linkPattern      = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^\s)]+)\)|https?://[^\s<>"'` + "`" + `]+`)
	paragraphPattern = regexp.MustCompile(`\n{2,}`)
)

const urlTrailingPunct = ".,;:!?)]}"

// FormatModelReply 把模型的纯文本回复转换为可直接渲染的 HTML 片段：
// 先转义，再把 markdown 链接和裸 URL 转为锚点，最后把段落和换行转为 <br>。
func FormatModelReply(raw string) string {
	text := strings.ReplaceAll(strings.TrimSpace(raw), "\r\n", "\n")

	var b strings.Builder
	last := 0
	for _, m := range linkPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		b.WriteString(html.EscapeString(text[last:start]))
		if m[2] >= 0 {
			b.WriteString(anchor(text[m[4]:m[5]], text[m[2]:m[3]]))
		} else {
			url := strings.TrimRight(text[start:end], urlTrailingPunct)
			b.WriteString(anchor(url, url))
			b.WriteString(html.EscapeString(text[start+len(url) : end]))
		}
		last = end
	}
	b.WriteString(html.EscapeString(text[last:]))

	out := paragraphPattern.ReplaceAllString(b.String(), "<br><br>")
	return strings.ReplaceAll(out, "\n", "<br>")
}

func anchor(url, label string) string {
	return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`,
		html.EscapeString(url), html.EscapeString(label))
}

// sourceFooter 为每条检索结果生成一行引用，序号从 1 开始。
func sourceFooter(results []model.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	lines := make([]string, 0, len(results))
	for i, r := range results {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = r.URL
		}
		entry := html.EscapeString(title)
		if r.URL != "" {
			entry = anchor(r.URL, title)
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, entry))
	}
	return "<br><br><strong>Sources:</strong><br>" + strings.Join(lines, "<br>")
}

// mergeSuggestions 先取检索标题再取通用问题，按不区分大小写去重，最多 limit 条。
func mergeSuggestions(limit int, groups ...[]string) []string {
	out := make([]string, 0, limit)
	seen := make(map[string]struct{})
	for _, group := range groups {
		for _, s := range group {
			if len(out) == limit {
				return out
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			key := strings.ToLower(s)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
