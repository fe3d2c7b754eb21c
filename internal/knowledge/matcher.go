package knowledge

import (
	"strings"

	"invest-assist-go/internal/model"
)

// Lookup 返回第一条命中的规则。
func (t Table) Lookup(message string) (Rule, bool) {
	normalized := Normalize(message)
	if normalized == "" {
		return Rule{}, false
	}
	for _, rule := range t {
		if rule.matches(normalized) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (r Rule) matches(normalized string) bool {
	switch r.Kind {
	case KindExact, KindFuzzy:
		for _, p := range r.Patterns {
			if strings.Contains(normalized, p) {
				return true
			}
		}
		return false
	case KindLegacyRegex:
		return r.Regexp != nil && r.Regexp.MatchString(normalized)
	default:
		return false
	}
}

// Match 对消息求值规则表，返回第一条命中规则的应答。无副作用。
func Match(message string, table Table) (model.Reply, bool) {
	rule, ok := table.Lookup(message)
	if !ok {
		return model.Reply{}, false
	}
	return model.Reply{
		Text:      rule.Reply.Text,
		Suggested: append([]string(nil), rule.Reply.Suggested...),
	}, true
}
