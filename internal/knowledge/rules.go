package knowledge

import (
	"regexp"

	"invest-assist-go/internal/config"
	"invest-assist-go/internal/model"
)

// RuleKind 标记规则的匹配方式。
type RuleKind string

const (
	KindExact       RuleKind = "exact"       // 快捷意图的触发短语
	KindFuzzy       RuleKind = "fuzzy"       // 模糊意图的关键词与同义词
	KindLegacyRegex RuleKind = "legacyRegex" // 固定优先级的开户类正则
)

// Rule 是规则表中的一行。Patterns 已经过 Normalize。
type Rule struct {
	Kind     RuleKind
	Name     string
	Patterns []string
	Regexp   *regexp.Regexp
	Reply    model.Reply
}

// Table 是有序规则表，构建后只读，可被并发请求共享。
type Table []Rule

type legacyRule struct {
	name      string
	pattern   *regexp.Regexp
	suggested []string
}

// legacyRules 的顺序即优先级：register, kyc, pan, aadhaar, documents, tat。
// 文案来自 responses.onboarding.<name>，未配置文案的规则不参与匹配。
var legacyRules = []legacyRule{
	{
		name:      "register",
		pattern:   regexp.MustCompile(`\b(register|registration|sign ?up|create (an )?account|open (an )?account)\b`),
		suggested: []string{"What documents do I need?", "How long does activation take?"},
	},
	{
		name:      "kyc",
		pattern:   regexp.MustCompile(`\bkyc\b|know your customer`),
		suggested: []string{"What documents do I need?", "How do I register?"},
	},
	{
		name:      "pan",
		pattern:   regexp.MustCompile(`\bpan( card)?\b`),
		suggested: []string{"What is KYC?", "What documents do I need?"},
	},
	{
		name:      "aadhaar",
		pattern:   regexp.MustCompile(`\baadh?aa?r\b`),
		suggested: []string{"What is KYC?", "What documents do I need?"},
	},
	{
		name:      "documents",
		pattern:   regexp.MustCompile(`\b(documents?|docs|papers)\b.*\b(need|needed|required|list|submit)\b|\b(need|required|list)\b.*\b(documents?|docs|papers)\b`),
		suggested: []string{"How do I register?", "How long does activation take?"},
	},
	{
		name:      "tat",
		pattern:   regexp.MustCompile(`\bhow long\b|\bturn ?around\b|\btat\b|\bhow many days\b|\bactivation time\b`),
		suggested: []string{"How do I register?", "What is KYC?"},
	},
}

// BuildTable 按固定优先级构建规则表：快捷意图、模糊意图、开户类正则。
func BuildTable(cfg config.KnowledgeConfig) Table {
	table := make(Table, 0, len(cfg.Flows)+len(cfg.Intents)+len(legacyRules))

	for _, flow := range QuickIntents(cfg) {
		patterns := normalizeAll(flow.Triggers)
		if len(patterns) == 0 || flow.Response == "" {
			continue
		}
		table = append(table, Rule{
			Kind:     KindExact,
			Name:     flow.Name,
			Patterns: patterns,
			Reply:    model.Reply{Text: flow.Response, Suggested: flow.Suggested},
		})
	}

	for _, intent := range Intents(cfg) {
		// 关键词在前，同义词在后
		patterns := normalizeAll(append(append([]string{}, intent.Keywords...), intent.Synonyms...))
		if len(patterns) == 0 || intent.Response == "" {
			continue
		}
		table = append(table, Rule{
			Kind:     KindFuzzy,
			Name:     intent.Name,
			Patterns: patterns,
			Reply:    model.Reply{Text: intent.Response, Suggested: intent.Suggested},
		})
	}

	for _, lr := range legacyRules {
		text := cfg.Response("onboarding." + lr.name)
		if text == "" {
			continue
		}
		table = append(table, Rule{
			Kind:   KindLegacyRegex,
			Name:   lr.name,
			Regexp: lr.pattern,
			Reply:  model.Reply{Text: text, Suggested: lr.suggested},
		})
	}
	return table
}

// QuickIntents 把配置转换为领域模型。
func QuickIntents(cfg config.KnowledgeConfig) []model.QuickIntent {
	out := make([]model.QuickIntent, 0, len(cfg.Flows))
	for _, f := range cfg.Flows {
		out = append(out, model.QuickIntent{Name: f.Name, Triggers: f.Triggers, Response: f.Response, Suggested: f.Suggested})
	}
	return out
}

// Intents 把配置转换为领域模型。
func Intents(cfg config.KnowledgeConfig) []model.Intent {
	out := make([]model.Intent, 0, len(cfg.Intents))
	for _, i := range cfg.Intents {
		out = append(out, model.Intent{Name: i.Name, Keywords: i.Keywords, Synonyms: i.Synonyms, Response: i.Response, Suggested: i.Suggested})
	}
	return out
}

// normalizeAll 归一化并丢弃空串，空模式会匹配任何消息。
func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}
