package model

// Intent 是配置中的模糊意图，按关键词、同义词匹配。
type Intent struct {
	Name      string
	Keywords  []string
	Synonyms  []string
	Response  string
	Suggested []string
}

// QuickIntent 是配置中的快捷意图，任一触发短语命中即返回。
type QuickIntent struct {
	Name      string
	Triggers  []string
	Response  string
	Suggested []string
}

// Reply 是脚本化应答：固定文案加推荐问题。
type Reply struct {
	Text      string
	Suggested []string
}

// Source 是回复中引用的参考资料。
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ChatReply 是一次路由的最终结果。
type ChatReply struct {
	Reply     string   `json:"reply"`
	Suggested []string `json:"suggested"`
	Sources   []Source `json:"sources,omitempty"`
	Stage     string   `json:"-"` // 命中的级联阶段，只用于日志和指标
}
