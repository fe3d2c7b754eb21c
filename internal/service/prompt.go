package service

import (
	"fmt"
	"strings"

	"invest-assist-go/internal/model"
	"invest-assist-go/pkg/llm"
)

// buildModelMessages 组装模型输入：系统指令、参考资料、最近的对话和本次消息，按此顺序。
func buildModelMessages(systemPrompt, page, lang string, results []model.SearchResult, history []model.Turn, message string) []llm.Message {
	var system strings.Builder
	system.WriteString(strings.TrimSpace(systemPrompt))
	if page != "" {
		fmt.Fprintf(&system, "\nThe user is currently on the page: %s.", page)
	}
	if lang != "" {
		fmt.Fprintf(&system, "\nReply in the language with code %q.", lang)
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system.String()})

	if len(results) > 0 {
		var ref strings.Builder
		ref.WriteString("Reference material (cite it only when relevant):\n")
		for i, r := range results {
			fmt.Fprintf(&ref, "[%d] %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Snippet)
		}
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: strings.TrimRight(ref.String(), "\n")})
	}

	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == model.RoleBot {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: message})
}
