// Package model 包含了应用的数据模型定义。
package model

import "time"

// TurnRole 区分用户消息与机器人回复。
type TurnRole string

const (
	RoleUser TurnRole = "user"
	RoleBot  TurnRole = "bot"
)

// Turn 是会话中的一条消息，只追加、不修改。
type Turn struct {
	Role      TurnRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Page      string    `json:"page,omitempty"`
}

// Session 代表一个用户的短期对话状态，序列化后存入 SessionStore。
type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession 创建一个空会话。
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Turns:     []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendExchange 依次追加用户消息和对应的机器人回复。
func (s *Session) AppendExchange(userText, botText, page string, now time.Time) {
	s.Turns = append(s.Turns,
		Turn{Role: RoleUser, Text: userText, Timestamp: now, Page: page},
		Turn{Role: RoleBot, Text: botText, Timestamp: now, Page: page},
	)
	s.UpdatedAt = now
}

// LastTurns 返回最近的 n 条消息（按时间从旧到新）。
func (s *Session) LastTurns(n int) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	if len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}
