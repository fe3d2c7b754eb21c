package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"invest-assist-go/internal/apperr"
	"invest-assist-go/internal/config"
	"invest-assist-go/internal/knowledge"
	"invest-assist-go/internal/model"
	"invest-assist-go/internal/observability"
	"invest-assist-go/pkg/llm"
	"invest-assist-go/pkg/log"
)

// 路由级联的阶段名，用于日志和指标。
const (
	StageOffTopic     = "off_topic"
	StageAdvice       = "advice"
	StagePageShortcut = "page_shortcut"
	StageKnowledge    = "knowledge"
	StageModel        = "model"
)

const maxSuggestions = 5

var (
	defaultRefusalText        = "I can only help with questions about investing on our platform: accounts, KYC, funds and SIPs."
	defaultAdviceText         = "I can't give personalised investment advice. For research on specific funds or stocks, please use our Research Assistant."
	defaultAdviceSuggestions  = []string{"Open Research Assistant", "General info about SIP"}
	defaultSuggestions        = []string{"How do I register?", "What is KYC?", "What is a SIP?"}
	defaultGenericSuggestions = []string{"What is a SIP?", "How do I start investing?", "What documents do I need?", "How long does activation take?", "Talk to support"}
	defaultSystemPrompt       = "You are a support assistant for an investment platform. Answer briefly and factually. Never recommend specific securities or give personalised investment advice."
)

// advicePatterns 识别索要个性化投资建议的消息，按顺序测试。
var advicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bshould i (buy|sell|invest|hold|redeem|switch|exit)\b`),
	regexp.MustCompile(`\b(which|what) (mutual fund|fund|stock|share|scheme)s? (should|to|can) i\b`),
	regexp.MustCompile(`\b(recommend|suggest)\b.*\b(mutual fund|fund|stock|share|scheme|portfolio|investment)s?\b`),
	regexp.MustCompile(`\bis (it|this|now) (a )?(good|right|best) time to (buy|sell|invest)\b`),
	regexp.MustCompile(`\b(best|top) (mutual fund|fund|stock|share|scheme)s?\b.*\b(for me|to buy|to invest)\b`),
	regexp.MustCompile(`\bwhere (should|can) i invest\b`),
	regexp.MustCompile(`\b(tips?|advice)\b.*\b(stock|share|fund|invest)`),
}

type pageShortcut struct {
	name    string
	page    *regexp.Regexp
	message *regexp.Regexp
	reply   model.Reply
}

// ConversationRouter 按固定顺序决定每条消息的回复：
// 离题过滤、投资建议拦截、页面快捷回复、脚本化匹配，最后才是检索增强的模型回复。
type ConversationRouter struct {
	offTopicTerms      []string
	refusal            model.Reply
	advice             model.Reply
	genericSuggestions []string
	systemPrompt       string
	contextTurns       int
	searchTopK         int
	maxTokens          int
	shortcuts          []pageShortcut
	table              knowledge.Table
	search             SearchService
	llmClient          llm.Client
	metrics            *observability.Metrics
	now                func() time.Time
}

// NewConversationRouter 创建路由器。页面快捷规则的正则无法编译时返回错误。
func NewConversationRouter(cfg config.RouterConfig, table knowledge.Table, search SearchService, llmClient llm.Client, maxTokens int, metrics *observability.Metrics) (*ConversationRouter, error) {
	shortcuts := make([]pageShortcut, 0, len(cfg.PageShortcuts))
	for _, sc := range cfg.PageShortcuts {
		page, err := regexp.Compile("(?i)" + sc.PagePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid page pattern for shortcut %q: %w", sc.Name, err)
		}
		msg, err := regexp.Compile("(?i)" + sc.MessagePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid message pattern for shortcut %q: %w", sc.Name, err)
		}
		shortcuts = append(shortcuts, pageShortcut{
			name:    sc.Name,
			page:    page,
			message: msg,
			reply:   model.Reply{Text: sc.Response, Suggested: sc.Suggested},
		})
	}

	terms := make([]string, 0, len(cfg.OffTopicTerms))
	for _, t := range cfg.OffTopicTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	if search == nil {
		search = NewNoopSearchService()
	}

	return &ConversationRouter{
		offTopicTerms:      terms,
		refusal:            model.Reply{Text: orDefault(cfg.RefusalText, defaultRefusalText), Suggested: orDefaultList(cfg.DefaultSuggestions, defaultSuggestions)},
		advice:             model.Reply{Text: orDefault(cfg.AdviceText, defaultAdviceText), Suggested: orDefaultList(cfg.AdviceSuggestions, defaultAdviceSuggestions)},
		genericSuggestions: orDefaultList(cfg.GenericSuggestions, defaultGenericSuggestions),
		systemPrompt:       orDefault(cfg.SystemPrompt, defaultSystemPrompt),
		contextTurns:       positiveOr(cfg.ContextTurns, 6),
		searchTopK:         positiveOr(cfg.SearchTopK, 3),
		maxTokens:          maxTokens,
		shortcuts:          shortcuts,
		table:              table,
		search:             search,
		llmClient:          llmClient,
		metrics:            metrics,
		now:                time.Now,
	}, nil
}

// Route 为消息选出回复，并在成功时依次追加用户消息和机器人回复到会话。
// 模型失败时返回 UpstreamModelFailure，会话保持不变。
func (r *ConversationRouter) Route(ctx context.Context, session *model.Session, message, page, lang string) (*model.ChatReply, error) {
	reply, err := r.decide(ctx, session, message, page, lang)
	if err != nil {
		return nil, err
	}
	session.AppendExchange(message, reply.Reply, page, r.now())
	r.metrics.RecordStage(reply.Stage)
	log.Debugf("[ConversationRouter] 会话 %s 命中阶段 %s", session.ID, reply.Stage)
	return reply, nil
}

func (r *ConversationRouter) decide(ctx context.Context, session *model.Session, message, page, lang string) (*model.ChatReply, error) {
	lower := strings.ToLower(message)

	if r.isOffTopic(lower) {
		return scripted(StageOffTopic, r.refusal), nil
	}
	if isAdviceRequest(lower) {
		return scripted(StageAdvice, r.advice), nil
	}
	if sc, ok := r.matchShortcut(page, message); ok {
		return scripted(StagePageShortcut, sc.reply), nil
	}
	if reply, ok := knowledge.Match(message, r.table); ok {
		return scripted(StageKnowledge, reply), nil
	}
	return r.modelFallback(ctx, session, message, page, lang)
}

func (r *ConversationRouter) isOffTopic(lower string) bool {
	for _, term := range r.offTopicTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func isAdviceRequest(lower string) bool {
	for _, p := range advicePatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

func (r *ConversationRouter) matchShortcut(page, message string) (pageShortcut, bool) {
	if page == "" {
		return pageShortcut{}, false
	}
	for _, sc := range r.shortcuts {
		if sc.page.MatchString(page) && sc.message.MatchString(message) {
			return sc, true
		}
	}
	return pageShortcut{}, false
}

// modelFallback 取最近的对话作上下文，检索参考资料后调用模型。
func (r *ConversationRouter) modelFallback(ctx context.Context, session *model.Session, message, page, lang string) (*model.ChatReply, error) {
	if r.llmClient == nil {
		return nil, apperr.Wrap(apperr.UpstreamModelFailure, fmt.Errorf("llm client not configured"))
	}
	history := session.LastTurns(r.contextTurns)
	results := r.search.Search(ctx, message, r.searchTopK)
	if len(results) > r.searchTopK {
		results = results[:r.searchTopK]
	}

	messages := buildModelMessages(r.systemPrompt, page, lang, results, history, message)
	start := time.Now()
	raw, err := r.llmClient.Complete(ctx, messages, r.maxTokens)
	r.metrics.ObserveUpstream("llm", start, err)
	if err != nil {
		log.Errorf("[ConversationRouter] 模型调用失败, session: %s, error: %v", session.ID, err)
		return nil, apperr.Wrap(apperr.UpstreamModelFailure, err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, apperr.Wrap(apperr.UpstreamModelFailure, llm.ErrEmptyCompletion)
	}

	titles := make([]string, 0, len(results))
	sources := make([]model.Source, 0, len(results))
	for _, res := range results {
		titles = append(titles, res.Title)
		sources = append(sources, model.Source{Title: res.Title, URL: res.URL})
	}

	reply := &model.ChatReply{
		Reply:     FormatModelReply(raw) + sourceFooter(results),
		Suggested: mergeSuggestions(maxSuggestions, titles, r.genericSuggestions),
		Stage:     StageModel,
	}
	if len(sources) > 0 {
		reply.Sources = sources
	}
	return reply, nil
}

func scripted(stage string, reply model.Reply) *model.ChatReply {
	return &model.ChatReply{
		Reply:     reply.Text,
		Suggested: append([]string{}, reply.Suggested...),
		Stage:     stage,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultList(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
