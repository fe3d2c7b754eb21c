package service

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"invest-assist-go/internal/config"
)

// RequestShape 是自动化检测所需的请求元数据，不含任何凭证。
type RequestShape struct {
	IP             string
	UserAgent      string
	Accept         string
	AcceptLanguage string
	ContentType    string
	Message        string
	At             time.Time
}

// AutomationPolicy 判断请求是否来自自动化程序。实现必须可并发调用。
type AutomationPolicy interface {
	Assess(shape RequestShape) (automated bool, reasons []string)
}

// 各项启发式的分值。
const (
	scoreMissingUA        = 3
	scoreBotUA            = 3
	scoreMissingAccept    = 1
	scoreMissingLanguage  = 1
	scoreNonJSONBody      = 1
	scoreOversizeMessage  = 2
	scoreURLStuffing      = 2
	scoreTooFast          = 2
	urlStuffingMinimum    = 3
	cadencePruneThreshold = 10000
)

var (
	botUserAgent = regexp.MustCompile(`(?i)bot|crawl|spider|scrapy|curl|wget|python-requests|python-urllib|go-http-client|okhttp|java/|libwww|httpclient|headless|phantomjs|selenium|puppeteer`)
	urlPattern   = regexp.MustCompile(`(?i)https?://|www\.`)
)

// HeuristicPolicy 对请求头完整性、消息形态和同一 IP 的请求间隔打分，总分达到阈值即判定为自动化。
type HeuristicPolicy struct {
	cfg config.AutomationConfig

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewHeuristicPolicy 创建默认的启发式策略。
func NewHeuristicPolicy(cfg config.AutomationConfig) *HeuristicPolicy {
	return &HeuristicPolicy{cfg: cfg, lastSeen: make(map[string]time.Time)}
}

// Assess 计算请求分值并记录本次请求时间。
func (p *HeuristicPolicy) Assess(shape RequestShape) (bool, []string) {
	if !p.cfg.Enabled {
		return false, nil
	}
	at := shape.At
	if at.IsZero() {
		at = time.Now()
	}

	score := 0
	var reasons []string
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, reason)
	}

	ua := strings.TrimSpace(shape.UserAgent)
	switch {
	case ua == "":
		add(scoreMissingUA, "missing_user_agent")
	case botUserAgent.MatchString(ua):
		add(scoreBotUA, "bot_user_agent")
	}
	if strings.TrimSpace(shape.Accept) == "" {
		add(scoreMissingAccept, "missing_accept")
	}
	if strings.TrimSpace(shape.AcceptLanguage) == "" {
		add(scoreMissingLanguage, "missing_accept_language")
	}
	if !strings.Contains(strings.ToLower(shape.ContentType), "application/json") {
		add(scoreNonJSONBody, "non_json_body")
	}
	if p.cfg.MaxMessageLength > 0 && len([]rune(shape.Message)) > p.cfg.MaxMessageLength {
		add(scoreOversizeMessage, "oversize_message")
	}
	if len(urlPattern.FindAllStringIndex(shape.Message, -1)) >= urlStuffingMinimum {
		add(scoreURLStuffing, "url_stuffing")
	}
	if p.tooFast(shape.IP, at) {
		add(scoreTooFast, "too_fast")
	}

	threshold := p.cfg.Threshold
	if threshold <= 0 {
		threshold = 1
	}
	return score >= threshold, reasons
}

// tooFast 判断同一 IP 两次请求的间隔是否低于 min_interval_ms，并记录本次时间。
func (p *HeuristicPolicy) tooFast(ip string, at time.Time) bool {
	if ip == "" || p.cfg.MinIntervalMs <= 0 {
		return false
	}
	minInterval := time.Duration(p.cfg.MinIntervalMs) * time.Millisecond

	p.mu.Lock()
	defer p.mu.Unlock()

	last, seen := p.lastSeen[ip]
	p.lastSeen[ip] = at
	if len(p.lastSeen) > cadencePruneThreshold {
		for k, t := range p.lastSeen {
			if at.Sub(t) > minInterval {
				delete(p.lastSeen, k)
			}
		}
	}
	return seen && at.Sub(last) < minInterval
}
