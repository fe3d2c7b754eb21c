// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Session       SessionConfig       `mapstructure:"session"`
	Security      SecurityConfig      `mapstructure:"security"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Search        SearchConfig        `mapstructure:"search"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Router        RouterConfig        `mapstructure:"router"`
	Knowledge     KnowledgeConfig     `mapstructure:"knowledge"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// SessionConfig 存储会话存储后端与过期时间。
type SessionConfig struct {
	Backend    string `mapstructure:"backend"` // memory 或 redis
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// SecurityConfig 汇总请求防护相关的全部配置。
type SecurityConfig struct {
	AllowedOrigins  []string         `mapstructure:"allowed_origins"`
	SigningSecret   string           `mapstructure:"signing_secret"`
	TokenTTLMinutes int              `mapstructure:"token_ttl_minutes"`
	AdminKey        string           `mapstructure:"admin_key"`
	RateLimit       RateLimitConfig  `mapstructure:"rate_limit"`
	Recaptcha       RecaptchaConfig  `mapstructure:"recaptcha"`
	Automation      AutomationConfig `mapstructure:"automation"`
}

// RateLimitConfig 固定窗口限流参数。
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// RecaptchaConfig 存储 reCAPTCHA 校验参数。Secret 为空表示关闭校验。
type RecaptchaConfig struct {
	Secret         string  `mapstructure:"secret"`
	VerifyURL      string  `mapstructure:"verify_url"`
	MinScore       float64 `mapstructure:"min_score"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// AutomationConfig 存储机器人启发式检测参数。
type AutomationConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	Threshold        int  `mapstructure:"threshold"`
	MinIntervalMs    int  `mapstructure:"min_interval_ms"`
	MaxMessageLength int  `mapstructure:"max_message_length"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时不启用反馈持久化。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// SearchConfig 控制检索增强。
type SearchConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TopK           int  `mapstructure:"top_k"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	SnippetLength  int  `mapstructure:"snippet_length"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不启用。
type KafkaConfig struct {
	Brokers       string `mapstructure:"brokers"`
	FeedbackTopic string `mapstructure:"feedback_topic"`
	IndexTopic    string `mapstructure:"index_topic"`
	GroupID       string `mapstructure:"group_id"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL      string `mapstructure:"server_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// RouterConfig 存储消息路由级联的固定文案与规则。
type RouterConfig struct {
	OffTopicTerms      []string             `mapstructure:"off_topic_terms"`
	RefusalText        string               `mapstructure:"refusal_text"`
	DefaultSuggestions []string             `mapstructure:"default_suggestions"`
	AdviceText         string               `mapstructure:"advice_text"`
	AdviceSuggestions  []string             `mapstructure:"advice_suggestions"`
	GenericSuggestions []string             `mapstructure:"generic_suggestions"`
	SystemPrompt       string               `mapstructure:"system_prompt"`
	ContextTurns       int                  `mapstructure:"context_turns"`
	SearchTopK         int                  `mapstructure:"search_top_k"`
	PageShortcuts      []PageShortcutConfig `mapstructure:"page_shortcuts"`
}

// PageShortcutConfig 描述一条 (页面, 消息) -> 回复 的快捷规则。
type PageShortcutConfig struct {
	Name           string   `mapstructure:"name"`
	PagePattern    string   `mapstructure:"page_pattern"`
	MessagePattern string   `mapstructure:"message_pattern"`
	Response       string   `mapstructure:"response"`
	Suggested      []string `mapstructure:"suggested"`
}

// KnowledgeConfig 存储脚本化应答表。
type KnowledgeConfig struct {
	Flows     []FlowConfig                 `mapstructure:"flows"`
	Intents   []IntentConfig               `mapstructure:"intents"`
	Responses map[string]map[string]string `mapstructure:"responses"`
	SeedDir   string                       `mapstructure:"seed_dir"` // 启动时导入的本地文档目录
}

// FlowConfig 快捷意图：任一触发短语命中即返回。
type FlowConfig struct {
	Name      string   `mapstructure:"name"`
	Triggers  []string `mapstructure:"triggers"`
	Response  string   `mapstructure:"response"`
	Suggested []string `mapstructure:"suggested"`
}

// IntentConfig 模糊意图：关键词与同义词。
type IntentConfig struct {
	Name      string   `mapstructure:"name"`
	Keywords  []string `mapstructure:"keywords"`
	Synonyms  []string `mapstructure:"synonyms"`
	Response  string   `mapstructure:"response"`
	Suggested []string `mapstructure:"suggested"`
}

// Response 按 "group.key" 形式查找配置的固定文案，例如 "onboarding.register"。
func (k KnowledgeConfig) Response(path string) string {
	group, key, ok := strings.Cut(path, ".")
	if !ok {
		return ""
	}
	return k.Responses[strings.ToLower(group)][strings.ToLower(key)]
}

// setDefaults 为每个配置项注册默认值，这样环境变量覆盖对所有键都生效。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl_seconds", 1800)

	v.SetDefault("security.allowed_origins", []string{})
	v.SetDefault("security.signing_secret", "")
	v.SetDefault("security.token_ttl_minutes", 60)
	v.SetDefault("security.admin_key", "")
	v.SetDefault("security.rate_limit.window_seconds", 60)
	v.SetDefault("security.rate_limit.max_requests", 30)
	v.SetDefault("security.recaptcha.secret", "")
	v.SetDefault("security.recaptcha.verify_url", "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault("security.recaptcha.min_score", 0.5)
	v.SetDefault("security.recaptcha.timeout_seconds", 5)
	v.SetDefault("security.automation.enabled", true)
	v.SetDefault("security.automation.threshold", 4)
	v.SetDefault("security.automation.min_interval_ms", 400)
	v.SetDefault("security.automation.max_message_length", 1000)

	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("elasticsearch.addresses", "")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "assist_knowledge")

	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 1024)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 400)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout_seconds", 20)

	v.SetDefault("search.enabled", false)
	v.SetDefault("search.top_k", 3)
	v.SetDefault("search.timeout_seconds", 3)
	v.SetDefault("search.snippet_length", 300)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.feedback_topic", "assist-feedback")
	v.SetDefault("kafka.index_topic", "assist-document-index")
	v.SetDefault("kafka.group_id", "invest-assist-go-indexer")

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "assist-knowledge")

	v.SetDefault("tika.server_url", "")
	v.SetDefault("tika.timeout_seconds", 30)

	v.SetDefault("router.context_turns", 6)
	v.SetDefault("router.search_top_k", 3)

	v.SetDefault("knowledge.seed_dir", "")
}

// Load 读取 YAML 配置文件并叠加 ASSIST_ 前缀的环境变量，返回解析后的配置。
// 路径为空时只使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.Security.AllowedOrigins = splitList(cfg.Security.AllowedOrigins)
	return &cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

// splitList 兼容环境变量里以逗号分隔的单个字符串。
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
