// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invest-assist-go/internal/config"
	"invest-assist-go/internal/handler"
	"invest-assist-go/internal/knowledge"
	"invest-assist-go/internal/middleware"
	"invest-assist-go/internal/observability"
	"invest-assist-go/internal/pipeline"
	"invest-assist-go/internal/repository"
	"invest-assist-go/internal/service"
	"invest-assist-go/pkg/database"
	"invest-assist-go/pkg/embedding"
	"invest-assist-go/pkg/es"
	"invest-assist-go/pkg/kafka"
	"invest-assist-go/pkg/llm"
	"invest-assist-go/pkg/log"
	"invest-assist-go/pkg/recaptcha"
	"invest-assist-go/pkg/storage"
	"invest-assist-go/pkg/tika"
	"invest-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认读取 CONFIG_PATH 或 ./configs/config.yaml")
	flag.Parse()

	// 1. 初始化配置
	config.Init(resolveConfigPath(*configPath))
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 后台协程（会话清理、Kafka 消费、初始化导入）共用的生命周期
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	// 3. 初始化 Redis 和 MySQL，两者都是可选的
	var rdb *redis.Client
	if cfg.Database.Redis.Addr != "" {
		client, err := database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			log.Fatal("Redis 初始化失败", err)
		}
		rdb = client
	}
	var db *gorm.DB
	var feedbackRepo repository.FeedbackRepository
	if cfg.Database.MySQL.DSN != "" {
		conn, err := database.InitMySQL(cfg.Database.MySQL.DSN)
		if err != nil {
			log.Fatal("MySQL 初始化失败", err)
		}
		db = conn
		feedbackRepo = repository.NewFeedbackRepository(db)
	}

	// 4. 初始化 Repository
	sessionTTL := time.Duration(cfg.Session.TTLSeconds) * time.Second
	sessionStore, err := repository.NewSessionStore(appCtx, cfg.Session.Backend, rdb, sessionTTL)
	if err != nil {
		log.Fatal("会话存储初始化失败", err)
	}
	counters := repository.NewMemoryCounterStore()
	attempts := repository.NewMemoryAttemptCounter()
	if rdb != nil {
		counters = repository.NewRedisCounterStore(rdb)
		attempts = repository.NewRedisAttemptCounter(rdb)
	}

	// 5. 初始化 Kafka 生产者
	brokers := kafka.SplitBrokers(cfg.Kafka.Brokers)
	var feedbackProducer, indexProducer *kafka.Producer
	var feedbackPublisher service.FeedbackPublisher
	var indexPublisher service.IndexTaskPublisher
	if len(brokers) > 0 {
		feedbackProducer = kafka.NewProducer(brokers, cfg.Kafka.FeedbackTopic)
		indexProducer = kafka.NewProducer(brokers, cfg.Kafka.IndexTopic)
		feedbackPublisher = feedbackProducer
		indexPublisher = indexProducer
	}

	// 6. 初始化检索与模型
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	searchService := service.NewNoopSearchService()
	var indexer *es.Indexer
	if cfg.Search.Enabled && cfg.Elasticsearch.Addresses != "" {
		esClient, err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions)
		if err != nil {
			log.Fatal("Elasticsearch 初始化失败", err)
		}
		searchService = service.NewSearchService(esClient, embeddingClient, cfg.Elasticsearch.IndexName, cfg.Search, metrics)
		indexer = es.NewIndexer(esClient, cfg.Elasticsearch.IndexName)
	} else {
		log.Info("检索未启用，模型兜底将不带参考资料")
	}

	// 7. 初始化 Service (依赖注入)
	tokenManager := token.NewManager(signingSecret(cfg.Security.SigningSecret), time.Duration(cfg.Security.TokenTTLMinutes)*time.Minute)
	recaptchaClient := recaptcha.NewClient(
		cfg.Security.Recaptcha.Secret,
		cfg.Security.Recaptcha.VerifyURL,
		cfg.Security.Recaptcha.MinScore,
		time.Duration(cfg.Security.Recaptcha.TimeoutSeconds)*time.Second,
	)
	if !recaptchaClient.Enabled() {
		log.Warnf("未配置 reCAPTCHA secret，reCAPTCHA 校验将直接放行")
	}
	securityService := service.NewSecurityService(cfg.Security, tokenManager, recaptchaClient, counters,
		service.NewHeuristicPolicy(cfg.Security.Automation))

	router, err := service.NewConversationRouter(cfg.Router, knowledge.BuildTable(cfg.Knowledge), searchService,
		llmClient, cfg.LLM.MaxTokens, metrics)
	if err != nil {
		log.Fatal("路由规则初始化失败", err)
	}
	chatService := service.NewChatService(sessionStore, router, sessionTTL)
	feedbackService := service.NewFeedbackService(feedbackRepo, feedbackPublisher)

	// 8. 初始化知识文档处理管道 (Processor)
	var objectStore *storage.ObjectStore
	var processor service.IndexTaskProcessor
	if cfg.MinIO.Endpoint != "" {
		objectStore, err = storage.InitMinIO(appCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		if indexer != nil && cfg.Tika.ServerURL != "" {
			processor = pipeline.NewProcessor(objectStore, tika.NewClient(cfg.Tika), embeddingClient, indexer)
		}
	}
	indexService := service.NewIndexService(indexPublisher, processor)

	// 9. 启动后台 Kafka 消费者
	if len(brokers) > 0 && processor != nil {
		go kafka.StartConsumer(appCtx, brokers, cfg.Kafka.IndexTopic, cfg.Kafka.GroupID, processor, attempts)
	}

	// 9.1 导入本地知识文档目录（已导入则跳过）
	if cfg.Knowledge.SeedDir != "" && objectStore != nil {
		go pipeline.ImportSeedDir(appCtx, cfg.Knowledge.SeedDir, objectStore, indexService)
	}

	// 10. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.Routes{
		Security:     securityService,
		Metrics:      metrics,
		Session:      handler.NewSessionHandler(chatService, securityService, metrics),
		Chat:         handler.NewChatHandler(chatService, securityService, metrics),
		Feedback:     handler.NewFeedbackHandler(feedbackService, metrics),
		Health:       handler.NewHealthHandler(sessionBackendName(cfg.Session.Backend)),
		Admin:        handler.NewAdminHandler(indexService, cfg.Security.AdminKey, metrics),
		Conversation: handler.NewConversationHandler(service.NewConversationService(sessionStore), metrics),
		Search:       handler.NewSearchHandler(searchService, metrics),
	}.Register(r)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	// 停止 Kafka 消费者与后台协程
	cancelApp()

	for _, p := range []*kafka.Producer{feedbackProducer, indexProducer} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			log.Warnf("Kafka 生产者关闭失败: %v", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Warnf("Redis 连接关闭失败: %v", err)
		}
	}
	if db != nil {
		if err := database.CloseMySQL(db); err != nil {
			log.Warnf("MySQL 连接池关闭失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

// resolveConfigPath 依次使用命令行参数、CONFIG_PATH 环境变量和默认路径。
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./configs/config.yaml"
}

// signingSecret 未配置签名密钥时生成进程内随机密钥，重启后已签发的令牌全部失效。
func signingSecret(configured string) string {
	if configured != "" {
		return configured
	}
	secret, err := token.GenerateRandomString(32)
	if err != nil {
		log.Fatal("生成签名密钥失败", err)
	}
	log.Warnf("未配置 security.signing_secret，已生成临时签名密钥")
	return secret
}

func sessionBackendName(backend string) string {
	if backend == "" {
		return repository.BackendMemory
	}
	return backend
}
