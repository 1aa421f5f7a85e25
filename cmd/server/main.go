package main

import (
	"context"
	"net/http"
	"time"

	"kenchat/internal/api/handlers"
	"kenchat/internal/app"
	"kenchat/internal/auth"
	"kenchat/internal/config"
	"kenchat/internal/logger"
	"kenchat/internal/ratelimit"
	"kenchat/internal/repository/postgres"
	"kenchat/internal/service/ai"
	chatService "kenchat/internal/service/chat"
	conversationService "kenchat/internal/service/conversation"
	personaService "kenchat/internal/service/persona"
	summaryService "kenchat/internal/service/summary"
	usageService "kenchat/internal/service/usage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const cleanupInterval = 24 * time.Hour

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func main() {
	appConfig, err := config.LoadConfig()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load configuration")
	}

	logger.Log.Info("Initializing database")
	database, err := postgres.NewPostgresDB(appConfig.Database, appConfig.Auth.BcryptCost)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	if appConfig.Server.SeedDemoUser {
		if err := postgres.SeedDemoUser(database); err != nil {
			logger.Log.WithError(err).Fatal("Failed to seed demo user")
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     appConfig.Redis.Addr,
		Password: appConfig.Redis.Password,
		DB:       appConfig.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Log.WithError(err).Warn("Redis unavailable, rate limiting will fail open")
	}

	appCfg := app.NewConfig(database, rdb, appConfig)

	// Services
	provider := ai.NewClient(appConfig.OpenAI, appConfig.Models)
	tokens := auth.NewService(appConfig.Auth)
	usageSvc := usageService.NewService(database, appConfig.Cost)
	summarizer := summaryService.NewService(database, provider, usageSvc, appConfig.Summary)
	chatSvc := chatService.NewService(database, provider, usageSvc, summarizer)
	conversationSvc := conversationService.NewService(database)
	personaSvc := personaService.NewService(database)
	limiter := ratelimit.NewLimiter(rdb, appConfig.RateLimit)

	// Handlers
	authHandlers := handlers.NewAuthHandlers(appCfg, tokens)
	chatHandlers := handlers.NewChatHandlers(appCfg, chatSvc, summarizer)
	conversationHandlers := handlers.NewConversationHandlers(appCfg, conversationSvc)
	personaHandlers := handlers.NewPersonaHandlers(appCfg, personaSvc)
	costHandlers := handlers.NewCostHandlers(appCfg, usageSvc)

	// Periodic ledger cleanup
	if appConfig.Cost.RetentionDays > 0 {
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for range ticker.C {
				if deleted, err := usageSvc.CleanupOldLogs(); err != nil {
					logger.Log.WithError(err).Error("Usage log cleanup failed")
				} else if deleted > 0 {
					logger.Log.WithField("deleted", deleted).Info("Pruned old usage logs")
				}
			}
		}()
	}

	mux := http.NewServeMux()

	corsHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusOK)
	}

	public := func(pattern string, handler http.HandlerFunc) {
		mux.HandleFunc(pattern, enableCORS(handler))
	}
	protected := func(pattern string, handler http.HandlerFunc) {
		mux.HandleFunc(pattern, enableCORS(tokens.Middleware(handler)))
	}
	options := func(path string) {
		mux.HandleFunc("OPTIONS "+path, corsHandler)
	}

	// Public routes
	public("POST /api/login", authHandlers.LoginHandler)
	public("POST /api/register", authHandlers.RegisterHandler)
	public("POST /api/refresh", authHandlers.RefreshHandler)
	public("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	for _, path := range []string{"/api/login", "/api/register", "/api/refresh", "/api/health"} {
		options(path)
	}

	// Chat (rate limited)
	protected("POST /api/chat/generate", limiter.Middleware(chatHandlers.ChatHandler))
	protected("POST /api/chat/stream", limiter.Middleware(chatHandlers.ChatStreamHandler))
	protected("GET /api/models", chatHandlers.GetModelsHandler)
	for _, path := range []string{"/api/chat/generate", "/api/chat/stream", "/api/models"} {
		options(path)
	}

	// Conversations
	protected("POST /api/conversations", conversationHandlers.CreateHandler)
	protected("GET /api/conversations", conversationHandlers.ListHandler)
	protected("GET /api/conversations/{id}", conversationHandlers.GetHandler)
	protected("PATCH /api/conversations/{id}", conversationHandlers.UpdateHandler)
	protected("DELETE /api/conversations/{id}", conversationHandlers.DeleteHandler)
	protected("GET /api/conversations/{id}/messages", conversationHandlers.GetMessagesHandler)
	protected("POST /api/conversations/{id}/messages", conversationHandlers.AddMessageHandler)
	protected("POST /api/conversations/{id}/summarize", chatHandlers.SummarizeHandler)
	protected("GET /api/conversations/{id}/summaries", chatHandlers.GetSummariesHandler)
	protected("GET /api/conversations/{id}/cost", costHandlers.ConversationCostHandler)
	for _, path := range []string{
		"/api/conversations",
		"/api/conversations/{id}",
		"/api/conversations/{id}/messages",
		"/api/conversations/{id}/summarize",
		"/api/conversations/{id}/summaries",
		"/api/conversations/{id}/cost",
	} {
		options(path)
	}

	// Personas
	protected("POST /api/personas", personaHandlers.CreateHandler)
	protected("GET /api/personas", personaHandlers.ListHandler)
	protected("GET /api/personas/{id}", personaHandlers.GetHandler)
	protected("PUT /api/personas/{id}", personaHandlers.UpdateHandler)
	protected("DELETE /api/personas/{id}", personaHandlers.DeleteHandler)
	protected("POST /api/personas/{id}/default", personaHandlers.SetDefaultHandler)
	for _, path := range []string{"/api/personas", "/api/personas/{id}", "/api/personas/{id}/default"} {
		options(path)
	}

	// Cost tracking
	protected("GET /api/costs/stats", costHandlers.StatsHandler)
	protected("GET /api/costs/report", costHandlers.ReportHandler)
	protected("GET /api/costs/limits", costHandlers.LimitsHandler)
	protected("GET /api/costs/logs", costHandlers.LogsHandler)
	protected("GET /api/costs/pricing", costHandlers.PricingHandler)
	for _, path := range []string{"/api/costs/stats", "/api/costs/report", "/api/costs/limits", "/api/costs/logs", "/api/costs/pricing"} {
		options(path)
	}

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	logger.Log.WithField("port", appConfig.Server.Port).Info("Server starting")
	if err := http.ListenAndServe(":"+appConfig.Server.Port, mux); err != nil {
		logger.Log.WithError(err).Fatal("Server failed to start")
	}
}
