package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/chatledger/chatledger-go/internal/config"
	"github.com/chatledger/chatledger-go/internal/handler"
	"github.com/chatledger/chatledger-go/internal/middleware"
	"github.com/chatledger/chatledger-go/internal/rag"
	"github.com/chatledger/chatledger-go/internal/repository"
	"github.com/chatledger/chatledger-go/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := config.Load()

	db, err := repository.NewDB(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(db); err != nil {
		slog.Error("schema migration failed", "error", err)
		os.Exit(1)
	}

	retriever, err := buildRetriever(cfg)
	if err != nil {
		slog.Error("retriever initialization failed", "error", err)
		os.Exit(1)
	}
	llmClient := rag.NewClient(cfg.LLMBaseURL)

	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	chatRepo := repository.NewChatRepository(db)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	ledgerService := service.NewLedgerService(ledgerRepo)
	chatService := service.NewChatService(chatRepo, ledgerRepo, retriever, llmClient,
		cfg.NRelevantDocs, cfg.MaxModelTokens, cfg.MessageCost)

	authHandler := handler.NewAuthHandler(authService)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	chatHandler := handler.NewChatHandler(chatService)

	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(5, 10))
		r.Post("/api/v1/users", authHandler.HandleRegister)
		r.Post("/api/v1/users/login", authHandler.HandleLogin)
	})

	r.Post("/api/v1/users/refresh", authHandler.HandleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(cfg.JWTSecret))
		r.Get("/api/v1/users/me", authHandler.HandleMe)
		r.Delete("/api/v1/users", authHandler.HandleDeleteUser)

		r.Post("/api/v1/users/pay", ledgerHandler.HandlePay)
		r.Get("/api/v1/users/balance", ledgerHandler.HandleBalance)
		r.Get("/api/v1/users/transactions", ledgerHandler.HandleTransactions)

		r.Get("/api/v1/chats", chatHandler.HandleListChats)
		r.Post("/api/v1/chats", chatHandler.HandleCreateChat)
		r.Get("/api/v1/chats/{chat_id}", chatHandler.HandleListMessages)
		r.Delete("/api/v1/chats/{chat_id}", chatHandler.HandleDeleteChat)
		r.Post("/api/v1/chats/chat/{chat_id}", chatHandler.HandleConverse)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// buildRetriever selects the retrieval backend: a remote index service or a
// local BM25 index loaded from a corpus file at startup.
func buildRetriever(cfg config.Config) (rag.Retriever, error) {
	if cfg.RetrieverBackend == config.RetrieverLocal {
		return rag.LoadLocalRetriever(cfg.CorpusPath)
	}
	return rag.NewRemoteRetriever(cfg.LLMBaseURL), nil
}
