package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/limyeri/howru-backend/internal/config"
	"github.com/limyeri/howru-backend/internal/handler"
	"github.com/limyeri/howru-backend/internal/service/ai"
	chatservice "github.com/limyeri/howru-backend/internal/service/chat"
	diaryservice "github.com/limyeri/howru-backend/internal/service/diary"
	emotionservice "github.com/limyeri/howru-backend/internal/service/emotion"
	diarystore "github.com/limyeri/howru-backend/internal/store/diary"
	"github.com/limyeri/howru-backend/internal/store/history"
	"github.com/limyeri/howru-backend/internal/store/vector"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	historyStore, err := history.NewMongoStore(ctx, cfg.Mongo)
	if err != nil {
		log.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := historyStore.Close(closeCtx); err != nil {
			log.Printf("warning: failed to close mongodb connection: %v", err)
		}
	}()

	recordStore, err := diarystore.NewGormStore(cfg.MariaDB)
	if err != nil {
		log.Fatalf("failed to connect to mariadb: %v", err)
	}

	aiSvc, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize chat model: %v", err)
	}

	var semantic vector.SemanticStore
	if cfg.Vector.Enabled() {
		embedder, err := cfg.AI.NewEmbedder(ctx)
		if err != nil {
			log.Fatalf("failed to initialize embedder: %v", err)
		}
		store, err := vector.NewSupabaseStore(cfg.Vector, embedder)
		if err != nil {
			log.Fatalf("failed to initialize supabase store: %v", err)
		}
		semantic = store
		log.Println("semantic retrieval enabled")
	} else {
		log.Println("supabase 설정이 없어 의미 검색 없이 동작합니다")
	}

	classifier := emotionservice.NewInferenceClient(cfg.Classifier)
	emotionSvc := emotionservice.NewService(classifier)

	chatSvc := chatservice.NewService(aiSvc, historyStore, semantic, cfg.AI.HistoryLimit)
	diarySvc := diaryservice.NewService(aiSvc, historyStore, recordStore, emotionSvc, cfg.Timezone)

	router := handler.NewRouter(cfg, chatSvc, diarySvc)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("howru backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
