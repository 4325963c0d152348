package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/limyeri/howru-backend/internal/config"
	chathandler "github.com/limyeri/howru-backend/internal/handler/chat"
	diaryhandler "github.com/limyeri/howru-backend/internal/handler/diary"
	wshandler "github.com/limyeri/howru-backend/internal/handler/ws"
	"github.com/limyeri/howru-backend/internal/middleware"
	chatservice "github.com/limyeri/howru-backend/internal/service/chat"
	diaryservice "github.com/limyeri/howru-backend/internal/service/diary"
	"github.com/limyeri/howru-backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg *config.Config, chatSvc *chatservice.Service, diarySvc *diaryservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigin))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chathandler.New(chatSvc)
	diaryHandler := diaryhandler.New(diarySvc)
	wsHandler := wshandler.New(chatSvc)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))

		chatHandler.RegisterRoutes(api)
		diaryHandler.RegisterRoutes(api)
	})

	r.Group(func(sock chi.Router) {
		sock.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		wsHandler.RegisterRoutes(sock)
	})

	return r
}
