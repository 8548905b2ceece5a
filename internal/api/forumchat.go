package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/edustack/forumchat/internal/authz"
	"github.com/edustack/forumchat/internal/config"
	"github.com/edustack/forumchat/internal/database"
	"github.com/edustack/forumchat/internal/gateway"
	"github.com/edustack/forumchat/internal/server"
	"github.com/edustack/forumchat/internal/stats"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

type ForumChatApp struct {
	log            *log.Logger
	db             database.ForumChatRepository
	gw             *gateway.MessageGateway
	cs             *server.ChatServer
	authz          authz.Authorizer
	stats          stats.StatsProvider
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
	// overridable for tests
	generateShortId func() (string, error)
}

func NewForumChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ForumChatRepository,
	gw *gateway.MessageGateway, az authz.Authorizer, su stats.StatsProvider, cfg *config.Config) *ForumChatApp {
	s := &ForumChatApp{
		log:             logger,
		db:              db,
		gw:              gw,
		cs:              cs,
		authz:           az,
		stats:           su,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("POST /api/messages", s.authMiddleware(s.ingestMessages))
	mux.HandleFunc("DELETE /api/messages", s.authMiddleware(s.deleteMessages))
	mux.HandleFunc("POST /api/forums", s.authMiddleware(s.createForum))
	mux.HandleFunc("GET /api/forums", s.authMiddleware(s.getForums))
	mux.HandleFunc("POST /api/forums/archive", s.authMiddleware(s.archiveForum))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ForumChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ForumChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
