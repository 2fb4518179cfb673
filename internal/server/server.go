package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"planbook/internal/handler"
	"planbook/internal/store"
	ws "planbook/internal/websocket"
)

type Server struct {
	db        *sql.DB
	events    *store.EventStore
	metadata  *store.MetadataStore
	eventH    *handler.EventHandler
	metadataH *handler.MetadataHandler
	logger    *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Server {
	notifier := store.NewNotifier(logger.With("component", "notifier"))
	events := store.NewEventStore(db, notifier)
	metadata := store.NewMetadataStore(db)

	return &Server{
		db:        db,
		events:    events,
		metadata:  metadata,
		eventH:    handler.NewEventHandler(events),
		metadataH: handler.NewMetadataHandler(metadata),
		logger:    logger,
	}
}

// Events exposes the event store to collaborators wired outside the HTTP
// surface (the maintenance scheduler).
func (s *Server) Events() *store.EventStore {
	return s.events
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/profiles/{p}/events", s.eventH.Create)
	mux.HandleFunc("POST /api/profiles/{p}/events/batch", s.eventH.CreateBatch)
	mux.HandleFunc("GET /api/profiles/{p}/events", s.eventH.List)
	mux.HandleFunc("GET /api/profiles/{p}/events/{id}", s.eventH.Get)
	mux.HandleFunc("DELETE /api/profiles/{p}/events/{id}", s.eventH.Delete)
	mux.HandleFunc("POST /api/profiles/{p}/events/{id}/blacklist", s.eventH.Blacklist)
	mux.HandleFunc("POST /api/profiles/{p}/seen", s.eventH.SetSeenByDate)
	mux.HandleFunc("POST /api/profiles/{p}/purge", s.eventH.Purge)
	mux.HandleFunc("POST /api/profiles/{p}/metadata/{thingType}/{id}", s.metadataH.SetFlags)
	mux.HandleFunc("DELETE /api/teams/{teamId}/events/{id}", s.eventH.DeleteByTeam)

	mux.HandleFunc("GET /ws/profiles/{p}/events", ws.HandleLiveEvents(s.events, s.logger.With("component", "websocket")))

	mux.HandleFunc("GET /health", s.healthHandler)

	return s.logRequests(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		http.Error(w, "db unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path)
	})
}
