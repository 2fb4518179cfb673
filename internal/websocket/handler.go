package websocket

import (
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"

	"planbook/internal/filter"
	"planbook/internal/store"
)

// HandleLiveEvents upgrades the request and streams a live event query. It
// accepts the same filter query parameters as the snapshot list endpoint;
// results arrive in live ordering (date, then start time).
func HandleLiveEvents(events *store.EventStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := strconv.ParseInt(r.PathValue("p"), 10, 64)
		if err != nil {
			http.Error(w, "invalid profile id", http.StatusBadRequest)
			return
		}

		q := r.URL.Query()
		f, err := filter.FromParams(filter.Params{
			Date:        q.Get("date"),
			Time:        q.Get("time"),
			Kind:        q.Get("kind"),
			NotNotified: q.Get("not_notified") == "1",
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // local app, any origin on the loopback
		})
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}

		sub := events.Live(r.Context(), profileID, f)
		logger.Debug("live stream opened", "profile", profileID, "subscription", sub.ID())

		newStream(conn, sub, logger.With("subscription", sub.ID())).run(r.Context())

		logger.Debug("live stream closed", "subscription", sub.ID())
	}
}
