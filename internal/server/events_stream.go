package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/meridianfund/meridian/internal/events"
)

const writeDeadline = 10 * time.Second

// EventStreamHandler streams system events to websocket clients. Each
// connection gets its own subscription; a slow client loses events rather
// than backing up the emitters.
type EventStreamHandler struct {
	events *events.Manager
	log    zerolog.Logger
}

// NewEventStreamHandler creates the websocket event stream handler.
func NewEventStreamHandler(em *events.Manager, log zerolog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		events: em,
		log:    log.With().Str("component", "event_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream.
func (h *EventStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-host dashboards connect from varied origins
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	h.log.Info().Msg("Event stream client connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeDeadline)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Event stream client disconnected")
				return
			}
		}
	}
}
