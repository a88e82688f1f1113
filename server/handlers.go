package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"SyncFM/core/broadcast"
	"SyncFM/core/clock"
	"SyncFM/core/radio"
	"SyncFM/logger"
	"SyncFM/model"
	"SyncFM/storage"
)

// Controller is the part of the station engine exposed over HTTP.
type Controller interface {
	Snapshot(now time.Time) model.Snapshot
	Skip() bool
	Pause() error
	Resume() error
}

// Handler serves the station's HTTP and websocket endpoints.
type Handler struct {
	engine   Controller
	hub      *broadcast.Hub
	station  *broadcast.Station
	store    storage.AudioStore
	clock    clock.Clock
	upgrader websocket.Upgrader
}

// NewHandler wires the endpoints to their collaborators.
func NewHandler(engine Controller, hub *broadcast.Hub, station *broadcast.Station, store storage.AudioStore, clk clock.Clock) *Handler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Handler{
		engine:  engine,
		hub:     hub,
		station: station,
		store:   store,
		clock:   clk,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HandleWebSocket joins the connection to the broadcast hub.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", logger.ErrorField(err))
		return
	}

	peer := h.hub.NewPeer(conn)
	h.hub.Register(peer)
	go peer.WritePump()
	peer.ReadPump(r.Context(), h.station.HandleMessage)
}

// HandleMusic serves the audio of one track; Range requests are honoured.
func (h *Handler) HandleMusic(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/music/")
	if _, err := storage.CleanID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid track id")
		return
	}

	audio, err := h.store.Open(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "track not found")
			return
		}
		logger.Error("Failed to open track", logger.String("track", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to open track")
		return
	}
	defer audio.Content.Close()

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, path.Base(id), audio.ModTime, audio.Content)
}

// HandleState returns the current snapshot.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot(h.clock.Now()))
}

// HandleHealth is the liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"listeners": h.hub.Count(),
	})
}

// HandleSkip forces the next track.
func (h *Handler) HandleSkip(w http.ResponseWriter, r *http.Request) {
	advanced := h.engine.Skip()
	logger.Info("Admin skip", logger.String("by", SubjectFromContext(r.Context())), logger.Bool("advanced", advanced))
	writeJSON(w, http.StatusOK, map[string]bool{"advanced": advanced})
}

// HandlePause freezes the station timeline.
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "pause", h.engine.Pause)
}

// HandleResume continues a paused station timeline.
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "resume", h.engine.Resume)
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request, action string, fn func() error) {
	if err := fn(); err != nil {
		if errors.Is(err, radio.ErrNotStarted) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("Admin "+action, logger.String("by", SubjectFromContext(r.Context())))
	writeJSON(w, http.StatusOK, h.engine.Snapshot(h.clock.Now()))
}
