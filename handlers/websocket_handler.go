package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/services"
)

type WebSocketHandler struct {
	hub               *brackets.Hub
	tournamentService services.TournamentService
	monitor           services.MonitorService
	upgrader          websocket.Upgrader
	logger            zerolog.Logger
}

// NewWebSocketHandler accepts upgrades from the given origins; "*" allows any.
func NewWebSocketHandler(
	hub *brackets.Hub,
	ts services.TournamentService,
	monitor services.MonitorService,
	allowedOrigins []string,
	logger zerolog.Logger,
) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:               hub,
		tournamentService: ts,
		monitor:           monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// ServeWs godoc
// @Summary Live view of a tournament
// @Description Upgrades to a websocket that receives MATCH_UPDATED, AUTOMATION_STATUS, AUTOMATION_WARNING and TOURNAMENT_COMPLETED messages. The view keeps the tournament monitored while it is open.
// @Tags tournaments
// @Param tournamentID path int true "Tournament ID"
// @Router /ws/tournaments/{tournamentID} [get]
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.tournamentService.GetBracket(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	handle, err := h.monitor.StartMonitoring(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handle.Stop()
		// Upgrade has already answered the client.
		h.logger.Warn().Err(err).Int("tournament_id", tournamentID).Msg("websocket upgrade failed")
		return
	}

	client := &brackets.Client{
		Hub:     h.hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Room:    brackets.RoomForTournament(tournamentID),
		OnClose: handle.Stop,
	}
	if !h.hub.Join(client) {
		conn.Close()
		handle.Stop()
		h.logger.Warn().Int("tournament_id", tournamentID).Msg("websocket hub stopped, connection refused")
		return
	}

	go client.WritePump()
	go client.ReadPump()

	// The snapshot goes to the new view only.
	snapshot, err := json.Marshal(brackets.WebSocketMessage{
		Type:    brackets.MessageAutomationStatus,
		Payload: map[string]interface{}{"bracket": view, "automation": h.monitor.Status(tournamentID)},
		RoomID:  client.Room,
	})
	if err == nil {
		client.Mu.Lock()
		if !client.IsClosed {
			client.Send <- snapshot
		}
		client.Mu.Unlock()
	} else {
		h.logger.Error().Err(err).Int("tournament_id", tournamentID).Msg("marshal bracket snapshot")
	}

	h.logger.Debug().Int("tournament_id", tournamentID).Str("handle_id", handle.ID()).Msg("view connected")
}
