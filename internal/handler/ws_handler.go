package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/logger"
	"github.com/stemsi/assessment-runner/internal/model"
	"github.com/stemsi/assessment-runner/internal/response"
	"github.com/stemsi/assessment-runner/internal/service"
	ws "github.com/stemsi/assessment-runner/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the runner's websocket channel. It is an alternative
// transport for autosave and submit with the same semantics as the HTTP
// endpoints.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            logger.Component(log, "ws_handler"),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /a/:token/stream
// Upgrades to WebSocket for autosave and submit.
func (h *WSHandler) Stream(c *gin.Context) {
	token := c.Param("token")

	// Resolve the token before upgrading so unknown links get a plain 404.
	attempt, err := h.attemptService.GetByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Load attempt failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Int64("attempt_id", attempt.ID).Logger()
	wsLog.Debug().Msg("Runner connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if msg.SessionID != "" {
			if _, err := uuid.Parse(msg.SessionID); err != nil {
				ws.WriteError(conn, "invalid session_id format")
				continue
			}
		}

		// Every message works on fresh state; another tab may have written.
		ctx := c.Request.Context()
		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, wsLog, token, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, wsLog, token, &msg)
		case ws.ActionPing:
			ws.WriteEvent(conn, ws.EventPong)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, token string, msg *ws.RequestPayload) {
	result, err := h.attemptService.AutosaveByToken(ctx, token, msg.Answers, msg.SessionID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Autosave failed")
		ws.WriteError(conn, "save failed")
		return
	}
	if result.Frozen {
		ws.WriteEvent(conn, ws.EventFrozen)
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{
		Event:           ws.EventSaved,
		SavedAt:         result.SavedAt,
		MultiTabWarning: result.MultiTabWarning,
	})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, token string, msg *ws.RequestPayload) {
	attempt, err := h.attemptService.SubmitByToken(ctx, token, msg.Answers, msg.SessionID)
	if err != nil {
		var verrs service.ValidationErrors
		if errors.As(err, &verrs) {
			ws.WriteTyped(conn, ws.InvalidResponse{Event: ws.EventInvalid, Errors: verrs})
			return
		}
		wsLog.Error().Err(err).Msg("Submit failed")
		ws.WriteError(conn, "submit failed")
		return
	}

	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event:           ws.EventSubmitted,
		DurationSeconds: durationOf(attempt),
	})
}

func durationOf(a *model.Attempt) int {
	if a.DurationSeconds == nil {
		return 0
	}
	return *a.DurationSeconds
}
