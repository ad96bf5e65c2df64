package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/proctorix/examgate/internal/attempt"
	"github.com/proctorix/examgate/internal/integrity"
	"github.com/proctorix/examgate/internal/middleware"
	"github.com/proctorix/examgate/internal/model"
	"github.com/proctorix/examgate/internal/service"
	ws "github.com/proctorix/examgate/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
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

// ProctorHandler runs the proctoring stream for one attempt: browser
// observations in, controller directives out.
type ProctorHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(attempts *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *ProctorHandler {
	return &ProctorHandler{
		attempts: attempts,
		log:      log.With().Str("component", "proctor_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/v1/attempts/:assignment_id/proctor
// Upgrades to WebSocket for proctoring events and directives.
func (h *ProctorHandler) Stream(c *gin.Context) {
	sid := middleware.SessionID(c)

	id, err := strconv.Atoi(c.Param("assignment_id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignment ID"})
		return
	}

	ctrl, err := h.attempts.Controller(sid, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active attempt"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewSafeConn(raw)
	defer conn.Close()

	// Directives flow to this socket for as long as it lives. The grace
	// timer and countdown goroutines write through the same SafeConn.
	ctrl.SetDirectiveSink(func(d attempt.Directive) {
		if werr := conn.WriteJSON(ws.DirectiveMessage{
			Event:  ws.EventDirective,
			Kind:   string(d.Kind),
			Reason: d.Reason,
		}); werr != nil {
			h.log.Debug().Err(werr).Msg("directive write failed")
		}
	})
	defer ctrl.SetDirectiveSink(nil)

	wsLog := h.log.With().Int("assignment_id", id).Logger()
	wsLog.Info().Msg("Proctor stream connected")

	for {
		var msg ws.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		h.dispatch(c, conn, ctrl, sid, id, &msg)

		if ctrl.State() == attempt.StateDone {
			wsLog.Info().Msg("Attempt done, closing proctor stream")
			return
		}
	}
}

func (h *ProctorHandler) dispatch(c *gin.Context, conn *ws.SafeConn, ctrl *attempt.Controller, sid string, id int, msg *ws.ClientMessage) {
	ctx := c.Request.Context()

	switch msg.Action {
	case ws.ActionFullscreenChange:
		if msg.Entered {
			ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventFullscreenEnter})
		} else {
			ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventFullscreenExit, Detail: msg.Detail})
		}

	case ws.ActionBlur:
		ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventWindowBlur, Detail: msg.Detail})

	case ws.ActionFocus:
		ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventWindowFocus})

	case ws.ActionMouseLeave:
		// Leaving toward another element on the page is benign; leaving
		// with no related target suggests a second monitor.
		if !msg.HasRelatedTarget {
			ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventMouseLeave, Detail: msg.Detail})
		}

	case ws.ActionKeyCombo:
		if integrity.ForbiddenCombo(msg.Combo) {
			ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventKeyCombo, Detail: msg.Combo})
		}

	case ws.ActionPaste, ws.ActionCopy, ws.ActionCut:
		if !ctrl.AllowsCopyPaste() {
			ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventKind(msg.Action), Detail: msg.Detail})
		}

	case ws.ActionVisibility:
		if msg.Hidden {
			ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventTabHidden})
		} else {
			ctrl.HandleProctorEvent(integrity.Event{Kind: integrity.EventTabVisible})
		}

	case ws.ActionFrame:
		if media := ctrl.Media(); media != nil {
			media.SendFrame(ctx, sid, id, msg.Data)
		}

	case ws.ActionAudioChunk:
		if media := ctrl.Media(); media != nil {
			media.SendAudioChunk(ctx, sid, id, msg.Data)
		}

	case ws.ActionActivity:
		h.attempts.RecordActivity(ctx, sid, id, model.ActivityEvent{
			EventType:    msg.EventType,
			EventMessage: msg.EventMessage,
			AnomalyScore: msg.AnomalyScore,
			Timestamp:    time.Now().Unix(),
		})

	case ws.ActionPing:
		if err := conn.WriteJSON(ws.TickMessage{
			Event:            ws.EventTick,
			RemainingSeconds: int(ctrl.Remaining() / time.Second),
		}); err != nil {
			h.log.Debug().Err(err).Msg("tick write failed")
		}

	default:
		conn.WriteError("unknown action")
	}
}
