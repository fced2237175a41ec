package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/response"
	"github.com/stemsi/exstem-attempts/internal/service"
	ws "github.com/stemsi/exstem-attempts/internal/websocket"
)

// wsActionTimeout bounds the work done for a single client message.
const wsActionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// WSHandler streams attempt actions over a WebSocket.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:id/stream
// Accepts answer, pause, resume, submit, state and ping actions for one
// attempt. The connection closes once the attempt is graded.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// Reject unknown attempts before upgrading so the client gets a plain
	// HTTP error.
	if _, err := h.attemptService.Get(c.Request.Context(), attemptID); err != nil {
		failFromError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("attempt_id", attemptID.String()).Logger()
	wsLog.Info().Msg("Client connected")

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		done, err := h.dispatch(conn, attemptID, &msg)
		if err != nil {
			wsLog.Warn().Err(err).Msg("Write failed, dropping connection")
			return
		}
		if done {
			wsLog.Info().Msg("Attempt finished, closing stream")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt finished"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// dispatch handles one client message. done reports that the attempt is
// terminal and the stream should end.
func (h *WSHandler) dispatch(conn *websocket.Conn, attemptID uuid.UUID, msg *ws.Request) (done bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), wsActionTimeout)
	defer cancel()

	switch msg.Action {
	case ws.ActionPing:
		return false, ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})

	case ws.ActionAnswer:
		qid, perr := uuid.Parse(msg.QuestionID)
		if perr != nil {
			return false, ws.WriteError(conn, string(response.ErrInvalidID), "invalid question_id")
		}
		answer, serr := h.attemptService.RecordAnswer(ctx, attemptID, service.RecordAnswerInput{
			QuestionID: qid,
			Value:      msg.Answer,
			TimeSpent:  msg.TimeSpent,
		})
		if serr != nil {
			return false, h.writeServiceError(conn, serr)
		}
		return false, ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Answer: answer})

	case ws.ActionPause:
		return h.respondState(ctx, conn, attemptID, h.attemptService.Pause)

	case ws.ActionResume:
		return h.respondState(ctx, conn, attemptID, h.attemptService.Resume)

	case ws.ActionState:
		return h.respondState(ctx, conn, attemptID, h.attemptService.Get)

	case ws.ActionSubmit:
		a, serr := h.attemptService.Submit(ctx, attemptID)
		if serr != nil {
			return false, h.writeServiceError(conn, serr)
		}
		return true, ws.WriteTyped(conn, ws.GradedResponse{
			Event:          ws.EventGraded,
			Status:         a.Status,
			Score:          a.Score.Decimal.StringFixed(2),
			CorrectAnswers: a.CorrectAnswers,
			WrongAnswers:   a.WrongAnswers,
		})

	default:
		return false, ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
	}
}

func (h *WSHandler) respondState(
	ctx context.Context,
	conn *websocket.Conn,
	attemptID uuid.UUID,
	op func(ctx context.Context, id uuid.UUID) (*model.Attempt, error),
) (bool, error) {
	a, err := op(ctx, attemptID)
	if err != nil {
		return false, h.writeServiceError(conn, err)
	}

	st := h.attemptService.Snapshot(a)
	return a.Status.IsTerminal(), ws.WriteTyped(conn, ws.StateResponse{
		Event:            ws.EventState,
		Status:           a.Status,
		RemainingSeconds: st.RemainingSeconds,
		Overdue:          st.Overdue,
	})
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, err error) error {
	_, code := classify(err)
	msg := err.Error()
	if code == response.ErrInternal {
		h.log.Error().Err(err).Msg("Stream action failed")
		msg = response.GetMessage(code)
	}
	return ws.WriteError(conn, string(code), msg)
}
