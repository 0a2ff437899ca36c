package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/franckalain/livestockweight/internal/breeds"
	"github.com/franckalain/livestockweight/internal/capture"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/observation"
	"github.com/franckalain/livestockweight/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type subjectRequest struct {
	SubjectID     string `json:"subject_id"`
	ObservationID string `json:"observation_id"`
}

// session is one websocket client with its own capture wizard. Writes are
// serialized because wizard callbacks arrive from background goroutines.
type session struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	wizard  *capture.Wizard
	ctx     context.Context
	cancel  context.CancelFunc
	log     *logger.Logger
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{id: uuid.New().String(), conn: conn}
	sess.ctx, sess.cancel = context.WithCancel(context.Background())
	sess.log = s.log.With("session_id", sess.id)
	sess.wizard = capture.New(s.model, s.observations, sess.log, func(st models.WizardState) {
		sess.send("state", st)
	})

	s.sessions.Store(sess.id, sess)
	defer func() {
		s.sessions.Delete(sess.id)
		sess.close()
	}()

	sess.send("state", sess.wizard.Snapshot())
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.log.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			sess.sendError("Invalid message format")
			continue
		}
		s.dispatch(sess, msg)
	}
}

func (s *Server) dispatch(sess *session, msg inbound) {
	w := sess.wizard
	switch msg.Type {
	case "get_state":
		sess.send("state", w.Snapshot())
	case "get_breeds":
		sess.send("breeds", breeds.All())
	case "select_breed":
		var data struct {
			Breed string `json:"breed"`
		}
		if !sess.decode(msg.Data, &data) {
			return
		}
		sess.reply(w.SelectBreed(data.Breed))
	case "select_subject":
		var data subjectRequest
		if !sess.decode(msg.Data, &data) {
			return
		}
		sess.reply(w.SelectSubject(data.SubjectID))
	case "set_image":
		var data struct {
			Name        string `json:"name"`
			ContentType string `json:"content_type"`
			Image       string `json:"image"`
		}
		if !sess.decode(msg.Data, &data) {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(data.Image)
		if err != nil {
			sess.sendError("Invalid image format")
			return
		}
		sess.reply(w.SetImage(capture.Image{Name: data.Name, ContentType: data.ContentType, Data: raw}))
	case "estimate":
		go s.estimate(sess)
	case "save":
		go s.save(sess)
	case "reset":
		w.Reset()
		sess.send("state", w.Snapshot())
	case "go_back":
		sess.reply(w.GoBack())
	case "get_history":
		var data subjectRequest
		if !sess.decode(msg.Data, &data) {
			return
		}
		items, err := s.observations.ListBySubject(sess.ctx, data.SubjectID)
		if err != nil {
			sess.sendFailure(err)
			return
		}
		sess.send("history", gin.H{"subject_id": data.SubjectID, "items": items, "total": len(items)})
	case "get_trend":
		var data subjectRequest
		if !sess.decode(msg.Data, &data) {
			return
		}
		cmp, err := s.comparator.CompareWithHistory(sess.ctx, data.SubjectID, data.ObservationID)
		if err != nil {
			sess.sendFailure(err)
			return
		}
		sess.send("trend", cmp)
	case "get_subject_detail":
		var data subjectRequest
		if !sess.decode(msg.Data, &data) {
			return
		}
		sess.send("subject_detail", s.details.Load(sess.ctx, data.SubjectID))
	case "get_dashboard":
		var data subjectRequest
		if !sess.decode(msg.Data, &data) {
			return
		}
		stats, err := s.comparator.DashboardStats(sess.ctx, data.SubjectID)
		if err != nil {
			sess.sendFailure(err)
			return
		}
		sess.send("dashboard", stats)
	default:
		sess.sendError("Unknown message type")
	}
}

func (s *Server) estimate(sess *session) {
	obs, err := sess.wizard.Estimate(sess.ctx)
	if errors.Is(err, capture.ErrStale) || errors.Is(err, capture.ErrClosed) {
		return
	}
	if err != nil {
		sess.sendFailure(err)
		return
	}

	// the trend is informative only; an estimate is shown even without history
	trend, err := s.comparator.CompareFocal(sess.ctx, *obs)
	if err != nil {
		sess.log.Warn("trend for estimate failed", "subject_id", obs.SubjectID, "error", err)
		trend = nil
	}
	sess.send("estimate_result", gin.H{"observation": obs, "trend": trend})
}

func (s *Server) save(sess *session) {
	saved, err := sess.wizard.Save(sess.ctx)
	if errors.Is(err, capture.ErrClosed) {
		return
	}
	if err != nil {
		sess.sendFailure(err)
		return
	}
	sess.send("saved", gin.H{
		"observation": saved,
		"navigate_to": fmt.Sprintf("/subjects/%s/observations/%s", saved.SubjectID, saved.ID),
	})
}

func (sess *session) decode(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		sess.sendError("Invalid message data")
		return false
	}
	return true
}

// reply sends the new state, or the failure if err is set
func (sess *session) reply(err error) {
	if err != nil {
		sess.sendFailure(err)
		return
	}
	sess.send("state", sess.wizard.Snapshot())
}

func (sess *session) sendFailure(err error) {
	var ve *capture.ValidationError
	switch {
	case errors.As(err, &ve):
		sess.sendError(ve.Message)
	case errors.Is(err, capture.ErrBusy), errors.Is(err, capture.ErrInvalidStep):
		sess.sendError(err.Error())
	case errors.Is(err, observation.ErrNotFound):
		sess.sendError("Observation not found")
	default:
		sess.sendError(capture.MessageFor(transport.Classify(err)))
	}
}

func (sess *session) send(messageType string, data any) {
	sess.write(map[string]any{"type": messageType, "data": data})
}

func (sess *session) sendError(message string) {
	sess.write(map[string]any{"type": "error", "message": message})
}

func (sess *session) write(msg map[string]any) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.conn.WriteJSON(msg); err != nil {
		sess.log.Debug("websocket write failed", "type", msg["type"], "error", err)
	}
}

func (sess *session) close() {
	sess.wizard.Close()
	sess.cancel()
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.conn.Close()
}
