package server

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/defectctl/internal/annotator"
	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/observability"
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func (s *Server) handleWebsocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logs.Warnf("server.handleWebsocket upgrade remote=%s err=%v", c.ClientIP(), err)
		return
	}
	id := uuid.NewString()
	s.serveConn(c.Request.Context(), id, c.ClientIP(), ws)
}

// serveConn runs one session until the socket closes, a message fails to
// decode, or parent is done.
func (s *Server) serveConn(parent context.Context, id, remote string, ws *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer ws.Close()

	active := s.track(id, ws)
	observability.SessionOpened()
	logs.Infof("server.session opened id=%s remote=%s active=%d", id, remote, active)
	defer func() {
		remaining := s.untrack(id)
		observability.SessionClosed()
		logs.Infof("server.session closed id=%s remote=%s active=%d", id, remote, remaining)
	}()

	ws.SetReadLimit(s.cfg.Session.MaxMessageBytes)
	s.extendDeadline(ws)
	ws.SetPongHandler(func(string) error {
		s.extendDeadline(ws)
		return nil
	})

	inbound := make(chan []byte)
	go s.readPump(ctx, cancel, id, ws, inbound)
	go s.heartbeat(ctx, id, ws)

	sess := annotator.NewSession(s.store, s.seg, annotator.Options{
		DefectClass: s.cfg.Segment.DefectClass,
		ID:          id,
	})
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-inbound:
			if !ok || !s.process(ctx, id, ws, sess, data) {
				return
			}
		}
	}
}

// readPump forwards binary messages to the session loop. The channel is
// unbuffered, so the next message is read only after the previous one was
// taken. Closing the socket cancels the connection context, which aborts any
// segmentation call still in flight.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, id string, ws *websocket.Conn, inbound chan<- []byte) {
	defer close(inbound)
	defer cancel()
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logs.Warnf("server.readPump id=%s err=%v", id, err)
			} else {
				logs.Debugf("server.readPump id=%s closed err=%v", id, err)
			}
			return
		}
		s.extendDeadline(ws)
		if mt != websocket.BinaryMessage {
			logs.Debugf("server.readPump id=%s ignored message_type=%d bytes=%d", id, mt, len(data))
			observability.RecordDrop("text")
			continue
		}
		select {
		case inbound <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) heartbeat(ctx context.Context, id string, ws *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.Session.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.Session.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logs.Debugf("server.heartbeat id=%s ping err=%v", id, err)
				return
			}
		}
	}
}

func (s *Server) extendDeadline(ws *websocket.Conn) {
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.Session.DeadAfter))
}

// process handles one inbound message and reports whether the connection
// stays open.
func (s *Server) process(ctx context.Context, id string, ws *websocket.Conn, sess *annotator.Session, data []byte) bool {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		kind := "unparsed"
		if k, perr := protocol.PeekKind(data); perr == nil {
			kind = protocol.KindName(k)
		}
		logs.Warnf("server.process id=%s decode kind=%s bytes=%d err=%v", id, kind, len(data), err)
		observability.RecordMessage("in", kind)
		observability.RecordDrop("decode")
		closeMsg := websocket.FormatCloseMessage(websocket.CloseProtocolError, "malformed message")
		_ = ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(s.cfg.Session.WriteTimeout))
		return false
	}
	kind := protocol.KindName(msg.Kind())
	observability.RecordMessage("in", kind)

	reply, err := sess.Handle(ctx, msg)
	var collabErr *annotator.CollaboratorError
	switch {
	case err == nil:
	case errors.Is(err, annotator.ErrPrecondition):
		logs.Debugf("server.process id=%s dropped kind=%s state=%s err=%v", id, kind, annotator.StateName(sess.State()), err)
		observability.RecordDrop("precondition")
	case errors.As(err, &collabErr):
		logs.Warnf("server.process id=%s kind=%s err=%v", id, kind, err)
		observability.RecordDrop("collaborator")
	default:
		logs.Errf("server.process id=%s kind=%s err=%v", id, kind, err)
		observability.RecordDrop("error")
	}
	if ctx.Err() != nil {
		return false
	}
	if reply == nil {
		return true
	}

	out, err := protocol.Marshal(reply)
	if err != nil {
		logs.Errf("server.process id=%s encode kind=%s err=%v", id, protocol.KindName(reply.Kind()), err)
		return false
	}
	_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.Session.WriteTimeout))
	if err := ws.WriteMessage(websocket.BinaryMessage, out); err != nil {
		logs.Warnf("server.process id=%s write err=%v", id, err)
		return false
	}
	observability.RecordMessage("out", protocol.KindName(reply.Kind()))
	return true
}
