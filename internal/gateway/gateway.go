// Package gateway exposes game sessions over a WebSocket endpoint. Each
// connection speaks a small JSON protocol: the client creates or attaches to
// a session, then sends player actions and check results; the server answers
// with completed turns, check requests, and status snapshots.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/Rene-Zhou/Astinus-sub001/internal/observe"
	"github.com/Rene-Zhou/Astinus-sub001/internal/orchestrator"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/internal/session"
)

// Handler serves the /ws endpoint. Each accepted connection is bound to at
// most one session at a time; attaching to another session replaces the
// binding without ending the previous session.
type Handler struct {
	registry *session.Registry
}

// New creates a gateway handler over the given session registry.
func New(registry *session.Registry) *Handler {
	return &Handler{registry: registry}
}

// Register adds the /ws route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.ServeWS)
}

// ServeWS upgrades the request to a WebSocket and runs the message loop
// until the client disconnects or the request context ends.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	c := &client{conn: conn, registry: h.registry}
	c.loop(r.Context())
	conn.Close(websocket.StatusNormalClosure, "")
}

// client is the per-connection state.
type client struct {
	conn     *websocket.Conn
	registry *session.Registry
	sess     *session.Session
}

// loop reads client messages until the connection or context ends.
func (c *client) loop(ctx context.Context) {
	log := observe.Logger(ctx)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				log.Debug("websocket read ended", "err", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(ctx, "gateway", fmt.Sprintf("malformed message: %v", err))
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			return
		}
	}
}

// handle dispatches one client message. It returns an error only when the
// connection itself is broken; session-level failures are reported to the
// client as error messages.
func (c *client) handle(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case ClientCreate:
		return c.handleCreate(ctx, msg)
	case ClientAttach:
		return c.handleAttach(ctx, msg)
	case ClientAction:
		return c.handleAction(ctx, msg)
	case ClientCheckResult:
		return c.handleCheckResult(ctx, msg)
	case ClientStatus:
		return c.handleStatus(ctx)
	case ClientMove:
		return c.handleMove(ctx, msg)
	case ClientReset:
		return c.handleReset(ctx)
	case ClientEnd:
		return c.handleEnd(ctx)
	default:
		return c.sendError(ctx, "gateway", fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (c *client) handleCreate(ctx context.Context, msg ClientMessage) error {
	sess, err := c.registry.Create(ctx, session.CreateParams{
		PackID:           msg.PackID,
		Language:         msg.Language,
		CharacterSummary: msg.CharacterSummary,
		Location:         msg.Location,
	})
	if err != nil {
		return c.sendError(ctx, "gateway", err.Error())
	}
	c.sess = sess
	return c.send(ctx, ServerMessage{
		Type:      ServerSession,
		SessionID: sess.ID,
		Status:    statusPayload(sess.Orch.Status()),
	})
}

func (c *client) handleAttach(ctx context.Context, msg ClientMessage) error {
	sess, err := c.registry.Get(msg.SessionID)
	if err != nil {
		return c.sendError(ctx, "gateway", err.Error())
	}
	c.sess = sess
	return c.send(ctx, ServerMessage{
		Type:      ServerSession,
		SessionID: sess.ID,
		Status:    statusPayload(sess.Orch.Status()),
	})
}

func (c *client) handleAction(ctx context.Context, msg ClientMessage) error {
	if c.sess == nil {
		return c.sendError(ctx, "gateway", "no session bound; send create or attach first")
	}
	tr, err := c.sess.Orch.Dispatch(ctx, orchestrator.PlayerInput{
		Action:   msg.Action,
		Argument: msg.Argument,
	})
	if err != nil {
		return c.sendError(ctx, responder.KindOf(err), err.Error())
	}
	return c.sendTurn(ctx, tr)
}

func (c *client) handleCheckResult(ctx context.Context, msg ClientMessage) error {
	if c.sess == nil {
		return c.sendError(ctx, "gateway", "no session bound; send create or attach first")
	}
	if msg.Check == nil {
		return c.sendError(ctx, responder.ErrKindInput, "check_result requires a check payload")
	}
	tr, err := c.sess.Orch.Resume(ctx, *msg.Check)
	if err != nil {
		return c.sendError(ctx, responder.KindOf(err), err.Error())
	}
	return c.sendTurn(ctx, tr)
}

func (c *client) handleStatus(ctx context.Context) error {
	if c.sess == nil {
		return c.sendError(ctx, "gateway", "no session bound; send create or attach first")
	}
	return c.send(ctx, ServerMessage{
		Type:      ServerStatus,
		SessionID: c.sess.ID,
		Status:    statusPayload(c.sess.Orch.Status()),
	})
}

func (c *client) handleMove(ctx context.Context, msg ClientMessage) error {
	if c.sess == nil {
		return c.sendError(ctx, "gateway", "no session bound; send create or attach first")
	}
	if err := c.sess.Orch.MoveTo(msg.Location); err != nil {
		return c.sendError(ctx, responder.KindOf(err), err.Error())
	}
	return c.handleStatus(ctx)
}

func (c *client) handleReset(ctx context.Context) error {
	if c.sess == nil {
		return c.sendError(ctx, "gateway", "no session bound; send create or attach first")
	}
	c.sess.Orch.Reset()
	return c.handleStatus(ctx)
}

func (c *client) handleEnd(ctx context.Context) error {
	if c.sess == nil {
		return c.sendError(ctx, "gateway", "no session bound; send create or attach first")
	}
	err := c.registry.Evict(ctx, c.sess.ID)
	id := c.sess.ID
	c.sess = nil
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.sendError(ctx, "gateway", err.Error())
	}
	return c.send(ctx, ServerMessage{Type: ServerSession, SessionID: id})
}

// sendTurn renders a turn response: suspended turns become check requests,
// completed ones become turn payloads.
func (c *client) sendTurn(ctx context.Context, tr *orchestrator.TurnResponse) error {
	if tr.CheckRequest != nil {
		return c.send(ctx, ServerMessage{
			Type:      ServerCheckRequest,
			SessionID: c.sess.ID,
			Check: &CheckPayload{
				Phase:   string(tr.Phase),
				Request: *tr.CheckRequest,
			},
		})
	}
	return c.send(ctx, ServerMessage{
		Type:      ServerTurn,
		SessionID: c.sess.ID,
		Turn:      turnPayload(tr),
	})
}

// sendError reports a classified failure to the client. The connection stays
// open; only transport write failures propagate.
func (c *client) sendError(ctx context.Context, kind, message string) error {
	msg := ServerMessage{
		Type:  ServerError,
		Error: &ErrorPayload{Kind: kind, Message: message},
	}
	if c.sess != nil {
		msg.SessionID = c.sess.ID
	}
	return c.send(ctx, msg)
}

// send marshals msg and writes it as a text WebSocket message.
func (c *client) send(ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gateway: marshal: %w", err)
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}
