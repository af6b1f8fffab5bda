package chat

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"PGateway/logger"
	"PGateway/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const resolveTimeout = 3 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenVerifier is the external auth collaborator: token in, userId out.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// PresenceStore mirrors registry membership into shared storage so an
// external router can find users later. Optional; nil disables it.
type PresenceStore interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

// Gateway owns the lifecycle of every websocket connection: handshake
// auth, the per-connection read loop, and teardown.
type Gateway struct {
	reg      *Registry
	fan      *Coordinator
	verifier TokenVerifier
	presence PresenceStore
}

func NewGateway(reg *Registry, fan *Coordinator, verifier TokenVerifier, presence PresenceStore) *Gateway {
	return &Gateway{reg: reg, fan: fan, verifier: verifier, presence: presence}
}

// HandleWS upgrades the request and runs the connection until it closes.
// Auth comes from the ?token= query parameter; a bad token closes the
// channel with a policy-violation code before it ever hits the registry.
func (g *Gateway) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	userID, err := g.verifier.Verify(c.Query("token"))
	if err != nil {
		logger.Warnf("[HandleWS] auth failed: %v", err)
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthorized"), deadline)
		closeQuiet(ws)
		return
	}

	client := NewClient(uuid.NewString(), userID, ws)
	g.reg.Register(client)
	g.markOnline(client)
	logger.Infof("[HandleWS] client connected user=%s conn=%s", userID, client.ConnID)

	safe.Go("writePump:"+client.ConnID, client.WritePump)

	g.readLoop(client, ws)

	g.reg.Unregister(client)
	client.CloseSend()
	g.markOffline(client)
	logger.Infof("[HandleWS] client disconnected user=%s conn=%s", userID, client.ConnID)
}

// readLoop processes inbound frames in receipt order. Malformed or
// unrecognized frames get a keepalive pong; they never kill the channel.
func (g *Gateway) readLoop(client *Client, ws *websocket.Conn) {
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s", client.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[WS] read err conn=%s err=%v", client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			client.Enqueue(PongFrame())
			continue
		}

		switch {
		case frame.Type == EventTyping:
			if g.handleTyping(client, frame) {
				continue
			}
		case IsCallSignal(frame.Type):
			if g.handleCallSignal(client, frame) {
				continue
			}
		}

		client.Enqueue(PongFrame())
	}
}

func (g *Gateway) handleTyping(client *Client, frame *Frame) bool {
	var p TypingPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		return false
	}
	if p.ConversationID == "" || p.IsTyping == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	if err := g.fan.BroadcastTyping(ctx, p.ConversationID, client.UserID, *p.IsTyping); err != nil {
		logger.Errorf("[WS] typing broadcast conv=%s err=%v", p.ConversationID, err)
	}
	return true
}

// handleCallSignal relays call:offer / call:ice / call:hangup / ... as an
// opaque pass-through, stamping the authenticated sender into the payload.
func (g *Gateway) handleCallSignal(client *Client, frame *Frame) bool {
	payload := map[string]any{}
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return false
		}
	}
	conversationID, _ := payload["conversationId"].(string)
	if conversationID == "" {
		return false
	}
	payload["fromUserId"] = client.UserID

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	if err := g.fan.BroadcastCallSignal(ctx, conversationID, frame.Type, payload); err != nil {
		logger.Errorf("[WS] call signal broadcast conv=%s type=%s err=%v", conversationID, frame.Type, err)
	}
	return true
}

func (g *Gateway) markOnline(client *Client) {
	if g.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	if err := g.presence.Online(ctx, client.UserID); err != nil {
		logger.Warnf("[WS] presence online user=%s err=%v", client.UserID, err)
	}
}

func (g *Gateway) markOffline(client *Client) {
	if g.presence == nil {
		return
	}
	// Another device may still be connected; only the last one out flips
	// the presence key.
	if g.reg.ConnCount(client.UserID) > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	if err := g.presence.Offline(ctx, client.UserID); err != nil {
		logger.Warnf("[WS] presence offline user=%s err=%v", client.UserID, err)
	}
}
