package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"studychat/internal/infrastructure/realtime"
	"studychat/internal/pkg/chat/application/dispatch"
	"studychat/internal/pkg/chat/application/usecase"
	chat "studychat/internal/pkg/chat/domain"
	"studychat/internal/pkg/identity/middleware"
	identity "studychat/internal/pkg/identity/port"
)

// ChatSocketController handles the websocket endpoint for realtime chat
// traffic. Authentication happens before the upgrade: browsers cannot set
// headers on websocket requests, so the credential is also accepted as a
// token query parameter.
type ChatSocketController struct {
	verifier identity.Verifier
	registry *realtime.Registry
	d        *dispatch.Dispatcher
}

func NewChatSocketController(verifier identity.Verifier, registry *realtime.Registry, d *dispatch.Dispatcher) *ChatSocketController {
	return &ChatSocketController{verifier: verifier, registry: registry, d: d}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The bearer token gates the session; origin stays open for the
		// web and desktop clients.
		return true
	},
}

const defaultReadTimeout = 60 * time.Second

// Handle upgrades HTTP connections to websocket and processes frames until
// the client disconnects.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = middleware.BearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			respondError(c, http.StatusUnauthorized, "authentication token required")
			return
		}

		ident, err := ctl.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "invalid token")
			return
		}

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; just return.
			return
		}

		conn := realtime.NewConnection(ident.ID, ident.Name, ws)
		ctl.registry.Register(conn)
		defer func() {
			ctl.registry.Unregister(conn)
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		_ = conn.Send(dispatch.ConnectedFrame(ident.ID, ident.Name))

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				return
			}

			var frame dispatch.Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				_ = conn.Send(dispatch.ErrorFrame("invalid payload"))
				continue
			}

			switch frame.Type {
			case dispatch.EventSendMessage:
				ctl.handleSend(c, conn, ident, frame.Data)
			case dispatch.EventTyping:
				ctl.handleTyping(conn, ident, frame.Data)
			case dispatch.EventMarkRead:
				ctl.handleMarkRead(c, conn, ident, frame.Data)
			case dispatch.EventJoin:
				ctl.handleRoom(conn, frame.Data, ctl.registry.Join)
			case dispatch.EventLeave:
				ctl.handleRoom(conn, frame.Data, ctl.registry.Leave)
			default:
				_ = conn.Send(dispatch.ErrorFrame("unknown frame type"))
			}
		}
	}
}

func (ctl *ChatSocketController) handleSend(c *gin.Context, conn *realtime.Connection, ident *identity.Identity, data json.RawMessage) {
	var in dispatch.InboundSend
	if err := json.Unmarshal(data, &in); err != nil {
		_ = conn.Send(dispatch.ErrorFrame("invalid payload"))
		return
	}

	saved, err := ctl.d.SendMessage(c.Request.Context(), ident.Name, usecase.SendMessageInput{
		SenderID:   ident.ID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
		Kind:       chat.MessageKind(in.Kind),
	})
	if err != nil {
		_ = conn.Send(dispatch.ErrorFrame(socketErrorText(err)))
		return
	}
	_ = conn.Send(dispatch.MessageSentFrame(saved))
}

func (ctl *ChatSocketController) handleTyping(conn *realtime.Connection, ident *identity.Identity, data json.RawMessage) {
	var in dispatch.InboundTyping
	if err := json.Unmarshal(data, &in); err != nil {
		_ = conn.Send(dispatch.ErrorFrame("invalid payload"))
		return
	}
	ctl.d.NotifyTyping(ident.ID, ident.Name, in.ConversationID, in.ReceiverID, in.IsTyping)
}

func (ctl *ChatSocketController) handleMarkRead(c *gin.Context, conn *realtime.Connection, ident *identity.Identity, data json.RawMessage) {
	var in dispatch.InboundConversation
	if err := json.Unmarshal(data, &in); err != nil {
		_ = conn.Send(dispatch.ErrorFrame("invalid payload"))
		return
	}
	if _, err := ctl.d.MarkRead(c.Request.Context(), ident.ID, in.ConversationID); err != nil {
		_ = conn.Send(dispatch.ErrorFrame(socketErrorText(err)))
	}
}

func (ctl *ChatSocketController) handleRoom(conn *realtime.Connection, data json.RawMessage, op func(string, realtime.Session)) {
	var in dispatch.InboundConversation
	if err := json.Unmarshal(data, &in); err != nil || in.ConversationID == "" {
		_ = conn.Send(dispatch.ErrorFrame("conversation_id is required"))
		return
	}
	op(in.ConversationID, conn)
}

// socketErrorText keeps storage details out of wire errors while passing
// validation text through verbatim.
func socketErrorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return err.Error()
	case errors.Is(err, chat.ErrNotAuthorized):
		return "not a participant in this conversation"
	case errors.Is(err, chat.ErrNotFound):
		return "not found"
	default:
		return "failed to send message"
	}
}
