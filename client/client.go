package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"studychat/internal/pkg/chat/application/dispatch"
)

const (
	maxReconnectAttempts = 5
	reconnectDelay       = time.Second
)

// ErrDisconnected is returned once automatic reconnection is exhausted;
// the caller must invoke Reconnect to resume.
var ErrDisconnected = errors.New("client: disconnected, reconnect required")

// ConnectionStatus is a point-in-time snapshot of the transport.
type ConnectionStatus struct {
	Connected         bool
	ReconnectAttempts int
	QueuedRequests    int
}

// Client is the realtime chat client. State-changing sends made while the
// transport is down are captured in the offline queue and replayed by the
// orchestrator on reconnect.
type Client struct {
	url   string
	token string

	events *events
	queue  *QueueStore // nil disables offline capture
	drain  func()      // invoked after each successful (re)connect

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	attempts  int
	gaveUp    bool
	closed    bool
}

// New constructs a client for the given websocket URL and bearer token.
// queue may be nil when offline capture is not wanted.
func New(url, token string, queue *QueueStore) *Client {
	return &Client{url: url, token: token, events: newEvents(), queue: queue}
}

// OnEvent subscribes h to frames of the given type (new_message,
// messages_read, user_status, user_typing, notification, ...).
func (c *Client) OnEvent(eventType string, h Handler) {
	c.events.on(eventType, h)
}

// SetDrainHook registers a callback run after every successful connect,
// typically Orchestrator.Drain.
func (c *Client) SetDrainHook(hook func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drain = hook
}

// Connect dials the server and starts the read loop. Safe to call again
// after ErrDisconnected.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("client: closed")
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	url := c.url + "?token=" + c.token
	c.mu.Unlock()

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.attempts = 0
	c.gaveUp = false
	hook := c.drain
	c.mu.Unlock()

	go c.readLoop(ws)
	if hook != nil {
		go hook()
	}
	return nil
}

// Reconnect resets the attempt budget and dials again. This is the explicit
// recovery path once automatic retries are exhausted.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	c.attempts = 0
	c.gaveUp = false
	c.mu.Unlock()
	return c.Connect()
}

// Close tears the transport down for good.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	ws := c.ws
	c.ws = nil
	c.connected = false
	c.mu.Unlock()
	if ws != nil {
		return ws.Close()
	}
	return nil
}

// Status reports the current connection and queue state.
func (c *Client) Status() ConnectionStatus {
	c.mu.Lock()
	status := ConnectionStatus{Connected: c.connected, ReconnectAttempts: c.attempts}
	queue := c.queue
	c.mu.Unlock()
	if queue != nil {
		if n, err := queue.Count(); err == nil {
			status.QueuedRequests = n
		}
	}
	return status
}

// SendMessage emits a send_message frame when connected. While offline the
// message is captured in the queue for replay; ErrDisconnected is returned
// when no queue is configured.
func (c *Client) SendMessage(receiverID, content, kind string) error {
	payload := dispatch.InboundSend{ReceiverID: receiverID, Content: content, Kind: kind}
	if err := c.sendFrame(dispatch.EventSendMessage, payload); err == nil {
		return nil
	}

	if c.queue == nil {
		return ErrDisconnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = c.queue.Enqueue(OfflineRequest{
		Method:  "POST",
		Target:  "/api/v1/chat/messages",
		Payload: raw,
		Headers: map[string]string{"Authorization": "Bearer " + c.token},
	})
	return err
}

// MarkRead emits a mark_read frame. Read marks are not queued offline: the
// conversation view re-marks on next open anyway.
func (c *Client) MarkRead(conversationID string) error {
	return c.sendFrame(dispatch.EventMarkRead, dispatch.InboundConversation{ConversationID: conversationID})
}

// NotifyTyping emits a typing indicator. Dropped silently while offline.
func (c *Client) NotifyTyping(conversationID string, isTyping bool) {
	_ = c.sendFrame(dispatch.EventTyping, dispatch.InboundTyping{ConversationID: conversationID, IsTyping: isTyping})
}

// JoinConversation subscribes to a conversation's room events.
func (c *Client) JoinConversation(conversationID string) error {
	return c.sendFrame(dispatch.EventJoin, dispatch.InboundConversation{ConversationID: conversationID})
}

// LeaveConversation unsubscribes from a conversation's room events.
func (c *Client) LeaveConversation(conversationID string) error {
	return c.sendFrame(dispatch.EventLeave, dispatch.InboundConversation{ConversationID: conversationID})
}

func (c *Client) sendFrame(eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	frame, err := json.Marshal(dispatch.Frame{Type: eventType, Data: raw})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.mu.Lock()
	ws := c.ws
	connected := c.connected
	c.mu.Unlock()
	if !connected || ws == nil {
		return ErrDisconnected
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.onDisconnect(ws)
			return
		}
		var frame dispatch.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		c.events.emit(frame)
	}
}

// onDisconnect marks the transport down and retries the dial a bounded
// number of times with a fixed delay. After the budget is spent the client
// stays down until Reconnect is called.
func (c *Client) onDisconnect(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws != ws || c.closed {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.connected = false
	c.mu.Unlock()
	_ = ws.Close()

	for {
		c.mu.Lock()
		if c.closed || c.gaveUp {
			c.mu.Unlock()
			return
		}
		if c.attempts >= maxReconnectAttempts {
			c.gaveUp = true
			c.mu.Unlock()
			log.Printf("client: gave up after %d reconnect attempts", maxReconnectAttempts)
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		time.Sleep(reconnectDelay)
		err := c.Connect()
		if err == nil {
			return
		}
		log.Printf("client: reconnect attempt %d failed: %v", attempt, err)
	}
}
