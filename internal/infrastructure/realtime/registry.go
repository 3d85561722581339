package realtime

import (
	"encoding/json"
	"sync"
)

// Session is a live, authenticated transport handle. *Connection is the
// production implementation; tests register fakes.
type Session interface {
	SessionID() string
	UserID() string
	DisplayName() string
	Start()
	Send(payload []byte) error
	Close(code int, reason string)
}

// CloseReplaced is the close code sent to a session displaced by a newer
// connection from the same user.
const CloseReplaced = 4001

type presenceFrame struct {
	Type string       `json:"type"`
	Data presenceData `json:"data"`
}

type presenceData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Registry is the source of truth for "is user reachable now". It maps each
// authenticated user to at most one live session; a second connection by the
// same user replaces the first. State is purely in-memory, so a restart
// makes everyone offline until they reconnect.
//
// Every register and every final unregister broadcasts a user_status frame
// to all connected sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session            // userID -> session
	rooms    map[string]map[string]Session // conversationID -> userID -> session
	joined   map[string]map[string]bool    // sessionID -> conversationIDs
}

// NewRegistry constructs an initialized Registry. It is owned by the process
// and passed by reference to connection handlers; there is no ambient global.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		rooms:    make(map[string]map[string]Session),
		joined:   make(map[string]map[string]bool),
	}
}

// Register tracks the session and broadcasts an online presence event. Any
// prior session for the same user is displaced and closed after the swap.
func (r *Registry) Register(s Session) {
	var previous Session

	r.mu.Lock()
	if existing, ok := r.sessions[s.UserID()]; ok {
		previous = existing
		r.dropLocked(existing)
	}
	r.sessions[s.UserID()] = s
	r.joined[s.SessionID()] = make(map[string]bool)
	r.mu.Unlock()

	s.Start()

	if previous != nil {
		previous.Close(CloseReplaced, "session replaced")
	}

	r.broadcastPresence(s.UserID(), s.DisplayName(), true)
}

// Unregister removes the session if it is still the user's current one and,
// if so, broadcasts an offline presence event. A session already displaced
// by a newer connection is a no-op so the user never flaps offline.
func (r *Registry) Unregister(s Session) {
	r.mu.Lock()
	current, ok := r.sessions[s.UserID()]
	if !ok || current.SessionID() != s.SessionID() {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.UserID())
	r.dropLocked(s)
	r.mu.Unlock()

	r.broadcastPresence(s.UserID(), s.DisplayName(), false)
}

// Lookup returns the user's live session, if any.
func (r *Registry) Lookup(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// ListOnline returns the ids of all currently connected users.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// NotifyUser delivers payload to the user's current session. Best-effort:
// returns false when the user is offline or the write fails.
func (r *Registry) NotifyUser(userID string, payload []byte) bool {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return s.Send(payload) == nil
}

// BroadcastAll writes payload to every connected session except
// excludeUserID (empty string excludes nobody). Returns deliveries.
func (r *Registry) BroadcastAll(payload []byte, excludeUserID string) int {
	r.mu.RLock()
	targets := make([]Session, 0, len(r.sessions))
	for userID, s := range r.sessions {
		if userID == excludeUserID {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// Join subscribes the session to a conversation room.
func (r *Registry) Join(conversationID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[s.UserID()]; !ok || current.SessionID() != s.SessionID() {
		return
	}
	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]Session)
		r.rooms[conversationID] = room
	}
	room[s.UserID()] = s
	r.joined[s.SessionID()][conversationID] = true
}

// Leave removes the session from a conversation room.
func (r *Registry) Leave(conversationID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conversationID, s)
}

// BroadcastRoom writes payload to room members, skipping excludeUserID.
func (r *Registry) BroadcastRoom(conversationID string, payload []byte, excludeUserID string) int {
	r.mu.RLock()
	room := r.rooms[conversationID]
	targets := make([]Session, 0, len(room))
	for userID, s := range room {
		if userID == excludeUserID {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// Close terminates all tracked sessions and clears registry state.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]Session)
	r.rooms = make(map[string]map[string]Session)
	r.joined = make(map[string]map[string]bool)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close(1001, "registry shutdown")
	}
}

func (r *Registry) broadcastPresence(userID, username string, online bool) {
	payload, err := json.Marshal(presenceFrame{
		Type: "user_status",
		Data: presenceData{UserID: userID, Username: username, Online: online},
	})
	if err != nil {
		return
	}
	r.BroadcastAll(payload, "")
}

func (r *Registry) dropLocked(s Session) {
	for conversationID := range r.joined[s.SessionID()] {
		r.leaveLocked(conversationID, s)
	}
	delete(r.joined, s.SessionID())
}

func (r *Registry) leaveLocked(conversationID string, s Session) {
	room := r.rooms[conversationID]
	if room == nil {
		return
	}
	if member, ok := room[s.UserID()]; ok && member.SessionID() == s.SessionID() {
		delete(room, s.UserID())
	}
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
	if memberships, ok := r.joined[s.SessionID()]; ok {
		delete(memberships, conversationID)
	}
}
