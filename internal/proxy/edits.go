package proxy

import (
	"sync"
	"time"
)

// editSessionTTL bounds how long an edit reaction waits for the replacement
// message before the session is dropped.
const editSessionTTL = 30 * time.Second

type editState struct {
	ChannelID      string
	MessageID      string
	Credential     string
	InstructionsID string
	timer          *time.Timer
}

// editSessions tracks in-flight message-edit flows keyed by the owner's
// account id. A user has at most one active edit session.
type editSessions struct {
	mu       sync.Mutex
	sessions map[string]*editState
}

func newEditSessions() *editSessions {
	return &editSessions{sessions: map[string]*editState{}}
}

func (e *editSessions) active(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[userID]
	return ok
}

// begin registers a session and schedules expiry; onExpire runs only when the
// session times out rather than completing.
func (e *editSessions) begin(userID string, state *editState, onExpire func(*editState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.sessions[userID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	state.timer = time.AfterFunc(editSessionTTL, func() {
		e.mu.Lock()
		current, ok := e.sessions[userID]
		if ok && current == state {
			delete(e.sessions, userID)
		}
		e.mu.Unlock()
		if ok && current == state {
			onExpire(state)
		}
	})
	e.sessions[userID] = state
}

// take removes and returns the session, stopping its expiry timer.
func (e *editSessions) take(userID string) (*editState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.sessions[userID]
	if !ok {
		return nil, false
	}
	delete(e.sessions, userID)
	if state.timer != nil {
		state.timer.Stop()
	}
	return state, true
}
