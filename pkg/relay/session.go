package relay

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/qmuntal/stateless"
)

// Connection lifecycle: a socket arrives Connected, moves to Joined once it is
// bound to a conversation room, and ends Disconnected. Joining again while
// Joined rebinds the socket to another room.
const (
	stateConnected    = "connected"
	stateJoined       = "joined"
	stateDisconnected = "disconnected"
)

const (
	triggerJoin       = "join"
	triggerDisconnect = "disconnect"
)

// session is the server-side state for one websocket connection. All writes
// to the connection go through send, so room broadcasts and direct events
// never interleave mid-frame.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	fsm    *stateless.StateMachine
	convID string
	userID string
}

func newSession(conn *websocket.Conn) *session {
	fsm := stateless.NewStateMachine(stateConnected)
	fsm.Configure(stateConnected).
		Permit(triggerJoin, stateJoined).
		Permit(triggerDisconnect, stateDisconnected)
	fsm.Configure(stateJoined).
		PermitReentry(triggerJoin).
		Permit(triggerDisconnect, stateDisconnected)
	return &session{conn: conn, fsm: fsm}
}

func (s *session) join(convID, userID string) error {
	if err := s.fsm.Fire(triggerJoin); err != nil {
		return err
	}
	s.convID = convID
	s.userID = userID
	return nil
}

func (s *session) disconnect() {
	_ = s.fsm.Fire(triggerDisconnect)
}

func (s *session) joined() bool {
	return s.fsm.MustState() == stateJoined
}

func (s *session) send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// sendEvent emits a framed event to this socket only.
func (s *session) sendEvent(eventType string, payload any) {
	_ = s.send(encodeEvent(eventType, payload))
}
