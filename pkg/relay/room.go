package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// room is the broadcast group for one conversation. Writes are routed through
// each member session so broadcasts and direct events never interleave on a
// connection; a member whose write fails is dropped and closed on the spot.
type room struct {
	convID string
	mu     sync.Mutex
	peers  map[*session]struct{}
}

func newRoom(convID string) *room {
	return &room{convID: convID, peers: map[*session]struct{}{}}
}

func (r *room) add(s *session) {
	r.mu.Lock()
	r.peers[s] = struct{}{}
	r.mu.Unlock()
}

func (r *room) remove(s *session) {
	r.mu.Lock()
	delete(r.peers, s)
	r.mu.Unlock()
}

func (r *room) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *room) broadcast(data []byte) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	for s := range r.peers {
		if err := s.send(data); err != nil {
			log.Warn().Err(err).Str("component", "relay").Str("conv_id", r.convID).Msg("ws broadcast failed, dropping connection")
			delete(r.peers, s)
			_ = s.conn.Close()
		}
	}
	r.mu.Unlock()
}
