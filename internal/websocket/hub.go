package websocket

import (
	"sync"

	"github.com/HassanDev-git/HK.Chat/internal/logger"
	"github.com/HassanDev-git/HK.Chat/internal/metrics"
	"github.com/HassanDev-git/HK.Chat/pkg/wire"
)

// connData stores connection metadata for each live handle.
type connData struct {
	UserID int64
	Conn   Conn
	queue  *connQueue
}

// Hub owns the set of live handles and fans events out to them.
type Hub struct {
	conns   sync.Map // handle id -> *connData
	count   int
	countMu sync.Mutex
	metrics *metrics.Metrics
}

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{metrics: m}
}

func (h *Hub) newConnData(userID int64, conn Conn) *connData {
	return &connData{
		UserID: userID,
		Conn:   conn,
		queue:  newConnQueue(conn.ID(), h.metrics),
	}
}

// add makes cd visible to lookups. It reports false if the id is taken.
func (h *Hub) add(cd *connData) bool {
	if _, loaded := h.conns.LoadOrStore(cd.Conn.ID(), cd); loaded {
		logger.Warnf("Hub: handle %s registered twice", cd.Conn.ID())
		return false
	}
	h.countMu.Lock()
	h.count++
	n := h.count
	h.countMu.Unlock()
	h.metrics.SetConnections(n)
	return true
}

func (h *Hub) remove(connID string) {
	if _, ok := h.conns.LoadAndDelete(connID); !ok {
		return
	}
	h.countMu.Lock()
	h.count--
	n := h.count
	h.countMu.Unlock()
	h.metrics.SetConnections(n)
}

func (h *Hub) get(connID string) (*connData, bool) {
	v, ok := h.conns.Load(connID)
	if !ok {
		return nil, false
	}
	cd, ok := v.(*connData)
	return cd, ok
}

// Count returns the number of live handles.
func (h *Hub) Count() int {
	h.countMu.Lock()
	defer h.countMu.Unlock()
	return h.count
}

// EmitTo sends the event to each listed handle except skipConnID. Handles
// that are no longer live are ignored. It returns the number of sends.
func (h *Hub) EmitTo(connIDs []string, event string, payload any, skipConnID string) int {
	sent := 0
	for _, id := range connIDs {
		if skipConnID != "" && id == skipConnID {
			continue
		}
		cd, ok := h.get(id)
		if !ok {
			continue
		}
		cd.Conn.Emit(event, payload)
		sent++
	}
	h.metrics.Emitted(event, sent)
	return sent
}

// EmitToAll sends the event to every live handle except skipConnID.
func (h *Hub) EmitToAll(event string, payload any, skipConnID string) int {
	sent := 0
	h.conns.Range(func(key, value any) bool {
		cd, ok := value.(*connData)
		if !ok {
			return true
		}
		if skipConnID != "" && key == skipConnID {
			return true
		}
		cd.Conn.Emit(event, payload)
		sent++
		return true
	})
	h.metrics.Emitted(event, sent)
	return sent
}

// BroadcastPresence sends user:online to every handle except the one whose
// transition triggered it.
func (h *Hub) BroadcastPresence(payload wire.PresencePayload, exceptConnID string) {
	n := h.EmitToAll(wire.EventUserOnline, payload, exceptConnID)
	logger.Tracef("Presence: user %d online=%t sent to %d handles", payload.UserID, payload.IsOnline, n)
}
