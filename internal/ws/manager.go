// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

// Package ws is the worker-transport side of the parallel-aggregation
// protocol: each group gets a Manager that accepts inbound WebSocket
// connections from parallel workers, reads the serialized partial
// states they upload, and folds each one into the group through a
// combine callback. This mirrors the teacher's Pusher/Puller split
// (a long-lived manager, a per-connection worker with its own status
// counters and reconnect-style read loop) but the direction is
// reversed: workers dial in here rather than the coordinator dialing
// out to them.
package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectionStatus is the ops-visibility snapshot of one worker
// connection.
type ConnectionStatus struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"` // "connected" or "disconnected"
	ConnectedAt    time.Time `json:"connected_at"`
	FramesReceived int64     `json:"frames_received"`
	CombineErrors  int64     `json:"combine_errors"`
	LastError      string    `json:"last_error,omitempty"`
}

// Manager owns the worker-facing WebSocket connections for a single
// aggregation group. Each accepted connection streams one or more
// statsagg.Serialize frames; every frame is handed to onPartial.
type Manager struct {
	mu        sync.RWMutex
	groupID   string
	onPartial func(groupID string, data []byte) error

	conns   map[string]*workerConn
	started bool
	closed  bool
}

// NewManager creates a worker-transport manager for a group. onPartial
// is invoked with the group id and each frame received from a worker;
// its error is recorded in the connection's status and sent back to the
// worker in an "error" ack, and the connection stays open afterward so a
// worker's bad frame doesn't cost it the rest of the session.
func NewManager(groupID string, onPartial func(groupID string, data []byte) error) *Manager {
	return &Manager{
		groupID:   groupID,
		onPartial: onPartial,
		conns:     make(map[string]*workerConn),
	}
}

// Start marks the manager ready to accept worker connections. It is
// idempotent and returns immediately; connections register themselves
// as the HTTP layer upgrades them.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

// Stop closes every live worker connection and rejects further Accept
// calls.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.closed = true
	conns := make([]*workerConn, 0, len(m.conns))
	for _, wc := range m.conns {
		conns = append(conns, wc)
	}
	m.conns = make(map[string]*workerConn)
	m.mu.Unlock()

	for _, wc := range conns {
		wc.close()
	}
	return nil
}

// Accept registers a freshly upgraded WebSocket connection and runs
// its read loop until the worker disconnects or Stop is called. It
// blocks, matching the teacher's wsWriter.run convention of running in
// the handler's goroutine.
func (m *Manager) Accept(connID string, conn *websocket.Conn) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	wc := &workerConn{
		id:          connID,
		conn:        conn,
		manager:     m,
		connectedAt: time.Now().UTC(),
		status:      "connected",
		closeCh:     make(chan struct{}),
	}
	m.conns[connID] = wc
	m.mu.Unlock()

	wc.run()

	m.mu.Lock()
	delete(m.conns, connID)
	m.mu.Unlock()
}

// Connections returns ops-visibility status for every live worker
// connection on this group.
func (m *Manager) Connections() []ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConnectionStatus, 0, len(m.conns))
	for _, wc := range m.conns {
		out = append(out, wc.snapshot())
	}
	return out
}

// workerConn is one inbound connection from a parallel worker.
type workerConn struct {
	id          string
	conn        *websocket.Conn
	manager     *Manager
	connectedAt time.Time

	mu        sync.RWMutex
	status    string
	lastError string

	framesReceived int64
	combineErrors  int64

	closeCh chan struct{}
	once    sync.Once
}

// run reads serialized partial-state frames off the connection and
// hands each to the manager's onPartial callback until the worker
// disconnects.
func (wc *workerConn) run() {
	defer wc.conn.Close()

	for {
		select {
		case <-wc.closeCh:
			return
		default:
		}

		wc.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		msgType, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				wc.setStatus("disconnected")
				return
			}
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				if err := wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					wc.setStatus("disconnected")
					return
				}
				continue
			}
			wc.setStatus("disconnected")
			return
		}

		if msgType != websocket.BinaryMessage {
			continue
		}

		atomic.AddInt64(&wc.framesReceived, 1)
		if err := wc.manager.onPartial(wc.manager.groupID, data); err != nil {
			atomic.AddInt64(&wc.combineErrors, 1)
			wc.setError(err.Error())
			wc.conn.WriteJSON(workerAck{Type: "error", Message: err.Error()})
			continue
		}
		wc.conn.WriteJSON(workerAck{Type: "ack"})
	}
}

func (wc *workerConn) setStatus(s string) {
	wc.mu.Lock()
	wc.status = s
	wc.mu.Unlock()
}

func (wc *workerConn) setError(msg string) {
	wc.mu.Lock()
	wc.lastError = msg
	wc.mu.Unlock()
}

func (wc *workerConn) snapshot() ConnectionStatus {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	return ConnectionStatus{
		ID:             wc.id,
		Status:         wc.status,
		ConnectedAt:    wc.connectedAt,
		FramesReceived: atomic.LoadInt64(&wc.framesReceived),
		CombineErrors:  atomic.LoadInt64(&wc.combineErrors),
		LastError:      wc.lastError,
	}
}

func (wc *workerConn) close() {
	wc.once.Do(func() {
		close(wc.closeCh)
		wc.conn.Close()
	})
}

// workerAck is the per-frame acknowledgment sent back to a worker.
type workerAck struct {
	Type    string `json:"type"` // "ack" or "error"
	Message string `json:"message,omitempty"`
}
