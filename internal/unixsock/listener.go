// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

// Package unixsock provides Unix domain socket support for low-latency
// local ingestion of per-row stats objects into a group's carry-state.
package unixsock

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sneller-labs/statsagg/internal/apikey"
	"github.com/sneller-labs/statsagg/internal/service"
)

// Listener manages Unix socket connections for per-row stats ingestion.
type Listener struct {
	socketPath string
	groups     *service.GroupService
	keyManager *apikey.Manager
	listener   net.Listener
	wg         sync.WaitGroup
	done       chan struct{}
	mu         sync.Mutex
}

// NewListener creates a new Unix socket listener.
func NewListener(socketPath string, groups *service.GroupService, keyManager *apikey.Manager) *Listener {
	return &Listener{
		socketPath: socketPath,
		groups:     groups,
		keyManager: keyManager,
		done:       make(chan struct{}),
	}
}

// Start begins listening on the Unix socket.
func (l *Listener) Start() error {
	socketDir := filepath.Dir(l.socketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	if err := os.Remove(l.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", l.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}

	if err := os.Chmod(l.socketPath, 0660); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	l.mu.Lock()
	l.listener = listener
	l.mu.Unlock()

	log.Printf("Unix socket listening on %s", l.socketPath)

	go l.acceptLoop()

	return nil
}

// Stop gracefully shuts down the listener.
func (l *Listener) Stop() error {
	close(l.done)

	l.mu.Lock()
	if l.listener != nil {
		l.listener.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()

	os.Remove(l.socketPath)

	return nil
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				log.Printf("Unix socket accept error: %v", err)
				continue
			}
		}

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

// Connection protocol:
// 1. Client sends: AUTH <group-id> <api-key>\n
// 2. Server responds: OK\n or ERROR <message>\n
// 3. Client sends per-row stats objects: {"field": {"type": "int", "value": 1}}\n
// 4. Server folds each line into the group via AccumulateRows and
//    responds: OK\n or ERROR <message>\n

func (l *Listener) handleConnection(conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	authLine, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	authLine = strings.TrimSpace(authLine)

	parts := strings.SplitN(authLine, " ", 3)
	if len(parts) != 3 || strings.ToUpper(parts[0]) != "AUTH" {
		writer.WriteString("ERROR invalid auth format, expected: AUTH <group-id> <api-key>\n")
		writer.Flush()
		return
	}

	groupID, err := uuid.Parse(parts[1])
	if err != nil {
		writer.WriteString("ERROR invalid group id\n")
		writer.Flush()
		return
	}
	apiKey := parts[2]

	if _, err := l.keyManager.Validate(apiKey); err != nil {
		writer.WriteString("ERROR authentication failed\n")
		writer.Flush()
		return
	}

	writer.WriteString("OK\n")
	writer.Flush()

	for {
		select {
		case <-l.done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))

		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.ToUpper(line) == "QUIT" {
			writer.WriteString("OK bye\n")
			writer.Flush()
			return
		}

		var stats map[string]interface{}
		if err := json.Unmarshal([]byte(line), &stats); err != nil {
			writer.WriteString(fmt.Sprintf("ERROR invalid JSON: %s\n", err.Error()))
			writer.Flush()
			continue
		}

		if err := l.groups.AccumulateRows(groupID, stats); err != nil {
			writer.WriteString(fmt.Sprintf("ERROR %s\n", err.Error()))
			writer.Flush()
			continue
		}

		writer.WriteString("OK\n")
		writer.Flush()
	}
}

// SocketPath returns the path to the Unix socket.
func (l *Listener) SocketPath() string {
	return l.socketPath
}
