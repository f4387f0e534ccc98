// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

// Package mqtt is the MQTT side of the worker-transport protocol: a
// Subscriber owns the broker connection for one aggregation group,
// subscribes to that group's partial-state topic, and hands every
// message payload to a combine callback. The teacher's MQTT package
// only ever published (a store pushed its own data out); the
// direction here is reversed to match the WebSocket transport in
// internal/ws - parallel workers publish, the coordinator subscribes -
// but the reconnect-loop and status-counter idiom is carried over
// directly from the teacher's Pusher.
package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config is the subset of broker settings a Subscriber needs.
type Config struct {
	BrokerURL   string
	TopicPrefix string
	ClientID    string
	QoS         byte
}

// Status is the ops-visibility snapshot of a group's MQTT subscriber.
type Status struct {
	GroupID        string `json:"group_id"`
	Topic          string `json:"topic"`
	Status         string `json:"status"` // connecting, connected, disconnected, error
	FramesReceived int64  `json:"frames_received"`
	Errors         int64  `json:"errors"`
	LastError      string `json:"last_error,omitempty"`
}

// Subscriber receives serialized partial-state frames published by
// parallel workers on "<prefix>/<groupID>/partial" and folds each one
// in through onPartial.
type Subscriber struct {
	mu      sync.RWMutex
	cfg     Config
	groupID string
	topic   string

	onPartial func(groupID string, data []byte) error

	client paho.Client
	status string

	framesReceived int64
	errs           int64
	lastError      string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSubscriber creates an MQTT subscriber for a group. onPartial is
// invoked with the group id and each received frame.
func NewSubscriber(cfg Config, groupID string, onPartial func(groupID string, data []byte) error) *Subscriber {
	return &Subscriber{
		cfg:       cfg,
		groupID:   groupID,
		topic:     cfg.TopicPrefix + "/" + groupID + "/partial",
		onPartial: onPartial,
		status:    "disconnected",
		stopCh:    make(chan struct{}),
	}
}

// Status returns the current connection status.
func (s *Subscriber) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		GroupID:        s.groupID,
		Topic:          s.topic,
		Status:         s.status,
		FramesReceived: atomic.LoadInt64(&s.framesReceived),
		Errors:         atomic.LoadInt64(&s.errs),
		LastError:      s.lastError,
	}
}

// Start begins the subscription with auto-reconnect.
func (s *Subscriber) Start() error {
	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop disconnects from the broker. Calling it again after the subscriber
// has stopped is a no-op.
func (s *Subscriber) Stop() error {
	select {
	case <-s.stopCh:
		return nil
	default:
	}
	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(1000)
	}
	s.client = nil
	s.status = "disconnected"
	s.mu.Unlock()
	return nil
}

// runLoop is the main connection loop with auto-reconnect, mirroring
// the teacher's Pusher.runLoop.
func (s *Subscriber) runLoop() {
	defer s.wg.Done()

	retryDelay := time.Second
	maxRetryDelay := 60 * time.Second

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(); err != nil {
			s.setError(err.Error())
			retryDelay = min(retryDelay*2, maxRetryDelay)

			select {
			case <-s.stopCh:
				return
			case <-time.After(retryDelay):
				continue
			}
		}

		retryDelay = time.Second

		// Block until Stop is called or the connection drops; paho
		// delivers messages on its own goroutines via the handler
		// passed to connect, so this loop just waits, checking the
		// connection once a second and reconnecting when it is lost.
		ticker := time.NewTicker(time.Second)
		for connected := true; connected; {
			select {
			case <-s.stopCh:
				ticker.Stop()
				return
			case <-ticker.C:
				s.mu.RLock()
				connected = s.client != nil && s.client.IsConnected()
				s.mu.RUnlock()
			}
		}
		ticker.Stop()
	}
}

// connect establishes the MQTT connection and subscribes to the
// group's partial-state topic.
func (s *Subscriber) connect() error {
	s.mu.Lock()
	s.status = "connecting"
	s.mu.Unlock()

	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("statsaggd-%s", s.groupID)
	} else {
		clientID = fmt.Sprintf("%s-%s", clientID, s.groupID)
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)
	opts.SetOnConnectionLost(func(_ paho.Client, err error) {
		s.setError(err.Error())
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		if token.Error() != nil {
			return token.Error()
		}
		return fmt.Errorf("connect to %s timed out", s.cfg.BrokerURL)
	}

	subToken := client.Subscribe(s.topic, s.cfg.QoS, s.handleMessage)
	if !subToken.WaitTimeout(10*time.Second) || subToken.Error() != nil {
		client.Disconnect(250)
		if subToken.Error() != nil {
			return subToken.Error()
		}
		return fmt.Errorf("subscribe to %s timed out", s.topic)
	}

	s.mu.Lock()
	s.client = client
	s.status = "connected"
	s.lastError = ""
	s.mu.Unlock()
	return nil
}

// handleMessage is the paho message callback: it hands the payload to
// onPartial and tracks counters.
func (s *Subscriber) handleMessage(_ paho.Client, msg paho.Message) {
	atomic.AddInt64(&s.framesReceived, 1)
	if err := s.onPartial(s.groupID, msg.Payload()); err != nil {
		atomic.AddInt64(&s.errs, 1)
		s.setError(err.Error())
	}
}

func (s *Subscriber) setError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.status = "error"
	s.mu.Unlock()
}
