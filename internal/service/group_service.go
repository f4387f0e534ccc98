// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the PolyForm Noncommercial License 1.0.0
// See LICENSE file for details.

// Package service contains business logic for the reference host's API
// server.
package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sneller-labs/statsagg/internal/config"
	"github.com/sneller-labs/statsagg/internal/mqtt"
	"github.com/sneller-labs/statsagg/internal/notify"
	"github.com/sneller-labs/statsagg/internal/ws"
	"github.com/sneller-labs/statsagg/pkg/hostagg"
	"github.com/sneller-labs/statsagg/pkg/statsagg"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrGroupFinal    = errors.New("group already finalized")
)

// group is one live carry-state slot, the "named resource with
// mutex-guarded lifecycle" the coordinator hands out per aggregation
// group (company, region, whatever the caller is rolling up).
type group struct {
	state     *statsagg.StatsState
	createdAt time.Time
	wsManager *ws.Manager
	mqttSub   *mqtt.Subscriber
	finalized bool
}

// GroupService is the coordinator's per-group state registry. It plays the
// role of "the host's per-group state slot" that a real database engine
// would provide natively: it owns every live *statsagg.StatsState, and is
// the only thing in the reference host that calls into pkg/hostagg on a
// group's state (the calc subcommand and the scalar handlers call it on
// their own, group-less inputs).
type GroupService struct {
	mu      sync.RWMutex
	cfg     *config.Config
	groups  map[uuid.UUID]*group
	webhook *notify.Webhook // nil if no webhook URL configured
}

// NewGroupService creates a new group registry.
func NewGroupService(cfg *config.Config) *GroupService {
	s := &GroupService{
		cfg:    cfg,
		groups: make(map[uuid.UUID]*group),
	}
	if cfg.Webhook.URL != "" {
		s.webhook = notify.NewWebhook(notify.WebhookConfig{URL: cfg.Webhook.URL})
		s.webhook.Start()
	}
	return s
}

// Close stops the webhook sender, if one is running.
func (s *GroupService) Close() {
	if s.webhook != nil {
		s.webhook.Stop()
	}
}

// alertCombineFailure fires a best-effort webhook notification when a
// worker's partial state can't be folded into a group at the given stage
// ("merge", "combine" or "deserialize"). Repeats for the same group/stage are coalesced
// by the webhook itself; see internal/notify.
func (s *GroupService) alertCombineFailure(groupID uuid.UUID, stage string, err error) {
	if s.webhook == nil {
		return
	}
	s.webhook.Send(groupID.String(), stage, err)
}

// Create allocates a new carry-state (the aggregate's initcond) and
// returns its group id.
func (s *GroupService) Create() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	g := &group{
		state:     statsagg.NewStatsState(),
		createdAt: time.Now().UTC(),
	}
	g.wsManager = ws.NewManager(id.String(), s.combineFromWorker)
	go g.wsManager.Start()

	mqttCfg := mqtt.Config{
		BrokerURL:   s.cfg.MQTT.BrokerURL,
		TopicPrefix: s.cfg.MQTT.TopicPrefix,
		ClientID:    s.cfg.MQTT.ClientID,
		QoS:         s.cfg.MQTT.QoS,
	}
	g.mqttSub = mqtt.NewSubscriber(mqttCfg, id.String(), s.combineFromWorker)
	g.mqttSub.Start()

	s.groups[id] = g
	return id
}

// AccumulateRows folds a per-row stats object into a group's state (the
// jsonb_stats_agg sfunc path).
func (s *GroupService) AccumulateRows(id uuid.UUID, stats map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.lookupLocked(id)
	if err != nil {
		return err
	}

	state, err := hostagg.SFunc(g.state, stats, s.cfg.Agg.Strict)
	g.state = state
	return err
}

// MergeAgg folds an already-computed stats_agg summary into a group's
// state (the jsonb_stats_merge_agg sfunc path).
func (s *GroupService) MergeAgg(id uuid.UUID, aggJSON map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.lookupLocked(id)
	if err != nil {
		return err
	}

	state, err := hostagg.MergeSFunc(g.state, aggJSON, s.cfg.Agg.Strict)
	g.state = state
	if err != nil {
		s.alertCombineFailure(id, "merge", err)
	}
	return err
}

// CombinePartial merges a serialized worker partial into a group's state
// (the combinefunc path). It serves both the HTTP combine route and, via
// combineFromWorker, the WebSocket/MQTT worker transports.
func (s *GroupService) CombinePartial(id uuid.UUID, data []byte) error {
	partial, err := hostagg.DeserialFunc(data)
	if err != nil {
		s.alertCombineFailure(id, "deserialize", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.lookupLocked(id)
	if err != nil {
		return err
	}

	state, err := hostagg.CombineFunc(g.state, partial)
	g.state = state
	if err != nil {
		s.alertCombineFailure(id, "combine", err)
	}
	return err
}

// combineFromWorker is the callback the group's ws.Manager (and, via
// internal/mqtt, the MQTT subscriber) invokes with each partial frame it
// receives from a parallel worker.
func (s *GroupService) combineFromWorker(idStr string, data []byte) error {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return err
	}
	return s.CombinePartial(id, data)
}

// Finalize consumes a group's state and returns the terminal stats_agg
// summary. The group is marked finalized; further row/merge/combine calls
// against it fail.
func (s *GroupService) Finalize(id uuid.UUID) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, err := s.lookupLocked(id)
	if err != nil {
		return nil, err
	}

	out := hostagg.FinalFunc(g.state)
	g.finalized = true
	if g.wsManager != nil {
		g.wsManager.Stop()
	}
	if g.mqttSub != nil {
		g.mqttSub.Stop()
	}
	return out, nil
}

// Serialize ships a group's current state to bytes, for a worker pulling
// down a snapshot to continue combining against.
func (s *GroupService) Serialize(id uuid.UUID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, err := s.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return hostagg.SerialFunc(g.state)
}

// GroupInfo is the ops-visibility view of a live group (not in the spec's
// calling convention, but needed to list groups from the HTTP surface).
type GroupInfo struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Finalized bool      `json:"finalized"`
	FieldKeys int       `json:"field_keys"`
}

// List returns ops-visibility info for every live group.
func (s *GroupService) List() []GroupInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]GroupInfo, 0, len(s.groups))
	for id, g := range s.groups {
		fieldKeys := 0
		if g.state != nil {
			fieldKeys = len(g.state.Fields)
		}
		out = append(out, GroupInfo{
			ID:        id,
			CreatedAt: g.createdAt,
			Finalized: g.finalized,
			FieldKeys: fieldKeys,
		})
	}
	return out
}

// Delete removes a group, stopping its worker transport if still running.
func (s *GroupService) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return ErrGroupNotFound
	}
	if g.wsManager != nil {
		g.wsManager.Stop()
	}
	if g.mqttSub != nil {
		g.mqttSub.Stop()
	}
	delete(s.groups, id)
	return nil
}

// CloseAll stops every group's worker transport, e.g. on coordinator
// shutdown.
func (s *GroupService) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, g := range s.groups {
		if g.wsManager != nil {
			g.wsManager.Stop()
		}
		if g.mqttSub != nil {
			g.mqttSub.Stop()
		}
		delete(s.groups, id)
	}
}

// GetMQTTStatus returns the MQTT subscriber status for a group, for
// ops visibility.
func (s *GroupService) GetMQTTStatus(id uuid.UUID) (mqtt.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok || g.mqttSub == nil {
		return mqtt.Status{}, false
	}
	return g.mqttSub.Status(), true
}

// GetWSManager returns the WebSocket manager for a group.
func (s *GroupService) GetWSManager(id uuid.UUID) *ws.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil
	}
	return g.wsManager
}

func (s *GroupService) lookupLocked(id uuid.UUID) (*group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	if g.finalized {
		return nil, ErrGroupFinal
	}
	return g, nil
}
