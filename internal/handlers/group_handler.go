// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sneller-labs/statsagg/internal/service"
	"github.com/sneller-labs/statsagg/pkg/hostagg"
)

// GroupHandler exposes the jsonb_stats_agg/jsonb_stats_merge_agg
// calling convention over HTTP: create a group (the aggregate's
// initcond), fold rows or worker summaries into it, combine serialized
// worker partials, and finalize it into the terminal stats_agg
// summary.
type GroupHandler struct {
	groups *service.GroupService
}

// NewGroupHandler creates a new group handler.
func NewGroupHandler(groups *service.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// GroupCreatedResponse is returned by Create.
type GroupCreatedResponse struct {
	ID string `json:"id"`
}

// Create handles POST /api/groups
func (h *GroupHandler) Create(c *gin.Context) {
	id := h.groups.Create()
	c.JSON(http.StatusCreated, GroupCreatedResponse{ID: id.String()})
}

// List handles GET /api/groups
func (h *GroupHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groups": h.groups.List()})
}

// AccumulateRowsRequest is the body of POST /api/groups/:id/rows.
type AccumulateRowsRequest struct {
	Stats map[string]interface{} `json:"stats"`
}

// AccumulateRows handles POST /api/groups/:id/rows
func (h *GroupHandler) AccumulateRows(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req AccumulateRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.AccumulateRows(id, req.Stats); err != nil {
		writeGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// MergeRequest is the body of POST /api/groups/:id/merge.
type MergeRequest struct {
	Agg map[string]interface{} `json:"agg"`
}

// Merge handles POST /api/groups/:id/merge
func (h *GroupHandler) Merge(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.groups.MergeAgg(id, req.Agg); err != nil {
		writeGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CombineRequest is the body of POST /api/groups/combine: a
// base64-encoded statsagg.Serialize frame for the target group.
type CombineRequest struct {
	GroupID string `json:"group_id"`
	Partial string `json:"partial"` // base64-encoded wire frame
}

// Combine handles POST /api/groups/combine
func (h *GroupHandler) Combine(c *gin.Context) {
	var req CombineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := uuid.Parse(req.GroupID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group_id"})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Partial)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "partial must be base64"})
		return
	}

	if err := h.groups.CombinePartial(id, data); err != nil {
		writeGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Snapshot handles GET /api/groups/:id/snapshot, returning the
// group's current serialized state for a worker to pull down and
// continue combining against.
func (h *GroupHandler) Snapshot(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	data, err := h.groups.Serialize(id)
	if err != nil {
		writeGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"partial": base64.StdEncoding.EncodeToString(data)})
}

// Finalize handles POST /api/groups/:id/finalize
func (h *GroupHandler) Finalize(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	out, err := h.groups.Finalize(id)
	if err != nil {
		writeGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Delete handles DELETE /api/groups/:id
func (h *GroupHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.groups.Delete(id); err != nil {
		writeGroupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *GroupHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return uuid.UUID{}, false
	}
	return id, true
}

func writeGroupError(c *gin.Context, err error) {
	switch err {
	case service.ErrGroupNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case service.ErrGroupFinal:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	}
}

// ScalarHandler exposes the standalone stat()/stats() scalar helpers,
// for callers building a stats object outside of any group.
type ScalarHandler struct{}

// NewScalarHandler creates a new scalar handler.
func NewScalarHandler() *ScalarHandler { return &ScalarHandler{} }

// StatRequest is the body of POST /api/scalar/stat.
type StatRequest struct {
	Value interface{} `json:"value"`
}

// Stat handles POST /api/scalar/stat
func (h *ScalarHandler) Stat(c *gin.Context) {
	var req StatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hostagg.Stat(req.Value))
}

// Stats handles POST /api/scalar/stats
func (h *ScalarHandler) Stats(c *gin.Context) {
	var obj map[string]interface{}
	if err := c.ShouldBindJSON(&obj); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hostagg.Stats(obj))
}
