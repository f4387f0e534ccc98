// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sneller-labs/statsagg/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for WebSocket
	},
}

// WSHandler handles the inbound worker-upload transport: a parallel
// worker dials in once per group and streams one statsagg.Serialize
// frame per partial state it wants combined.
type WSHandler struct {
	groups *service.GroupService
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(groups *service.GroupService) *WSHandler {
	return &WSHandler{groups: groups}
}

// Worker handles GET /api/groups/:id/workers/ws
func (h *WSHandler) Worker(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	mgr := h.groups.GetWSManager(id)
	if mgr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already sends an error response
		return
	}

	connID := uuid.New().String()
	mgr.Accept(connID, conn) // blocks until the worker disconnects
}
