// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

// Package middleware contains HTTP middleware for the reference host's API
// server.
package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sneller-labs/statsagg/internal/apikey"
)

// KeyEntryKey is the context key for the authenticated key entry.
const KeyEntryKey = "key_entry"

// Auth creates authentication middleware that validates the admin API key
// on every group-management request.
func Auth(keyManager *apikey.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKeyValue := c.GetHeader("X-API-Key")
		if apiKeyValue == "" {
			apiKeyValue = c.Query("api_key")
		}

		if apiKeyValue == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			c.Abort()
			return
		}

		if !apikey.ValidateKeyFormat(apiKeyValue) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key format"})
			c.Abort()
			return
		}

		keyEntry, err := keyManager.Validate(apiKeyValue)
		if err != nil {
			if err == apikey.ErrInvalidKey {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			}
			c.Abort()
			return
		}

		c.Set(KeyEntryKey, keyEntry)
		c.Next()
	}
}

// GetKeyEntry retrieves the authenticated key entry from context.
func GetKeyEntry(c *gin.Context) *apikey.KeyEntry {
	if v, ok := c.Get(KeyEntryKey); ok {
		return v.(*apikey.KeyEntry)
	}
	return nil
}

// CORS creates CORS middleware.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestLogger creates request logging middleware.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/health") {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			log.Printf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, status)
		}
	}
}
