// Copyright (c) 2026 TRV Enterprises LLC
// Licensed under the Business Source License 1.1
// See LICENSE file for details.

// Package main is the entry point for the statsaggd reference host: an
// HTTP/WebSocket/MQTT/Unix-socket coordinator that implements the
// jsonb_stats_agg/jsonb_stats_merge_agg calling convention outside of
// a real database engine.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sneller-labs/statsagg/internal/apikey"
	"github.com/sneller-labs/statsagg/internal/config"
	"github.com/sneller-labs/statsagg/internal/handlers"
	"github.com/sneller-labs/statsagg/internal/middleware"
	"github.com/sneller-labs/statsagg/internal/service"
	"github.com/sneller-labs/statsagg/internal/unixsock"
	"github.com/sneller-labs/statsagg/pkg/hostagg"
	"github.com/sneller-labs/statsagg/pkg/statsagg"
)

const defaultConfigPath = "config.json"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServer(os.Args[2:])
	case "key":
		if len(os.Args) < 3 {
			printKeyUsage()
			os.Exit(1)
		}
		runKeyCommand(os.Args[2:])
	case "calc":
		runCalcCommand(os.Args[2:])
	case "status":
		runStatusCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("statsaggd v0.1.0")
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`statsaggd - JSON statistics aggregate reference host

Usage:
  statsaggd <command> [arguments]

Commands:
  serve     Start the API server
  key       Manage the admin API key
  calc      Fold stats rows from a file/stdin and print the finalized summary
  status    Show status of the running server
  help      Show this help message
  version   Show version

Use "statsaggd <command> -h" for more information about a command.`)
}

func printServeUsage() {
	fmt.Println(`statsaggd serve - Start the API server

Usage:
  statsaggd serve [options]

Options:
  --no-socket     Disable Unix socket listener
  --socket <path> Override Unix socket path

Environment Variables:
  STATSAGGD_ADMIN_KEY          Admin key (required, "statsagg_<...>" format; see "statsaggd key regenerate")
  STATSAGGD_HOST                Server host (default: 0.0.0.0)
  STATSAGGD_PORT                Server port (default: 21080)
  STATSAGGD_MODE                Server mode: debug or release (default: release)
  STATSAGGD_SOCKET_PATH         Unix socket path
  STATSAGGD_STRICT              "1"/"true" to reject non-object stats input
  STATSAGGD_MQTT_BROKER         MQTT broker URL (default: tcp://localhost:1883)
  STATSAGGD_MQTT_TOPIC_PREFIX   MQTT topic prefix (default: statsagg)
  STATSAGGD_WEBHOOK_URL         Webhook URL for combine/merge failure alerts
  STATSAGGD_TLS_CERT            Path to TLS certificate file
  STATSAGGD_TLS_KEY             Path to TLS private key file`)
}

func loadConfig() *config.Config {
	configPath := defaultConfigPath
	if envPath := os.Getenv("STATSAGGD_CONFIG"); envPath != "" {
		configPath = envPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.LoadFromEnv()
	return cfg
}

func runServer(args []string) {
	noSocket := false
	socketPathOverride := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-h", "--help":
			printServeUsage()
			return
		case "--no-socket":
			noSocket = true
		case "--socket":
			if i+1 < len(args) {
				i++
				socketPathOverride = args[i]
			}
		}
	}

	cfg := loadConfig()

	if noSocket {
		cfg.Server.SocketPath = ""
	} else if socketPathOverride != "" {
		cfg.Server.SocketPath = socketPathOverride
	}

	if cfg.Server.AdminKey == "" {
		log.Fatal("Admin key required: set STATSAGGD_ADMIN_KEY environment variable or admin_key in config")
	}
	if !apikey.ValidateKeyFormat(cfg.Server.AdminKey) {
		log.Fatalf("Admin key must start with %q and be at least %d characters (e.g. generate one with 'statsaggd key regenerate')", apikey.KeyPrefix, len(apikey.KeyPrefix)+36)
	}

	if (cfg.Server.TLS.CertFile != "") != (cfg.Server.TLS.KeyFile != "") {
		log.Fatal("TLS requires both cert and key: set both STATSAGGD_TLS_CERT and STATSAGGD_TLS_KEY")
	}
	if cfg.TLSEnabled() {
		if _, err := os.Stat(cfg.Server.TLS.CertFile); os.IsNotExist(err) {
			log.Fatalf("TLS certificate file not found: %s", cfg.Server.TLS.CertFile)
		}
		if _, err := os.Stat(cfg.Server.TLS.KeyFile); os.IsNotExist(err) {
			log.Fatalf("TLS key file not found: %s", cfg.Server.TLS.KeyFile)
		}
	}

	keyDir := filepath.Dir(defaultConfigPath)
	if keyDir == "." {
		keyDir = "./data"
	}
	keyManager := apikey.NewManager(filepath.Join(keyDir, apikey.KeyFileName))
	if err := keyManager.Seed(cfg.Server.AdminKey, "Seeded from STATSAGGD_ADMIN_KEY"); err != nil {
		log.Fatalf("Failed to seed admin key: %v", err)
	}
	groups := service.NewGroupService(cfg)
	defer groups.Close()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	groupHandler := handlers.NewGroupHandler(groups)
	scalarHandler := handlers.NewScalarHandler()
	wsHandler := handlers.NewWSHandler(groups)

	api := router.Group("/api")
	api.Use(middleware.Auth(keyManager))
	{
		groupsRoute := api.Group("/groups")
		{
			groupsRoute.POST("", groupHandler.Create)
			groupsRoute.GET("", groupHandler.List)
			groupsRoute.POST("/combine", groupHandler.Combine)
			groupsRoute.POST("/:id/rows", groupHandler.AccumulateRows)
			groupsRoute.POST("/:id/merge", groupHandler.Merge)
			groupsRoute.POST("/:id/finalize", groupHandler.Finalize)
			groupsRoute.GET("/:id/snapshot", groupHandler.Snapshot)
			groupsRoute.GET("/:id/workers/ws", wsHandler.Worker)
			groupsRoute.DELETE("/:id", groupHandler.Delete)
		}

		scalar := api.Group("/scalar")
		{
			scalar.POST("/stat", scalarHandler.Stat)
			scalar.POST("/stats", scalarHandler.Stats)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if cfg.TLSEnabled() {
			log.Printf("Starting statsaggd on %s (HTTPS)", addr)
			if err := srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server error: %v", err)
			}
		} else {
			log.Printf("Starting statsaggd on %s (HTTP)", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server error: %v", err)
			}
		}
	}()

	var sockListener *unixsock.Listener
	if cfg.Server.SocketPath != "" {
		sockListener = unixsock.NewListener(cfg.Server.SocketPath, groups, keyManager)
		if err := sockListener.Start(); err != nil {
			log.Printf("Warning: Unix socket listener failed to start: %v", err)
			sockListener = nil
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if sockListener != nil {
		if err := sockListener.Stop(); err != nil {
			log.Printf("Error stopping Unix socket listener: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	groups.CloseAll()
	log.Println("Server stopped")
}

func printKeyUsage() {
	fmt.Println(`statsaggd key - Manage the admin API key

Usage:
  statsaggd key <subcommand> [arguments]

Subcommands:
  regenerate          Regenerate the admin key (revokes all existing keys)
  list                List admin key entries (shows IDs, not keys)
  revoke <key-id>     Revoke a specific key by ID

Examples:
  statsaggd key regenerate
  statsaggd key list
  statsaggd key revoke a1b2c3d4`)
}

func keyManagerPath() string {
	keyDir := filepath.Dir(defaultConfigPath)
	if keyDir == "." {
		keyDir = "./data"
	}
	return filepath.Join(keyDir, apikey.KeyFileName)
}

func runKeyCommand(args []string) {
	keyManager := apikey.NewManager(keyManagerPath())

	switch args[0] {
	case "regenerate":
		newKey, entry, err := keyManager.Regenerate("Regenerated via CLI")
		if err != nil {
			log.Fatalf("Failed to regenerate key: %v", err)
		}
		fmt.Println("=== NEW ADMIN API KEY ===")
		fmt.Printf("Key ID:  %s\n", entry.ID)
		fmt.Printf("API Key: %s\n", newKey)
		fmt.Println()
		fmt.Println("WARNING: This key is shown only once. Save it securely!")
		fmt.Println("All previous keys have been revoked.")

	case "list":
		keys, err := keyManager.List()
		if err != nil {
			log.Fatalf("Failed to list keys: %v", err)
		}
		if len(keys) == 0 {
			fmt.Println("No admin API keys found")
			return
		}
		fmt.Println("ID        Created                    Note")
		fmt.Println("--------  -------------------------  ----")
		for _, k := range keys {
			fmt.Printf("%-8s  %-25s  %s\n", k.ID, k.CreatedAt.Format("2006-01-02 15:04:05 MST"), k.Note)
		}

	case "revoke":
		if len(args) < 2 {
			fmt.Println("Error: key ID required")
			printKeyUsage()
			os.Exit(1)
		}
		if err := keyManager.Revoke(args[1]); err != nil {
			log.Fatalf("Failed to revoke key: %v", err)
		}
		fmt.Printf("Key '%s' revoked\n", args[1])

	default:
		fmt.Printf("Unknown key subcommand: %s\n", args[0])
		printKeyUsage()
		os.Exit(1)
	}
}

func printCalcUsage() {
	fmt.Println(`statsaggd calc - Fold stats rows and print the finalized summary

Usage:
  statsaggd calc [file]

Reads newline-delimited stats objects (the same shape the jsonb_stats_agg
sfunc accepts) from the given file, or stdin if no file is given, folds
them into one carry-state, and prints the finalized stats_agg summary.

Examples:
  statsaggd calc rows.jsonl
  cat rows.jsonl | statsaggd calc`)
}

func runCalcCommand(args []string) {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		printCalcUsage()
		return
	}

	var f *os.File
	if len(args) > 0 {
		var err error
		f, err = os.Open(args[0])
		if err != nil {
			log.Fatalf("Failed to open %s: %v", args[0], err)
		}
		defer f.Close()
	} else {
		f = os.Stdin
	}

	var state *statsagg.StatsState
	rowNum := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rowNum++

		var row map[string]interface{}
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			log.Fatalf("Invalid JSON on line %d: %v", rowNum, err)
		}

		var err error
		state, err = hostagg.SFunc(state, row, false)
		if err != nil {
			log.Fatalf("Failed to fold line %d: %v", rowNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed reading input: %v", err)
	}

	result := hostagg.FinalFunc(state)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal result: %v", err)
	}
	fmt.Println(string(out))
}

func printStatusUsage() {
	fmt.Println(`statsaggd status - Show status of the running server

Usage:
  statsaggd status [options]

Options:
  --json   Output in JSON format`)
}

func runStatusCommand(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "-h", "--help":
			printStatusUsage()
			return
		case "--json":
			jsonOutput = true
		}
	}

	cfg := loadConfig()
	scheme := "http"
	if cfg.TLSEnabled() {
		scheme = "https"
	}
	host := cfg.Server.Host
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	baseURL := fmt.Sprintf("%s://%s:%d", scheme, host, cfg.Server.Port)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		fmt.Printf("Server: not running (%s)\n", baseURL)
		os.Exit(1)
	}
	resp.Body.Close()

	if jsonOutput {
		fmt.Printf(`{"server_running": true, "server_url": %q}`+"\n", baseURL)
		return
	}
	fmt.Printf("Server: %s (running)\n", baseURL)
}
