// Copyright 2026 The gcpiam-search Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the IAM permission search server and CLI [DBG] application.

Note: This is a BETA release. APIs and functionality may rapidly change.

gcpiam-search provides fast lookup over Google Cloud IAM permissions and
predefined roles using Patricia tries for prefix search and n-gram similarity
for typo-tolerant fuzzy search. It can operate as an HTTP API server, or as a
CLI application for testing and debugging.

The server indexes the full permission catalog (roughly 10,000 permissions and
1,700 predefined roles) in memory. Every permission carries its reverse role
mapping, so a single lookup answers "which roles grant this permission".

# Usage

Start the server with default settings:

	gcpiam

Use a custom dataset and enable debug mode:

	gcpiam -data /path/to/iam-data.json -d

Run in CLI mode for interactive testing:

	gcpiam -c -limit 10 -mode fuzzy

Run the CLI against a remote backend instead of a local index:

	gcpiam -c -remote http://localhost:8000

The dataset file is generated by the iamfetch command from the public IAM
API. A msgpack snapshot of the derived records is written next to it and
preferred on later startups, skipping JSON parsing entirely.

# Configuration

Runtime configuration is managed through a TOML file:

	[server]
	addr = ":8000"
	max_limit = 64
	max_query = 100

	[search]
	default_mode = "prefix"
	default_limit = 20
	fuzzy_threshold = 0.5
	debounce_ms = 300

	[client]
	base_url = "http://localhost:8000"
	timeout_seconds = 10

	[dataset]
	data_path = "data/iam-data.json"
	snapshot_path = "data/iam-data.snap"

The config file is automatically created with defaults if it doesn't exist.

# HTTP API

The server exposes three endpoints under /api/v1:

	GET /api/v1/search?q=compute.inst&mode=prefix&limit=20
	GET /api/v1/health
	GET /api/v1/stats

Search responses use the envelope form:

	{"success": true, "data": {"permissions": [...], "roles": [...], "query": "...", "mode": "prefix"}}

Modes are exact, prefix and fuzzy. Queries are trimmed, lower-cased and
capped at 100 characters; anything longer is rejected with a 400.

# CLI Mode

CLI mode provides an interactive interface for testing and debugging the
match engine. It reads queries from stdin and displays scored permissions and
roles. Queries run through the session manager, which normalizes input and
debounces bursts.

	inputHandler := cli.NewInputHandler(searcher, sess)
	err := inputHandler.Start()

This mode is primarily intended for development and testing new features
before deploying to server mode.

# Command Line Flags

The following flags control application behavior:

	-data string
	    Path to the iam-data.json dataset
	-snapshot string
	    Path to the msgpack snapshot
	-addr string
	    HTTP listen address (server mode)
	-d  Enable debug mode with detailed logging
	-c  Run in CLI mode instead of server mode
	-remote string
	    Backend base URL; CLI queries go over HTTP instead of the local index
	-mode string
	    Initial search mode for CLI (exact, prefix, fuzzy)
	-limit int
	    Number of results to return per list
	-config string
	    Custom config file path
	-version
	    Show current version

The application resolves the config path relative to the user config
directory, supporting both development and production deployments.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dmitri-lerko/gcpiam-search/internal/cli"
	"github.com/dmitri-lerko/gcpiam-search/internal/httpapi"
	"github.com/dmitri-lerko/gcpiam-search/internal/utils"
	"github.com/dmitri-lerko/gcpiam-search/pkg/client"
	"github.com/dmitri-lerko/gcpiam-search/pkg/config"
	"github.com/dmitri-lerko/gcpiam-search/pkg/dataset"
	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
	"github.com/dmitri-lerko/gcpiam-search/pkg/match"
	"github.com/dmitri-lerko/gcpiam-search/pkg/session"
)

const (
	Version = "0.3.0-beta"
	AppName = "gcpiam-search"
	gh      = "https://github.com/dmitri-lerko/gcpiam-search"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main calls other packages to initialize the server or CLI inputs.
// main() does not implement logic for them and only manages the flow.
func main() {
	sigHandler()

	showVersion := flag.Bool("version", false, "Show current version")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	configPath := flag.String("config", "", "Custom config file path")
	dataPath := flag.String("data", "", "Path to iam-data.json (overrides config)")
	snapshotPath := flag.String("snapshot", "", "Path to msgpack snapshot (overrides config)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	remote := flag.String("remote", "", "Backend base URL for CLI mode (queries go over HTTP)")
	mode := flag.String("mode", "", "Initial search mode for CLI (exact, prefix, fuzzy)")
	limit := flag.Int("limit", 0, "Number of results to return per list")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	appConfig, activePath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if activePath != "" {
		log.Debugf("Using config file: (%s)", activePath)
	}

	// flags override config
	if *dataPath != "" {
		appConfig.Dataset.DataPath = *dataPath
	}
	if *snapshotPath != "" {
		appConfig.Dataset.SnapshotPath = *snapshotPath
	}
	if *addr != "" {
		appConfig.Server.Addr = *addr
	}
	if *mode != "" {
		appConfig.Search.DefaultMode = *mode
	}
	if *limit > 0 {
		appConfig.Search.DefaultLimit = *limit
	}

	// CLI would be mainly used for testing and dbg purposes.
	// Any new features or changes should be tested in CLI mode first.
	if *cliMode {
		log.SetReportTimestamp(false)
		runCLI(appConfig, *remote)
		return
	}

	runServer(appConfig)
}

// runCLI wires a session manager to either the local match engine or the
// remote query client and hands control to the input loop.
func runCLI(cfg *config.Config, remote string) {
	sess := session.NewSession()
	sess.SetMode(session.Mode(cfg.Search.DefaultMode))
	sess.SetResultLimit(cfg.Search.DefaultLimit)
	sess.SetFuzzyThreshold(cfg.Search.FuzzyThreshold)
	sess.SetDebounce(time.Duration(cfg.Search.DebounceMs) * time.Millisecond)

	var searcher cli.Searcher
	if remote != "" {
		searcher = remoteSearcher(cfg, remote)
	} else {
		engine := buildEngine(cfg)
		searcher = localSearcher(engine)
	}

	inputHandler := cli.NewInputHandler(searcher, sess)
	if err := inputHandler.Start(); err != nil {
		log.Fatalf("CLI error: %v", err)
	}
}

// runServer indexes the dataset and serves the HTTP API.
func runServer(cfg *config.Config) {
	engine := buildEngine(cfg)
	srv := httpapi.NewServer(engine, httpapi.Options{
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Server.MaxLimit,
		MaxQuery:       cfg.Server.MaxQuery,
		FuzzyThreshold: cfg.Search.FuzzyThreshold,
	})

	showStartupInfo(engine, cfg.Server.Addr)

	if err := http.ListenAndServe(cfg.Server.Addr, srv.Router()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildEngine loads records (snapshot first, dataset JSON as fallback) and
// indexes them. An empty engine is returned when neither source exists, so
// the process still comes up for smoke testing.
func buildEngine(cfg *config.Config) *match.Engine {
	engine := match.NewEngine()

	perms, roles, err := loadRecords(cfg.Dataset.DataPath, cfg.Dataset.SnapshotPath)
	if err != nil {
		log.Warnf("No dataset loaded, running with empty index: %v", err)
		return engine
	}
	engine.IndexPermissions(perms)
	engine.IndexRoles(roles)
	return engine
}

// loadRecords prefers the snapshot and falls back to the JSON dataset. After
// a JSON load the snapshot is rewritten best-effort for the next startup.
func loadRecords(dataPath, snapshotPath string) ([]iam.PermissionRecord, []iam.RoleRecord, error) {
	if snapshotPath != "" && utils.FileExists(snapshotPath) {
		perms, roles, err := dataset.LoadSnapshot(snapshotPath)
		if err == nil {
			log.Debugf("Loaded %s permissions from snapshot", utils.FormatWithCommas(len(perms)))
			return perms, roles, nil
		}
		log.Warnf("Snapshot unusable, falling back to dataset JSON: %v", err)
	}

	file, err := dataset.Load(dataPath)
	if err != nil {
		return nil, nil, err
	}
	perms, roles := dataset.Build(file)

	if snapshotPath != "" {
		if err := dataset.SaveSnapshot(snapshotPath, perms, roles); err != nil {
			log.Warnf("Could not write snapshot: %v", err)
		}
	}
	return perms, roles, nil
}

// localSearcher answers queries straight from the in-process engine.
func localSearcher(engine *match.Engine) cli.Searcher {
	return func(query string, cfg session.Config) (iam.SearchResults, error) {
		switch cfg.Mode {
		case session.ModeExact:
			return engine.Exact(query), nil
		case session.ModeFuzzy:
			return engine.Fuzzy(query, cfg.FuzzyThreshold, cfg.Limit), nil
		default:
			return engine.Prefix(query, cfg.Limit), nil
		}
	}
}

// remoteSearcher answers queries over HTTP with the cancellation-aware client.
func remoteSearcher(cfg *config.Config, baseURL string) cli.Searcher {
	var cache client.ResultCache
	if cfg.Client.CacheTTLSecs > 0 {
		ttl := time.Duration(cfg.Client.CacheTTLSecs) * time.Second
		cache = client.NewTTLCache(ttl, 2*ttl)
	}
	cl := client.NewClient(client.Config{
		BaseURL: baseURL,
		Timeout: time.Duration(cfg.Client.TimeoutSeconds) * time.Second,
		Limit:   cfg.Search.DefaultLimit,
		Cache:   cache,
	})
	return func(query string, scfg session.Config) (iam.SearchResults, error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Client.TimeoutSeconds)*time.Second)
		defer cancel()
		return cl.Search(ctx, query, string(scfg.Mode))
	}
}

func printVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()

	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	styles.Values["version"] = lipgloss.NewStyle().
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})

	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})

	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[ gcpiam-search ] Really fast IAM permission and role search!")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use -h or --help to see available options")
	logger.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(engine *match.Engine, addr string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	permissions, roles := engine.Stats()

	println("===============")
	println(" gcpiam-search ")
	println("===============")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Info("init: OK")
	log.Infof("permissions: ( %s )", utils.FormatWithCommas(permissions))
	log.Infof("roles: ( %s )", utils.FormatWithCommas(roles))
	log.Infof("listening on: ( %s )", addr)
	log.Info("status: ready")
	println("===============")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
