// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mcpcored command-line
// application, the reference binary that wires every mcpcore component
// (security pipeline, bridge, workflow engine, DLQ, delivery queue,
// telemetry) together over a single pluggable transport: a cobra root
// command, a "serve" subcommand carrying the runtime flags, and
// viper-bound configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tool-mesh/mcpcore/internal/democatalog"
	"github.com/tool-mesh/mcpcore/pkg/bridge"
	"github.com/tool-mesh/mcpcore/pkg/config"
	"github.com/tool-mesh/mcpcore/pkg/dlq"
	"github.com/tool-mesh/mcpcore/pkg/logger"
	"github.com/tool-mesh/mcpcore/pkg/queue"
	"github.com/tool-mesh/mcpcore/pkg/registry"
	"github.com/tool-mesh/mcpcore/pkg/security"
	"github.com/tool-mesh/mcpcore/pkg/security/audit"
	"github.com/tool-mesh/mcpcore/pkg/security/auth"
	"github.com/tool-mesh/mcpcore/pkg/security/authz"
	"github.com/tool-mesh/mcpcore/pkg/security/ipacl"
	"github.com/tool-mesh/mcpcore/pkg/security/ratelimit"
	"github.com/tool-mesh/mcpcore/pkg/security/tokens"
	"github.com/tool-mesh/mcpcore/pkg/server"
	"github.com/tool-mesh/mcpcore/pkg/session"
	"github.com/tool-mesh/mcpcore/pkg/telemetry"
	"github.com/tool-mesh/mcpcore/pkg/transport"
	"github.com/tool-mesh/mcpcore/pkg/transport/httpsse"
	"github.com/tool-mesh/mcpcore/pkg/transport/stdio"
	"github.com/tool-mesh/mcpcore/pkg/transport/ws"
	"github.com/tool-mesh/mcpcore/pkg/workflow"
)

// version is injected at build time via -ldflags; "dev" otherwise.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:               "mcpcored",
	DisableAutoGenTag: true,
	Short:             "mcpcore MCP server daemon",
	Long: `mcpcored runs the Model Context Protocol server core: protocol framing,
per-session lifecycle, the layered security pipeline, the workflow
composition engine, and the dead-letter/delivery queues, all exposed over
a pluggable transport (stdio, WebSocket, or HTTP/SSE).`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(*cobra.Command, []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates the mcpcored root command.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			logger.Infof("mcpcored version: %s", version)
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mcpcore server",
		Long: `Start the mcpcore server over the selected transport. The bundled demo
catalog (internal/democatalog) is wired in by default; embedders link
pkg/server directly against their own catalog.ToolCatalog instead of
running this binary.`,
		RunE: runServe,
	}
	cmd.Flags().String("transport", "stdio", "Transport to serve on: stdio, ws, or httpsse")
	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address for ws/httpsse transports")
	cmd.Flags().String("secret", "", "HMAC secret for session tokens (defaults to security.token_salt)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	transportKind, _ := cmd.Flags().GetString("transport")
	addr, _ := cmd.Flags().GetString("addr")
	secretFlag, _ := cmd.Flags().GetString("secret")
	secret := secretFlag
	if secret == "" {
		secret = cfg.Security.TokenSalt
	}
	if secret == "" {
		secret = "mcpcored-dev-secret"
	}

	cat := democatalog.New()

	authn := newAuthenticator(cfg, secret)
	ipList := ipacl.New(ipacl.Config{AllowByDefault: cfg.IPACL.AllowByDefault})
	limiter := ratelimit.New(
		ratelimit.BucketConfig{MaxTokens: cfg.RateLimit.Global.MaxTokens, RefillRate: cfg.RateLimit.Global.RefillRate, Burst: cfg.RateLimit.Global.Burst},
		ratelimit.BucketConfig{MaxTokens: cfg.RateLimit.Global.MaxTokens, RefillRate: cfg.RateLimit.Global.RefillRate, Burst: cfg.RateLimit.Global.Burst},
		cfg.RateLimit.Client.Priority,
		cfg.OperationCost,
	)
	authorizer := authz.New()
	auditLogger := audit.NewLogger(logSink{})
	failures := audit.NewFailureWindow(5 * time.Minute)

	pipeline := &security.Pipeline{
		Authn:                  authn,
		IPACL:                  ipList,
		RateLim:                limiter,
		Authz:                  authorizer,
		AuditLog:               auditLogger,
		Failures:               failures,
		MaxFailuresBeforeBlock: cfg.IPACL.MaxFailuresBeforeBlock,
		BlockDuration:          cfg.BlockDuration(),
	}

	br := bridge.New(cat)
	templates := workflow.NewTemplateStore()
	if err := registerDemoTemplates(templates); err != nil {
		return fmt.Errorf("registering workflow templates: %w", err)
	}
	compiler := workflow.NewCompiler(func(_ context.Context, toolName string) bool {
		_, err := cat.GetTool(context.Background(), toolName)
		return err == nil
	}, templates)
	engine := workflow.NewEngine(workflow.CatalogRunner(cat, ""), workflow.DefaultMaxFanOut)

	tokensMgr := tokens.NewManager(authn, tokens.NewMemoryStore(), cfg.TokenTTL(), cfg.RefreshWindow(), cfg.Session.MaxSessionsPerUser)
	authn.SetRevocationChecker(tokensMgr)
	clients := registry.NewClients()
	metrics := telemetry.NewMetrics()

	t, cleanup, err := newTransport(transportKind, addr)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.New(server.Config{
		Info:        server.ServerInfo{Name: "mcpcored", Version: version},
		MaxSessions:    cfg.Session.MaxSessions,
		MaxRequestSize: cfg.Security.RequestMaxSizeBytes,
		SessionConfig: session.Config{
			MaxConcurrentRequests: cfg.Session.MaxConcurrentRequests,
			RequestTimeout:        cfg.RequestTimeout(),
		},
	}, t, pipeline, br, compiler, engine, tokensMgr, clients, metrics)

	dlqQueue := dlq.New(defaultRouter, cfg.DLQ.MaxRetries, cfg.DLQBaseDelay(), cfg.DLQMaxDelay(), time.Duration(cfg.DLQ.RetentionDays)*24*time.Hour)
	go dlqQueue.RunScheduler(ctx, 5*time.Second)
	go dlqQueue.RunRetentionSweep(ctx, time.Hour)

	deliveryQueue := queue.New(dlqQueue, cfg.Delivery.MaxAttempts, cfg.DeliveryBaseDelay(), cfg.DeliveryMaxDelay())
	go deliveryQueue.RunScheduler(ctx, t, time.Second)

	logger.Infof("mcpcored: serving on %s transport", transportKind)
	runErr := srv.Run(ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.ShutdownGracePeriod+time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

// registerDemoTemplates seeds the workflow template registry with the
// templates the demo catalog's tools can serve, so workflows/templates has
// something to list out of the box. Embedders register their own templates
// against their own catalog instead.
func registerDemoTemplates(store *workflow.TemplateStore) error {
	return store.Register("echo-chain", map[string]any{
		"type": "sequential",
		"steps": []any{
			map[string]any{"tool": "echo", "params": map[string]any{"text": "{{text}}"}},
			map[string]any{"tool": "note_append", "params": map[string]any{"name": "{{note}}", "text": "{{text}}"}},
		},
	})
}

// defaultRouter is the DLQ's downstream dispatch target. mcpcored has no
// external signal router of its own, so a retried DLQ entry always fails
// again and surfaces as permanently failed for manual action once its
// retries are exhausted.
func defaultRouter(context.Context, any) error {
	return fmt.Errorf("mcpcored: no downstream signal router configured")
}

// allGrantedCapabilities is the capability set mcpcored hands every
// authenticated identity, since it has no IdentityProvider of its own;
// embedders wire
// capabilitiesForUser to their own identity store instead.
var allGrantedCapabilities = []string{"*"}

// newAuthenticator builds the authentication layer over an HMAC secret
// derived from the --secret flag or security.token_salt.
func newAuthenticator(cfg *config.Config, secret string) *auth.Authenticator {
	return auth.New([]byte(secret), cfg.TokenTTL(), func(string) []string {
		return allGrantedCapabilities
	})
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newTransport(kind, addr string) (transport.Port, func(), error) {
	switch kind {
	case "stdio":
		return stdio.New(os.Stdin, os.Stdout), func() {}, nil
	case "ws":
		t := ws.New()
		mux := http.NewServeMux()
		mux.Handle("/ws", t)
		httpSrv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("mcpcored: ws listener stopped: %v", err)
			}
		}()
		return t, func() { _ = httpSrv.Close() }, nil
	case "httpsse":
		t := httpsse.New()
		httpSrv := &http.Server{Addr: addr, Handler: t.Router()}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("mcpcored: httpsse listener stopped: %v", err)
			}
		}()
		return t, func() { _ = httpSrv.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want stdio, ws, or httpsse)", kind)
	}
}

