// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/markb/chatlite/internal/auth"
	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/observability"
	"github.com/markb/chatlite/internal/relay"
	"github.com/markb/chatlite/internal/server"
	"github.com/markb/chatlite/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatlite relay server",
	Long:  `Starts the WebSocket relay with presence, channels and matchmaking.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")

		jwtSecret := os.Getenv("CHATLITE_JWT_SECRET")
		if jwtSecret == "" {
			jwtSecret = "super-secret-jwt-key-please-change-in-production"
			fmt.Println("Warning: Using default JWT secret. Set CHATLITE_JWT_SECRET in production.")
		}

		if err := log.Init(buildLogConfig(cmd)); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		defer log.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tel, cleanup, err := observability.Init(ctx, buildTelemetryConfig(cmd))
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer cleanup()

		st, err := buildStore(ctx, cmd)
		if err != nil {
			return err
		}
		defer st.Close(context.Background())

		relayCfg := relay.DefaultConfig()
		if maxLen, _ := cmd.Flags().GetInt("max-message-len"); maxLen > 0 {
			relayCfg.MaxMessageLen = maxLen
		}

		svc := relay.NewService(st, auth.NewVerifier(jwtSecret), relayCfg, tel.Metrics())
		srv := server.New(svc, tel)

		addr := fmt.Sprintf("%s:%d", host, port)
		errCh := make(chan error, 1)

		if domain, _ := cmd.Flags().GetString("https-domain"); domain != "" {
			certDir, _ := cmd.Flags().GetString("cert-dir")
			fmt.Printf("Starting chatlite with HTTPS for %s\n", domain)
			fmt.Printf("  WebSocket: wss://%s/realtime/v1/websocket\n", domain)
			go func() {
				errCh <- srv.ListenAndServeTLS(server.HTTPSConfig{
					Domain:   domain,
					CertDir:  certDir,
					HTTPAddr: addr,
				})
			}()
		} else {
			fmt.Printf("Starting chatlite on %s\n", addr)
			fmt.Printf("  WebSocket: ws://%s/realtime/v1/websocket\n", addr)
			fmt.Printf("  Stats:     http://%s/stats\n", addr)
			go func() {
				errCh <- srv.ListenAndServe(addr)
			}()
		}

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// buildStore opens the configured persistence backend.
// Priority: CLI flags > environment variables > defaults
func buildStore(ctx context.Context, cmd *cobra.Command) (store.Store, error) {
	backend, _ := cmd.Flags().GetString("store")
	switch backend {
	case "memory":
		fmt.Println("Warning: memory store selected, nothing will survive a restart.")
		return store.NewMemory(), nil
	case "mongo":
		cfg := store.DefaultMongoConfig()
		if uri := os.Getenv("CHATLITE_MONGO_URI"); uri != "" {
			cfg.URI = uri
		}
		if uri, _ := cmd.Flags().GetString("mongo-uri"); uri != "" {
			cfg.URI = uri
		}
		if db, _ := cmd.Flags().GetString("mongo-db"); db != "" {
			cfg.Database = db
		}
		st, err := store.NewMongo(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (want mongo or memory)", backend)
	}
}

// buildLogConfig creates a log.Config from CLI flags.
func buildLogConfig(cmd *cobra.Command) *log.Config {
	cfg := log.DefaultConfig()
	if mode, _ := cmd.Flags().GetString("log-mode"); mode != "" {
		cfg.Mode = mode
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Format = format
	}
	if path, _ := cmd.Flags().GetString("log-file"); path != "" {
		cfg.FilePath = path
	}
	if path, _ := cmd.Flags().GetString("log-db"); path != "" {
		cfg.DBPath = path
	}
	return cfg
}

// buildTelemetryConfig creates an observability.Config from CLI flags.
func buildTelemetryConfig(cmd *cobra.Command) *observability.Config {
	cfg := observability.NewConfig()
	if exporter, _ := cmd.Flags().GetString("otel-exporter"); exporter != "" {
		cfg.Exporter = exporter
	}
	if endpoint, _ := cmd.Flags().GetString("otel-endpoint"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	metrics, _ := cmd.Flags().GetBool("metrics")
	traces, _ := cmd.Flags().GetBool("traces")
	cfg.MetricsEnabled = metrics
	cfg.TracesEnabled = traces
	return cfg
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().IntP("port", "p", 4000, "Port to listen on")
	serveCmd.Flags().String("store", "mongo", "Persistence backend: mongo or memory")
	serveCmd.Flags().String("mongo-uri", "", "MongoDB connection URI")
	serveCmd.Flags().String("mongo-db", "", "MongoDB database name")
	serveCmd.Flags().Int("max-message-len", 0, "Maximum chat message length in characters")
	serveCmd.Flags().String("log-mode", "", "Log mode: console, file, or database")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().String("log-format", "", "Log format: text or json")
	serveCmd.Flags().String("log-file", "", "Log file path (file mode)")
	serveCmd.Flags().String("log-db", "", "Log database path (database mode)")
	serveCmd.Flags().String("otel-exporter", "", "OpenTelemetry exporter: stdout, otlp, or none")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP collector endpoint")
	serveCmd.Flags().Bool("metrics", true, "Enable metrics collection")
	serveCmd.Flags().Bool("traces", true, "Enable trace collection")
	serveCmd.Flags().String("https-domain", "", "Domain for automatic HTTPS via Let's Encrypt")
	serveCmd.Flags().String("cert-dir", "./certs", "Directory to cache TLS certificates")
}
