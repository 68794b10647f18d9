// ============================================================================
// Beaver-Chat CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides the command line interface based on the Cobra framework
//
// Command Structure:
//   beaver-chat                    # Root command
//   ├── serve                      # Start the chat server
//   │   ├── --host                 # Bind address
//   │   ├── --port                 # Chat port
//   │   ├── --threads              # Worker pool size
//   │   ├── --static               # Static file directory
//   │   ├── --metrics-port         # Enable /metrics on this port
//   │   └── --health-port          # Enable gRPC health on this port
//   ├── config                     # Print effective configuration
//   ├── --config, -c               # Config file (default: configs/default.yaml)
//   └── --version
//
// Configuration Precedence:
//   flags set on the command line > YAML file > built-in defaults
//   A missing file at the default path is fine; a missing file named with
//   --config is an error.
//
// serve Command:
//   1. Load config and set the log level
//   2. Load static files (login.html, chat.html, 404.html required)
//   3. Start the metrics HTTP server and gRPC health server if enabled
//   4. Run the chat accept loop until SIGINT/SIGTERM
//   5. Drain the worker pool and shut the side servers down
//
//   Examples:
//     ./beaver-chat serve
//     ./beaver-chat serve -c custom.yaml --port 8080 --threads 8
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ChuLiYu/beaver-chat/internal/metrics"
	"github.com/ChuLiYu/beaver-chat/internal/server"
	"github.com/ChuLiYu/beaver-chat/internal/static"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/default.yaml"

// Config represents the complete configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Server struct {
		Host      string `yaml:"host"`
		Port      int    `yaml:"port"`
		Threads   int    `yaml:"threads"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"server"`

	Chat struct {
		MessageRate  float64 `yaml:"message_rate"` // per sender per second, 0 disables
		MessageBurst int     `yaml:"message_burst"`
	} `yaml:"chat"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Health struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"health"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 7878
	cfg.Server.Threads = 4
	cfg.Server.StaticDir = "./static"
	cfg.Chat.MessageBurst = 5
	cfg.Metrics.Port = 9090
	cfg.Health.Port = 50051
	cfg.Log.Level = "info"
	return cfg
}

// Validate checks ranges that would otherwise fail late at bind time
func (c *Config) Validate() error {
	if c.Server.Threads < 1 {
		return fmt.Errorf("server.threads must be at least 1, got %d", c.Server.Threads)
	}
	for name, port := range map[string]int{
		"server.port":  c.Server.Port,
		"metrics.port": c.Metrics.Port,
		"health.port":  c.Health.Port,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	if c.Chat.MessageRate < 0 {
		return fmt.Errorf("chat.message_rate must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "beaver-chat",
		Short: "Beaver-Chat: a minimal concurrent chat web server",
		Long: `Beaver-Chat is a small chat room served over hand-parsed HTTP/1.1 with:
- A fixed-size worker pool, one job per connection
- Online/offline user tracking and a timestamped message log
- Optional Prometheus metrics and gRPC health endpoints`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildConfigCommand())

	return rootCmd
}

type serveFlags struct {
	host        string
	port        int
	threads     int
	staticDir   string
	metricsPort int
	healthPort  int
}

func buildServeCommand() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Long:  "Bind the chat listener and serve requests until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, configExplicit(cmd))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyServeFlags(cmd, cfg, flags)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "0.0.0.0", "Address to bind")
	cmd.Flags().IntVar(&flags.port, "port", 7878, "Port to listen on")
	cmd.Flags().IntVar(&flags.threads, "threads", 4, "Number of worker goroutines")
	cmd.Flags().StringVar(&flags.staticDir, "static", "./static", "Directory of static files")
	cmd.Flags().IntVar(&flags.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (0 keeps config)")
	cmd.Flags().IntVar(&flags.healthPort, "health-port", 0, "Serve gRPC health on this port (0 keeps config)")

	return cmd
}

// applyServeFlags copies explicitly set flags over cfg
func applyServeFlags(cmd *cobra.Command, cfg *Config, flags serveFlags) {
	set := cmd.Flags().Changed
	if set("host") {
		cfg.Server.Host = flags.host
	}
	if set("port") {
		cfg.Server.Port = flags.port
	}
	if set("threads") {
		cfg.Server.Threads = flags.threads
	}
	if set("static") {
		cfg.Server.StaticDir = flags.staticDir
	}
	if set("metrics-port") && flags.metricsPort > 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = flags.metricsPort
	}
	if set("health-port") && flags.healthPort > 0 {
		cfg.Health.Enabled = true
		cfg.Health.Port = flags.healthPort
	}
}

func runServe(ctx context.Context, cfg *Config) error {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetLogLoggerLevel(level)

	files, err := static.Load(cfg.Server.StaticDir, static.RequiredPages...)
	if err != nil {
		return fmt.Errorf("failed to load static files: %w", err)
	}
	log.Printf("Loaded %d static files from %s\n", files.Len(), cfg.Server.StaticDir)

	var opts []server.Option

	// Start Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, server.WithCollector(metrics.NewCollector(reg)))

		metricsSrv := metrics.NewServer(hostPort(cfg.Server.Host, cfg.Metrics.Port), reg)
		go func() {
			log.Printf("Starting metrics server on %s\n", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	// Start gRPC health
	if cfg.Health.Enabled {
		lis, err := net.Listen("tcp", hostPort(cfg.Server.Host, cfg.Health.Port))
		if err != nil {
			return fmt.Errorf("failed to listen on health port %d: %w", cfg.Health.Port, err)
		}
		health := server.NewHealthServer()
		opts = append(opts, server.WithHealth(health))

		go func() {
			if err := health.Serve(lis); err != nil {
				log.Printf("Health server error: %v\n", err)
			}
		}()
		defer health.Stop()
	}

	srv, err := server.New(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Threads:      cfg.Server.Threads,
		MessageRate:  cfg.Chat.MessageRate,
		MessageBurst: cfg.Chat.MessageBurst,
	}, files, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}

	log.Println("Server stopped. Goodbye!")
	return nil
}

func buildConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Load the config file over the built-in defaults and print the result as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, configExplicit(cmd))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func configExplicit(cmd *cobra.Command) bool {
	return cmd.Root().PersistentFlags().Changed("config")
}

// loadConfig reads path over DefaultConfig. A missing file is only an error
// when the path was given explicitly.
func loadConfig(path string, explicit bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
