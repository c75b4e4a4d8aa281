package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/pidfile"
	"github.com/codefionn/castcheck/internal/pipeline"
	"github.com/codefionn/castcheck/internal/web"
)

var (
	serveAddr        string
	serveWatchConfig bool
	servePidFile     string
)

// serveCmd runs the analysis HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis HTTP API",
	Long:  "Start an HTTP server that streams analyses over server-sent events and broadcasts progress to websocket clients.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}

		if servePidFile != "" {
			pf, err := pidfile.Acquire(servePidFile)
			if err != nil {
				return err
			}
			defer func() {
				if err := pf.Release(); err != nil {
					logger.Warn("%v", err)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := config.NewStore(configFile, cfg)
		if serveWatchConfig {
			if err := store.Watch(ctx, func(c *config.Config) {
				logger.Info("new requests use the reloaded config (%d models)", len(c.Models))
			}); err != nil {
				return err
			}
		}

		server := web.NewServer(store, pipeline.NewRuntimeFactory().Create, debugMode)
		return server.Serve(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to server.addr)")
	serveCmd.Flags().StringVar(&servePidFile, "pid-file", "", "Write the server PID here and refuse to start if another server owns it")
	serveCmd.Flags().BoolVar(&serveWatchConfig, "watch-config", false, "Reload the config file when it changes")
}
