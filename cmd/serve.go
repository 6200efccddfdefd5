package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dayuer/botlink-go/internal/config"
	"github.com/dayuer/botlink-go/internal/conn"
	"github.com/dayuer/botlink-go/internal/frame"
	"github.com/dayuer/botlink-go/internal/presence"
	"github.com/dayuer/botlink-go/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the accepting server (adapters connect here)",
	RunE:  runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	rt := buildRouter(cfg, nil)
	defer presence.Close()

	// Log inbound traffic; a real bot core registers its own handlers here.
	rt.OnMessage(func(key frame.RoutingKey, env frame.Envelope) {
		log.Printf("[Serve] 📨 %s: %d content part(s) (id=%s)", key, len(env.Content), env.MessageID)
	})
	rt.OnCustomMessage(func(key frame.RoutingKey, payload map[string]any) {
		log.Printf("[Serve] 📡 %s: custom %v", key, payload)
	})
	rt.OnConnectionState(func(key frame.RoutingKey, st conn.State) {
		log.Printf("[Serve] ⚡ %s → %s", key, st)
	})

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Tokens:          cfg.Server.Tokens,
		Router:          rt,
		QueueSize:       cfg.Transport.QueueSize,
		MaxForwardDepth: cfg.Transport.MaxForwardDepth,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		rt.Stop()
		srv.Stop()
		cancel()
	}()

	return srv.Start(ctx)
}
