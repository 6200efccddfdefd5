package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayuer/botlink-go/internal/config"
	"github.com/dayuer/botlink-go/internal/conn"
	"github.com/dayuer/botlink-go/internal/content"
	"github.com/dayuer/botlink-go/internal/frame"
	"github.com/dayuer/botlink-go/internal/presence"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Dial every target in targets.yaml and relay inbound traffic to the log",
	RunE:  runConnect,
}

var connectEcho bool

func init() {
	connectCmd.Flags().BoolVar(&connectEcho, "echo", false, "Echo inbound text back to the sender")
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	targets, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		return fmt.Errorf("loading targets: %w", err)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets configured (set targetsFile in config)")
	}

	rt := buildRouter(cfg, targets)
	defer presence.Close()

	rt.OnMessage(func(key frame.RoutingKey, env frame.Envelope) {
		log.Printf("[Connect] 📨 %s: %d content part(s) (id=%s)", key, len(env.Content), env.MessageID)
		if !connectEcho {
			return
		}
		for _, c := range env.Content {
			if c.Type != content.TypeText {
				continue
			}
			text, err := content.NewText("echo: " + c.Text)
			if err != nil {
				continue
			}
			set, err := content.NewReplySet(text)
			if err != nil {
				continue
			}
			if err := rt.Send(key, set); err != nil {
				log.Printf("[Connect] ⚠️ Echo to %s failed: %v", key, err)
			}
		}
	})
	rt.OnConnectionState(func(key frame.RoutingKey, st conn.State) {
		log.Printf("[Connect] ⚡ %s → %s", key, st)
	})

	// Establish every configured target up front.
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Transport.ConnectTimeout)*time.Second)
	for _, t := range targets {
		if _, err := rt.Registry().Resolve(ctx, t.Key()); err != nil {
			log.Printf("[Connect] ⚠️ %s: %v", t.Key(), err)
		}
	}
	cancel()

	if rt.Registry().Len() == 0 {
		return fmt.Errorf("no target reachable")
	}
	fmt.Printf("✓ Connected to %d/%d target(s)\n", rt.Registry().Len(), len(targets))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")
	rt.Stop()
	return nil
}
