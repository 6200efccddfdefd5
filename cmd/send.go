package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayuer/botlink-go/internal/config"
	"github.com/dayuer/botlink-go/internal/content"
	"github.com/dayuer/botlink-go/internal/frame"
	"github.com/dayuer/botlink-go/internal/presence"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a one-shot reply to a target and exit",
	RunE:  runSend,
}

var (
	sendAPIKey   string
	sendPlatform string
	sendText     string
	sendImage    string
)

func init() {
	sendCmd.Flags().StringVar(&sendAPIKey, "api-key", "", "Target api_key")
	sendCmd.Flags().StringVar(&sendPlatform, "platform", "", "Target platform")
	sendCmd.Flags().StringVar(&sendText, "text", "", "Text content")
	sendCmd.Flags().StringVar(&sendImage, "image", "", "Path to an image to attach")
	sendCmd.MarkFlagRequired("api-key")
	sendCmd.MarkFlagRequired("platform")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	if sendText == "" && sendImage == "" {
		return fmt.Errorf("nothing to send: provide --text and/or --image")
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	targets, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		return fmt.Errorf("loading targets: %w", err)
	}

	rt := buildRouter(cfg, targets)
	defer presence.Close()
	defer rt.Stop()

	var parts []content.ReplyContent
	if sendText != "" {
		text, err := content.NewText(sendText)
		if err != nil {
			return err
		}
		parts = append(parts, text)
	}
	if sendImage != "" {
		data, err := os.ReadFile(sendImage)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		img, err := content.NewImage(data)
		if err != nil {
			return err
		}
		parts = append(parts, img)
	}

	set, err := content.NewReplySet(parts...)
	if err != nil {
		return err
	}

	key := frame.RoutingKey{APIKey: sendAPIKey, Platform: sendPlatform}
	if err := rt.Send(key, set); err != nil {
		return fmt.Errorf("send to %s: %w", key, err)
	}

	// Give the send loop a moment to flush before Stop closes the socket.
	if c := rt.Registry().Get(key); c != nil {
		c.Drain(time.Duration(cfg.Transport.DrainTimeout) * time.Second)
	}
	fmt.Printf("✓ Sent %d part(s) to %s\n", len(set), key)
	return nil
}
