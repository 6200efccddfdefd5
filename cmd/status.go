package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayuer/botlink-go/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show botlink status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath := config.GetConfigPath()
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("🔗 botlink Status")
	fmt.Println()
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	if cfg.TargetsFile != "" {
		targets, err := config.LoadTargets(cfg.TargetsFile)
		if err != nil {
			fmt.Printf("Targets: error (%v)\n", err)
		} else {
			fmt.Printf("Targets: %d configured\n", len(targets))
		}
	}
	if cfg.Redis.URL != "" {
		fmt.Println("Presence: configured")
	}

	// Probe a locally running server.
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		fmt.Println("\nLocal server: not running")
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("\nLocal server: %s\n", string(body))
	return nil
}
