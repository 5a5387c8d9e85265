package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"postfetch/internal/classify"
	"postfetch/internal/extract"
	"postfetch/internal/media"
	"postfetch/internal/provider"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies [platform]",
	Short: "Show the extraction order and timeouts for each platform",
	Args:  cobra.MaximumNArgs(1),
	RunE:  strategiesRun,
}

func strategiesRun(cmd *cobra.Command, args []string) error {
	platforms := media.Platforms
	if len(args) == 1 {
		p, err := media.ParsePlatform(args[0])
		if err != nil {
			return err
		}
		platforms = []media.Platform{p}
	}

	// Describing the order never launches a browser.
	registry := provider.NewDefault(cfg, extract.NewSessions(cfg.Browser.MaxSessions), logger)

	for _, p := range platforms {
		fmt.Printf("%s\n", p.DisplayName())
		fmt.Printf("  order: %s\n", registry.Describe(p))
		for _, pattern := range classify.Patterns(p) {
			fmt.Printf("  link:  %s\n", pattern)
		}
	}
	if cfg.API.RapidAPIKey == "" {
		fmt.Println("\nNo API key configured: api strategies are skipped.")
	}
	return nil
}
