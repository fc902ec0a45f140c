// medsage is the interactive terminal client for the on-device triage
// service: download the model, describe symptoms, read the assessment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/medsage-ai/medsage/internal/config"
	"github.com/medsage-ai/medsage/internal/service"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults apply if absent)")
	simulated := flag.Bool("simulated", false, "Run in deterministic offline simulation mode")
	query := flag.String("query", "", "Run one assessment headlessly and print JSON")
	imagePath := flag.String("image", "", "Optional image path for the headless assessment")
	flag.Parse()

	// The TUI owns stdout; logs go to a file under the data dir.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "medsage: %v\n", err)
		os.Exit(1)
	}
	if *simulated {
		cfg.Simulated = true
	}

	log := newLogger(cfg)

	svc, err := service.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "medsage: %v\n", err)
		os.Exit(1)
	}
	defer svc.Cleanup()

	if *query != "" {
		if err := runHeadless(svc, *query, *imagePath); err != nil {
			fmt.Fprintf(os.Stderr, "medsage: %v\n", err)
			os.Exit(1)
		}
		return
	}

	p := tea.NewProgram(newModel(svc), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "medsage: %v\n", err)
		os.Exit(1)
	}
}

// runHeadless drives the full pipeline once and prints the analysis as
// indented JSON, for scripting and smoke checks.
func runHeadless(svc *service.Service, query, imagePath string) error {
	ctx := context.Background()

	if err := svc.DownloadModel(ctx); err != nil {
		return err
	}
	if err := svc.InitializeModel(ctx); err != nil {
		return err
	}

	analysis, err := svc.InferSymptoms(ctx, query, imagePath)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0755); err != nil {
		return zerolog.Nop()
	}
	f, err := os.OpenFile(cfg.Paths.DataDir+"/medsage.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop()
	}
	return zerolog.New(f).With().Timestamp().Logger()
}
