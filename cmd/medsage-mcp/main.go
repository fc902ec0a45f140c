// medsage-mcp exposes the triage service as an MCP server over stdio
// or streamable HTTP.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/medsage-ai/medsage/internal/config"
	"github.com/medsage-ai/medsage/internal/mcpserver"
	"github.com/medsage-ai/medsage/internal/service"
)

func main() {
	transport := flag.String("transport", "stdio", "Transport mode: stdio or http")
	port := flag.String("port", "8081", "HTTP port (only used with --transport http)")
	configPath := flag.String("config", "", "Path to config file (defaults apply if absent)")
	simulated := flag.Bool("simulated", false, "Run in deterministic offline simulation mode")
	flag.Parse()

	// Stdio transport owns stdout; logs go to stderr.
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *simulated {
		cfg.Simulated = true
	}

	svc, err := service.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct service")
	}
	defer svc.Cleanup()

	srv := mcpserver.New(svc)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *transport {
	case "stdio":
		log.Info().Msg("medsage MCP server starting (stdio)")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	case "http":
		addr := ":" + *port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		log.Info().Str("addr", addr).Msg("medsage MCP server listening")
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Fatal().Err(err).Msg("http server error")
		}
	default:
		log.Fatal().Str("transport", *transport).Msg("unknown transport (use stdio or http)")
	}
}
