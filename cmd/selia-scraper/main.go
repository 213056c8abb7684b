// Selia-scraper is an MCP tool server exposing scrape_page and
// extract_links, backed by a headless browser.
//
// By default it serves MCP over SSE on port 7860. With --stdio it
// speaks MCP on stdin/stdout instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfadhlan/selia/internal/logger"
	"github.com/mfadhlan/selia/pkg/scraper"
)

func main() {
	var (
		port       = flag.Int("port", 7860, "SSE listen port")
		stdio      = flag.Bool("stdio", false, "serve MCP over stdio instead of SSE")
		controlURL = flag.String("control-url", "", "attach to an existing browser CDP endpoint")
		logLevel   = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log, err := logger.New(logger.Config{Level: *logLevel, Console: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	sc, err := scraper.NewScraper(scraper.ScraperConfig{
		ControlURL: *controlURL,
		Logger:     log.GetZerolog(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to start browser")
		os.Exit(1)
	}
	defer sc.Close()

	server, err := scraper.NewServer(scraper.ServerConfig{
		Scraper: sc,
		Logger:  log.GetZerolog(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create scrape server")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *stdio {
		if err := server.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Stdio server failed")
			os.Exit(1)
		}
		return
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Msg("Scrape tool server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
}
