// dispatchcore host
//
// Standalone multi-transport dispatch host: HTTP/WebSocket, TCP, and AMQP
// listeners sharing one DI container and Routing Dispatcher.
//
// Usage:
//
//	go run ./cmd/host                         # HTTP on :8080, no TCP/AMQP
//	go run ./cmd/host -http :8080 -tcp :9090  # both listeners
//	go build -o dispatchcore-host ./cmd/host && ./dispatchcore-host -config host.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dispatchcore/dispatchcore/core/host"
	"github.com/dispatchcore/dispatchcore/core/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON host options file")
	httpAddr := flag.String("http", ":8080", "HTTP listener address")
	tcpAddr := flag.String("tcp", "", "TCP listener address (empty disables it)")
	flag.Parse()

	log := logging.New(slog.LevelInfo)
	log.Info("dispatchcore_host_starting", "version", "1.0.0")

	raw, err := loadOptions(*configPath, *httpAddr, *tcpAddr)
	if err != nil {
		log.Error("failed_to_load_options", "error", err)
		os.Exit(1)
	}

	h, err := host.New(raw, log)
	if err != nil {
		log.Error("failed_to_build_host", "error", err)
		os.Exit(1)
	}
	log.Info("host_created")

	registerApplication(h)

	if err := h.ConfigureRouter(); err != nil {
		log.Error("failed_to_configure_router", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := h.Start(ctx); err != nil {
		log.Error("failed_to_start_host", "error", err)
		cancel()
		os.Exit(1)
	}
	log.Info("dispatchcore_host_ready")
	fmt.Println("dispatchcore host running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown_signal_received", "signal", sig.String())

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := h.Stop(stopCtx); err != nil {
		log.Error("graceful_shutdown_error", "error", err)
	}
	log.Info("dispatchcore_host_stopped")
}

// registerApplication is the seam where embedding code registers its own
// handlers and DI services against h.Container / h.Dispatcher before
// Start is called. Left empty: this binary hosts no built-in routes of
// its own, matching the teacher's own kernel binary, which wires no
// domain handlers directly into cmd/main.go either.
func registerApplication(h *host.Host) {
	_ = h
}

// loadOptions builds the raw host options map (spec §6.6) from an
// optional JSON config file, overlaying the -http/-tcp flags when set.
func loadOptions(configPath, httpAddr, tcpAddr string) (map[string]any, error) {
	raw := map[string]any{}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if httpAddr != "" {
		raw["http"] = httpAddr
	}
	if tcpAddr != "" {
		raw["tcp"] = tcpAddr
	}
	return raw, nil
}
