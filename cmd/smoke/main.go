// Command smoke posts the reference requests to a running intentions server
// and checks the responses.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"
)

func main() {
	var (
		url           = flag.String("url", "http://localhost:8123/task/intentions", "intentions endpoint")
		expectInvalid = flag.Int("expect-invalid", http.StatusInternalServerError, "status expected for invalid requests")
		timeout       = flag.Duration("timeout", 2*time.Minute, "per-request timeout")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	client := &http.Client{Timeout: *timeout}
	failed := 0
	for _, p := range probes(*expectInvalid) {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		err := p.run(ctx, client, *url)
		cancel()
		if err != nil {
			slog.Error("Probe failed", "probe", p.name, "error", err)
			failed++
			continue
		}
		slog.Info("Probe passed", "probe", p.name)
	}

	if failed > 0 {
		slog.Error("Smoke test failed", "failed", failed)
		os.Exit(1)
	}
	slog.Info("Smoke test passed")
}
