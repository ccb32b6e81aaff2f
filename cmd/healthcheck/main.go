// Command healthcheck probes the local server's liveness endpoint.
// Container images use it as their HEALTHCHECK binary so the runtime
// does not need curl.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/chaintara/shopchat-linebot-go/internal/timeouts"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	client := &http.Client{Timeout: timeouts.Healthcheck}
	url := fmt.Sprintf("http://localhost:%s/healthz", port)

	resp, err := client.Get(url)
	if err != nil {
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
