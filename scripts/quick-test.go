//go:build ignore

// quick-test.go - Smoke test against a running ingestor
//
// Usage:
//   TOKEN=$(go run ./cmd/ingestctl token ops --admin --tier free)
//   go run scripts/quick-test.go -url http://localhost:8080 -source curiosity -token "$TOKEN"

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	baseURL = flag.String("url", "http://localhost:8080", "Ingestor base URL")
	source  = flag.String("source", "curiosity", "Source to trigger")
	token   = flag.String("token", os.Getenv("TOKEN"), "Admin bearer token")
	probe   = flag.Int("probe", 70, "Requests to send when probing the rate limit")
)

func main() {
	flag.Parse()
	if *token == "" {
		fmt.Println("token required (-token or TOKEN)")
		os.Exit(2)
	}

	fmt.Println("=== Trigger incremental run ===")
	status, body := call(http.MethodPost, fmt.Sprintf("/scraper/%s/incremental?lookback=2", *source))
	fmt.Printf("%d %s\n", status, body)

	fmt.Println("=== Second run must add nothing ===")
	status, body = call(http.MethodPost, fmt.Sprintf("/scraper/%s/incremental?lookback=2", *source))
	var out struct {
		RecordsAdded int `json:"recordsAdded"`
	}
	_ = json.Unmarshal(body, &out)
	if status == http.StatusOK && out.RecordsAdded != 0 {
		fmt.Printf("✗ expected 0 new records, got %d\n", out.RecordsAdded)
	} else {
		fmt.Printf("✓ %d %s\n", status, body)
	}

	fmt.Println("=== Cursor ===")
	status, body = call(http.MethodGet, fmt.Sprintf("/scraper/%s/status", *source))
	fmt.Printf("%d %s\n", status, body)

	fmt.Println("=== Rate limit probe ===")
	for i := 1; i <= *probe; i++ {
		req, _ := http.NewRequest(http.MethodGet, *baseURL+"/api/v1/records?limit=1", nil)
		req.Header.Set("Authorization", "Bearer "+*token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("request %d failed: %v\n", i, err)
			return
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			fmt.Printf("✓ request %d rejected (remaining-hour=%s, retry-after=%s)\n",
				i, resp.Header.Get("X-RateLimit-Remaining-Hour"), resp.Header.Get("Retry-After"))
			return
		}
	}
	fmt.Printf("no rejection after %d requests\n", *probe)
}

func call(method, path string) (int, []byte) {
	req, _ := http.NewRequest(method, *baseURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+*token)
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("%s %s failed: %v\n", method, path, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}
