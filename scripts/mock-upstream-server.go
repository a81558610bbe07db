//go:build ignore

// mock-upstream-server.go - Fake raw images feed for local testing
//
// Usage:
//   go run scripts/mock-upstream-server.go -latest 120 -per-sol 3 -fail-rate 0.1
//
// Point a source's base_url at http://localhost:8089/api/v1/raw_image_items/.
// Every sol publishes per-sol full frames plus one thumbnail. fail-rate makes
// a share of requests answer 503 to exercise retries and the circuit breaker.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

var (
	port     = flag.Int("port", 8089, "Listen port")
	latest   = flag.Int("latest", 100, "Latest published sol")
	perSol   = flag.Int("per-sol", 3, "Full frames per sol")
	failRate = flag.Float64("fail-rate", 0, "Share of requests answered with 503")
	landing  = flag.String("landing", "2012-08-06", "Landing date used for date_taken_utc")
)

var cameras = []string{"FHAZ_LEFT_B", "NAV_RIGHT_B", "MAST_LEFT", "CHEMCAM_RMI"}

func main() {
	flag.Parse()

	http.HandleFunc("/api/v1/raw_image_items/", handleFeed)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock upstream feed starting on http://localhost%s (latest sol %d)", addr, *latest)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func handleFeed(w http.ResponseWriter, r *http.Request) {
	if *failRate > 0 && rand.Float64() < *failRate {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	if q.Get("latest") == "true" {
		writeJSON(w, map[string]any{"images": []any{}, "total_results": 0, "latest_sol": *latest})
		return
	}

	sol, err := strconv.Atoi(q.Get("sol"))
	if err != nil || sol < 0 {
		http.Error(w, "sol required", http.StatusBadRequest)
		return
	}
	num, _ := strconv.Atoi(q.Get("num"))
	if num <= 0 {
		num = 100
	}
	page, _ := strconv.Atoi(q.Get("page"))

	var all []map[string]any
	if sol <= *latest {
		all = itemsForSol(sol)
	}

	start := page * num
	end := min(start+num, len(all))
	var images []map[string]any
	if start < len(all) {
		images = all[start:end]
	}
	log.Printf("sol=%d page=%d num=%d -> %d items", sol, page, num, len(images))
	writeJSON(w, map[string]any{"images": images, "total_results": len(all), "latest_sol": *latest})
}

func itemsForSol(sol int) []map[string]any {
	base, _ := time.Parse("2006-01-02", *landing)
	taken := base.Add(time.Duration(float64(sol) * 1.0274912517 * float64(24*time.Hour)))

	items := make([]map[string]any, 0, *perSol+1)
	for i := 0; i < *perSol; i++ {
		cam := cameras[(sol+i)%len(cameras)]
		id := fmt.Sprintf("%s_%05d_%03d", cam, sol, i)
		items = append(items, map[string]any{
			"imageid":        id,
			"sol":            sol,
			"sample_type":    "Full",
			"camera":         map[string]any{"instrument": cam},
			"image_files":    map[string]any{"full_res": "https://mars.example.test/" + id + ".JPG"},
			"date_taken_utc": taken.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"site":           sol / 10,
			"drive":          i * 12,
			"extended": map[string]any{
				"mastAz": fmt.Sprintf("%.2f", float64(i)*12.5),
				"mastEl": "-10.5",
				"sclk":   fmt.Sprintf("%d.0", 400000000+sol*88775),
				"xyz":    "(1.0,2.0,3.0)",
			},
		})
	}
	items = append(items, map[string]any{
		"imageid":     fmt.Sprintf("THUMB_%05d", sol),
		"sol":         sol,
		"sample_type": "Thumbnail",
		"camera":      map[string]any{"instrument": cameras[0]},
	})
	return items
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
