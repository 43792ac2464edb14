package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Fires concurrent completion calls at one requisition and checks that exactly one
// movement batch was posted for it.

var (
	totalRequests  int64
	completedCalls int64
	alreadyPosted  int64
	failedRequests int64
)

type requisition struct {
	ID    string `json:"id"`
	Items []struct {
		ID string `json:"id"`
	} `json:"items"`
}

type completion struct {
	Outcome string `json:"outcome"`
}

type movementList struct {
	Count int `json:"count"`
}

func printSystemStats(prefix string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Printf("%s💾 client heap: %.2f MB, goroutines: %d\n", prefix, float64(m.Alloc)/1024/1024, runtime.NumGoroutine())
}

func postJSON(client *http.Client, method, url string, body interface{}, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "completion-bomb")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080/api/v1", "API base url")
	workers := flag.Int("workers", 200, "concurrent completion calls")
	lines := flag.Int("lines", 5, "items on the requisition")
	flag.Parse()

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 1000,
			MaxIdleConns:        2000,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	items := make([]map[string]interface{}, 0, *lines)
	for i := 0; i < *lines; i++ {
		items = append(items, map[string]interface{}{
			"item":       fmt.Sprintf("Bomb ingredient %d", i),
			"quantity":   float64(i + 1),
			"unit":       "kg",
			"unit_price": 2.5,
			"supplier":   "Bomb Supplier",
		})
	}
	var req requisition
	status, err := postJSON(client, http.MethodPost, *baseURL+"/requisitions", map[string]interface{}{
		"date":  time.Now().Format("2006-01-02"),
		"base":  "BOMB",
		"items": items,
	}, &req)
	if err != nil || status != http.StatusCreated {
		fmt.Printf("❌ could not create requisition: status=%d err=%v\n", status, err)
		os.Exit(1)
	}

	actuals := make(map[string]float64, len(req.Items))
	for i, item := range req.Items {
		actuals[item.ID] = float64(i + 1)
	}
	body := map[string]interface{}{
		"actual_quantities": actuals,
		"completed_by":      "completion-bomb",
	}

	fmt.Println("🚀 concurrent completion test")
	fmt.Println("📍 requisition:", req.ID)
	fmt.Printf("🎯 workers: %d, lines: %d\n", *workers, len(req.Items))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	printSystemStats("")

	start := time.Now()
	ready := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			atomic.AddInt64(&totalRequests, 1)
			var result completion
			status, err := postJSON(client, http.MethodPut, *baseURL+"/requisitions/"+req.ID+"/complete", body, &result)
			switch {
			case err != nil || status != http.StatusOK:
				atomic.AddInt64(&failedRequests, 1)
			case result.Outcome == "already_posted":
				atomic.AddInt64(&alreadyPosted, 1)
			case result.Outcome == "completed":
				atomic.AddInt64(&completedCalls, 1)
			default:
				atomic.AddInt64(&failedRequests, 1)
			}
		}()
	}
	close(ready)
	wg.Wait()
	duration := time.Since(start)

	var movements movementList
	status, err = postJSON(client, http.MethodGet,
		*baseURL+"/inventory/movements?source_type=Requisition&source_id="+req.ID, nil, &movements)
	if err != nil || status != http.StatusOK {
		fmt.Printf("❌ could not read movements: status=%d err=%v\n", status, err)
		os.Exit(1)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("⏱️  duration: %v\n", duration)
	fmt.Printf("📈 requests: %d\n", atomic.LoadInt64(&totalRequests))
	fmt.Printf("✅ completed: %d\n", atomic.LoadInt64(&completedCalls))
	fmt.Printf("🔁 already posted: %d\n", atomic.LoadInt64(&alreadyPosted))
	fmt.Printf("❌ failed: %d\n", atomic.LoadInt64(&failedRequests))
	fmt.Printf("📦 movements posted: %d (expected %d)\n", movements.Count, len(req.Items))
	printSystemStats("")

	if atomic.LoadInt64(&completedCalls) != 1 || movements.Count != len(req.Items) {
		fmt.Println("🚨 ledger posted more or less than once")
		os.Exit(2)
	}
	fmt.Println("🎉 exactly one movement batch posted")
}
