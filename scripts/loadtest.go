package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Load generator for the inferflow demo service. Hammers POST /infer
// with batched JSON payloads and reports throughput and latency
// percentiles.

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Service base URL")
	concurrency := flag.Int("concurrency", 50, "Number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	batchSize := flag.Int("batch", 4, "Inputs per request")
	flag.Parse()

	log.Printf("load test starting: addr=%s, concurrency=%d, duration=%v, batch=%d",
		*addr, *concurrency, *duration, *batchSize)

	var (
		totalRequests atomic.Int64
		totalInputs   atomic.Int64
		totalErrors   atomic.Int64
		mu            sync.Mutex
		latencies     []time.Duration
	)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				inputs := make([]int, *batchSize)
				for j := range inputs {
					inputs[j] = rand.Intn(1000)
				}
				body, _ := json.Marshal(map[string]any{"inputs": inputs})

				reqStart := time.Now()
				resp, err := client.Post(*addr+"/infer", "application/json", bytes.NewReader(body))
				if err != nil {
					totalErrors.Add(1)
					continue
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					totalErrors.Add(1)
					continue
				}

				elapsed := time.Since(reqStart)
				totalRequests.Add(1)
				totalInputs.Add(int64(*batchSize))

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	mu.Lock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	mu.Unlock()

	total := totalRequests.Load()
	errCount := totalErrors.Load()

	fmt.Println("\n═══════════════════════════════════════════════════")
	fmt.Println("   LOAD TEST RESULTS")
	fmt.Println("═══════════════════════════════════════════════════")
	fmt.Printf("   Duration:      %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Concurrency:   %d\n", *concurrency)
	fmt.Printf("   Total Reqs:    %d\n", total)
	fmt.Printf("   Total Inputs:  %d\n", totalInputs.Load())
	fmt.Printf("   Errors:        %d (%.1f%%)\n", errCount,
		float64(errCount)/float64(total+errCount)*100)
	fmt.Printf("   Throughput:    %.1f req/sec, %.1f inputs/sec\n",
		float64(total)/elapsed.Seconds(),
		float64(totalInputs.Load())/elapsed.Seconds())
	if len(latencies) > 0 {
		fmt.Printf("   Latency p50:   %v\n", percentile(latencies, 50))
		fmt.Printf("   Latency p90:   %v\n", percentile(latencies, 90))
		fmt.Printf("   Latency p99:   %v\n", percentile(latencies, 99))
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
