// Command loadtest drives a running search service with a mix of word
// searches and concordance lookups and reports throughput, latency
// percentiles, status codes and how each search was answered.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -duration 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var searchQueries = []string{
	"love",
	"god is love",
	"in the beginning",
	"faith hope",
	"shepherd",
	"light of the world",
	"ove",
	"lord people",
	"grace",
	"covenant",
	"zebra",
}

var identifiers = []string{"H430", "H3068", "G2316", "G26", "G4102", "0430", "G5547"}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	rps         float64
	concordance float64
}

type sample struct {
	latency time.Duration
	status  int
	path    string
	err     error
}

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int
	paths     map[string]int
	errors    int
	total     int
}

func newStats() *stats {
	return &stats{
		latencies: make([]time.Duration, 0, 100000),
		statuses:  make(map[int]int),
		paths:     make(map[string]int),
	}
}

func (s *stats) record(r sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if r.err != nil {
		s.errors++
		return
	}
	if r.status < 200 || r.status >= 300 {
		s.errors++
	}
	s.latencies = append(s.latencies, r.latency)
	s.statuses[r.status]++
	if r.path != "" {
		s.paths[r.path]++
	}
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&opts.rps, "rps", 0, "total request rate; 0 is unpaced")
	flag.Float64Var(&opts.concordance, "concordance", 0.2, "fraction of requests that are concordance lookups")
	flag.Parse()

	fmt.Println("=== Scripture Search Load Test ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)
	fmt.Printf("Concurrency: %d\n", opts.concurrency)
	fmt.Printf("Duration:    %s\n", opts.duration)
	if opts.rps > 0 {
		fmt.Printf("Rate:        %.0f req/s\n", opts.rps)
	}
	fmt.Println()

	s, err := run(context.Background(), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	report(os.Stdout, s, opts.duration)
	if s.total == 0 {
		fmt.Println("WARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) (*stats, error) {
	s := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	var limiter *rate.Limiter
	if opts.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rps), 1)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				if limiter != nil && limiter.Wait(ctx) != nil {
					return nil
				}
				target := requestURL(opts, i)
				r := fire(ctx, client, target)
				if ctx.Err() != nil {
					return nil
				}
				s.record(r)
			}
			return nil
		})
	}
	return s, g.Wait()
}

// requestURL picks the i'th request of a worker. Every n'th request is a
// concordance lookup, where n follows from the requested fraction.
func requestURL(opts options, i int) string {
	if opts.concordance > 0 {
		every := int(math.Round(1 / opts.concordance))
		if every < 1 {
			every = 1
		}
		if i%every == 0 {
			id := identifiers[i%len(identifiers)]
			return fmt.Sprintf("%s/api/v1/concordance/%s", opts.baseURL, url.PathEscape(id))
		}
	}
	q := searchQueries[i%len(searchQueries)]
	return fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", opts.baseURL, url.QueryEscape(q))
}

func fire(ctx context.Context, client *http.Client, target string) sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return sample{err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return sample{
		latency: time.Since(start),
		status:  resp.StatusCode,
		path:    resp.Header.Get("X-Search-Path"),
	}
}

func report(w io.Writer, s *stats, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Errors:          %d\n", s.errors)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.errors)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/duration.Seconds())
	}

	if len(s.latencies) > 0 {
		sorted := make([]time.Duration, len(s.latencies))
		copy(sorted, s.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum time.Duration
		for _, l := range sorted {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", sorted[0])
		fmt.Fprintf(w, "Avg:    %s\n", sum/time.Duration(len(sorted)))
		fmt.Fprintf(w, "P50:    %s\n", percentile(sorted, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(sorted, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(sorted, 99))
		fmt.Fprintf(w, "Max:    %s\n", sorted[len(sorted)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range sortedKeys(s.statuses) {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statuses[code])
	}
	if len(s.paths) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Search Paths ===")
		for _, p := range sortedKeys(s.paths) {
			fmt.Fprintf(w, "  %s: %d\n", p, s.paths[p])
		}
	}
}

func sortedKeys[K int | string](m map[K]int) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
