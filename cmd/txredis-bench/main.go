// Command txredis-bench is a tiny throughput smoke test: it opens a
// pool against a single endpoint, fires N SET/GET round trips, and
// prints elapsed time. It exists to exercise the package end to end,
// not as a serious benchmarking tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	redis "github.com/l00pss/txredis"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "redis endpoint")
	poolSize := flag.Int("pool", 4, "connections in the pool")
	n := flag.Int("n", 10000, "number of SET/GET round trips")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := redis.NewOptions(*addr)
	opts.PoolSize = *poolSize

	h, err := redis.New(ctx, opts)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer h.Disconnect()

	start := time.Now()
	for i := 0; i < *n; i++ {
		key := fmt.Sprintf("bench:%d", i)
		if _, err := h.Set(ctx, key, i); err != nil {
			log.Fatalf("SET: %v", err)
		}
		if _, err := h.Get(ctx, key); err != nil {
			log.Fatalf("GET: %v", err)
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("%s\n%d round trips in %v (%.0f ops/sec)\n", h, *n, elapsed, float64(*n*2)/elapsed.Seconds())
}
