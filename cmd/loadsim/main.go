// Command loadsim runs a synthetic workload against the cache and a
// connection pool, printing periodic performance reports and exposing
// optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/schedwatch/resourcemgr/cache"
	"github.com/schedwatch/resourcemgr/metrics/prom"
	"github.com/schedwatch/resourcemgr/perf"
	"github.com/schedwatch/resourcemgr/pool"
	"github.com/schedwatch/resourcemgr/tracker"
)

type simConn struct{ id uint64 }

func main() {
	// ---- Flags ----
	var (
		shards = flag.Int("shards", 0, "number of cache shards (0=auto)")
		ttl    = flag.Duration("ttl", time.Minute, "default cache TTL")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "simulation duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys  = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		poolMin  = flag.Int("pool_min", 4, "pool minimum size")
		poolMax  = flag.Int("pool_max", 16, "pool maximum size")
		poolWork = flag.Duration("pool_work", time.Millisecond, "simulated work per pool acquisition")

		reportEvery = flag.Duration("report", 5*time.Second, "interval between printed reports")
		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build the resource layer ----
	c := cache.New[string, string](cache.Options[string, string]{
		Shards:     *shards,
		DefaultTTL: *ttl,
		Metrics:    prom.NewCache(nil, "resourcemgr", "loadsim", nil),
	})
	defer func() { _ = c.Close() }()

	trk := tracker.New(nil)
	var nextConn atomic.Uint64
	p, err := pool.New(pool.Options[*simConn]{
		Name:   "sim",
		Config: pool.Config{MinSize: *poolMin, MaxSize: *poolMax},
		Factory: func(ctx context.Context) (*simConn, error) {
			return &simConn{id: nextConn.Add(1)}, nil
		},
		Close:   func(*simConn) error { return nil },
		Tracker: trk,
		Metrics: prom.NewPool(nil, "resourcemgr", "sim_pool", nil),
	})
	if err != nil {
		log.Fatalf("pool: %v", err)
	}

	mgr := pool.NewManager(trk, zerolog.Nop())
	if err := mgr.Register(p); err != nil {
		log.Fatalf("register: %v", err)
	}
	agg := perf.New(c, mgr, trk, perf.Options{})

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workDur := *poolWork
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, poolOps, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// Periodic consolidated reports while the workload runs.
	go func() {
		t := time.NewTicker(*reportEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				printReport(agg.Report(context.Background()))
			}
		}
	}()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)
			owner := pool.WithOwner(context.Background(), "worker-"+strconv.Itoa(id))

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				switch {
				case int(localR.Int31n(100)) < readPctVal:
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				case localR.Int31n(10) == 0:
					// Occasionally exercise the pool under the same load.
					atomic.AddUint64(&poolOps, 1)
					actx, acancel := context.WithTimeout(owner, time.Second)
					_ = p.With(actx, func(conn *simConn) error {
						time.Sleep(workDur)
						return nil
					})
					acancel()
				default:
					atomic.AddUint64(&writes, 1)
					k := keyByZipf()
					c.Set(k, "v"+strconv.Itoa(localR.Int()))
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Final report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("shards=%d workers=%d keys=%d dur=%v seed=%d\n",
		*shards, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  pool_ops=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, atomic.LoadUint64(&poolOps))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%  Len()=%d\n", hitsN, missesN, hitRate, c.Len())

	printReport(agg.Report(context.Background()))
	if err := mgr.ShutdownAll(5 * time.Second); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func printReport(rep perf.Report) {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Printf("report: %v", err)
		return
	}
	fmt.Println(string(b))
}
