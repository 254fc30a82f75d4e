package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voxelsync.gg/internal/persistence/eventlog"
	"voxelsync.gg/internal/persistence/indexdb"
	"voxelsync.gg/internal/protocol"
	"voxelsync.gg/internal/sim/chunk"
	"voxelsync.gg/internal/sim/replication"
	"voxelsync.gg/internal/transport/ws"
	"voxelsync.gg/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides tuning)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		seed       = flag.Uint64("seed", 0, "world seed (overrides tuning when non-zero)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *addr != "" {
		tune.ListenAddr = *addr
	}
	if *seed != 0 {
		tune.WorldSeed = *seed
	}

	ctx, cancel := signalContext()
	defer cancel()

	events := eventlog.NewLogger(tune.EventLogDir)
	defer events.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.Open(tune.IndexDBPath)
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
	}

	rec := &recorder{log: logger, el: events, idx: idx}

	srv := ws.NewServer(ws.ServerConfig{MaxClients: tune.MaxClients}, logger)
	defer srv.Close()

	engine := replication.NewEngine(srv, int64(tune.WorldSeed), logger, rec)
	engine.SetLimits(replication.Limits{
		ChatWindowTicks:    tune.RateLimits.ChatWindowTicks,
		ChatMax:            tune.RateLimits.ChatMax,
		CommandWindowTicks: tune.RateLimits.CommandWindowTicks,
		CommandMax:         tune.RateLimits.CommandMax,
	})

	chunks := chunk.NewManager(chunk.Config{
		ViewDistance: tune.ViewDistance,
		MaxQueuedGen: tune.MaxQueuedGen,
		Generator:    chunk.HashGen{Seed: int64(tune.WorldSeed)},
	})

	go runTicks(ctx, tune, srv, engine, chunks, rec, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP voxelsync_players Connected players.\n")
		fmt.Fprintf(rw, "# TYPE voxelsync_players gauge\n")
		fmt.Fprintf(rw, "voxelsync_players %d\n", engine.Players())

		fmt.Fprintf(rw, "# HELP voxelsync_resident_chunks Resident chunk count.\n")
		fmt.Fprintf(rw, "# TYPE voxelsync_resident_chunks gauge\n")
		fmt.Fprintf(rw, "voxelsync_resident_chunks %d\n", chunks.Resident())

		fmt.Fprintf(rw, "# HELP voxelsync_queued_gen Chunks queued for generation.\n")
		fmt.Fprintf(rw, "# TYPE voxelsync_queued_gen gauge\n")
		fmt.Fprintf(rw, "voxelsync_queued_gen %d\n", chunks.QueuedGen())

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP voxelsync_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE voxelsync_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "voxelsync_index_queue_depth %d\n", st.QueueDepth)

			fmt.Fprintf(rw, "# HELP voxelsync_index_dropped_total Index writes dropped under pressure.\n")
			fmt.Fprintf(rw, "# TYPE voxelsync_index_dropped_total counter\n")
			fmt.Fprintf(rw, "voxelsync_index_dropped_total %d\n",
				st.DropSessionTotal+st.DropChatTotal+st.DropTickTotal)
		}
	})

	if envBool("VS_ENABLE_ADMIN_HTTP", true) {
		mux.HandleFunc("/admin/v1/scores", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusServiceUnavailable)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel2()
			rows, err := idx.TopScores(ctx2, 20)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "scores": rows})
		})
	} else {
		logger.Printf("admin endpoints disabled (VS_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", srv.Handler())

	httpSrv := &http.Server{
		Addr:              tune.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s seed=%d tick=%dhz", tune.ListenAddr, tune.WorldSeed, tune.TickRateHz)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// runTicks is the authoritative fixed-step loop. Everything that mutates
// game state happens here, single-threaded.
func runTicks(ctx context.Context, tune tuning.Tuning, srv *ws.Server, engine *replication.Engine, chunks *chunk.Manager, rec *recorder, logger *log.Logger) {
	step := time.Second / time.Duration(tune.TickRateHz)
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tick++
		rec.setTick(tick)
		engine.Tick()
		chunks.Tick(streamCenter(srv, engine))

		for _, ev := range chunks.TakeReady() {
			_ = ev // world gameplay hooks consume ready chunks
		}

		// One load sample per second.
		if tick%uint64(tune.TickRateHz) == 0 {
			rec.tickStats(engine.Players(), chunks.Resident(), chunks.QueuedGen())
		}
	}
}

// streamCenter picks the point the world streams around: the lowest
// (oldest) connected client, or the origin when the server is empty.
func streamCenter(srv *ws.Server, engine *replication.Engine) protocol.Vec3 {
	for _, id := range srv.Clients() {
		eid, ok := engine.Entity(id)
		if !ok {
			continue
		}
		if t, ok := engine.Transform(eid); ok {
			return t.Translation
		}
	}
	return protocol.Vec3{}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
