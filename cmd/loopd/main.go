// Command loopd is a small demo server built on loopcore: it runs a looper
// on its main goroutine dispatching a periodic heartbeat, exposes an HTTP
// endpoint that publishes pubsub intents (optionally debounced or
// throttled), optionally opens a durable spool and logs how many pending
// entries it holds (it does not spool or re-run any work itself), and
// optionally streams published intents over WebSocket.
//
// Usage:
//
//	loopd [--config path/to/config.yaml]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arjunshah/loopcore/config"
	"github.com/arjunshah/loopcore/debounce"
	"github.com/arjunshah/loopcore/handler"
	"github.com/arjunshah/loopcore/looper"
	"github.com/arjunshah/loopcore/message"
	"github.com/arjunshah/loopcore/metrics"
	"github.com/arjunshah/loopcore/msgqueue"
	"github.com/arjunshah/loopcore/persist"
	"github.com/arjunshah/loopcore/pubsub"
	"github.com/arjunshah/loopcore/throttle"
	"github.com/arjunshah/loopcore/workerthread"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "loopd: %v\n", err)
		os.Exit(1)
	}
}

const (
	whatHeartbeat int32 = iota + 1
	whatPublishRequest
)

// publishHandler dispatches heartbeat ticks and publish requests delivered
// through the main looper.
type publishHandler struct {
	reg *pubsub.Registry
	met *metrics.Registry
}

func (h *publishHandler) HandleMessage(msg *message.Message) {
	switch msg.What {
	case whatHeartbeat:
		h.met.Dispatched.Inc("main")
		slog.Debug("loopd: heartbeat")
	case whatPublishRequest:
		in, _ := msg.Obj.(pubsub.Intent)
		h.reg.Publish(in)
		h.met.Dispatched.Inc("main")
	}
}

type publishRequest struct {
	Action string         `json:"action"`
	What   int32          `json:"what"`
	Extras map[string]any `json:"extras"`
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	metricsReg := &metrics.Registry{}

	var store *persist.Store
	if cfg.Persist.Enabled {
		store, err = persist.Open(cfg.Persist.Path)
		if err != nil {
			return fmt.Errorf("open persist store: %w", err)
		}
		defer store.Close()

		pending, err := store.Replay()
		if err != nil {
			return fmt.Errorf("replay persist store: %w", err)
		}
		slog.Info("loopd: replayed pending spool entries", "count", len(pending))
	}

	reg := pubsub.New()
	defer reg.Close()

	mainLooper, err := looper.Prepare()
	if err != nil {
		return fmt.Errorf("prepare main looper: %w", err)
	}
	mainLooper.SetPanicHook(func(msg *message.Message, r any) {
		metricsReg.Panics.Inc("main")
	})
	h, err := handler.New(&publishHandler{reg: reg, met: metricsReg}, mainLooper)
	if err != nil {
		return fmt.Errorf("bind main handler: %w", err)
	}

	// Demo debounce/throttle wrappers around publish requests arriving over
	// HTTP, so a burst of identical requests collapses the way the config's
	// debounce/throttle defaults intend. The debouncer gets its own delivery
	// thread, separate from the main looper, so it never blocks on main-looper
	// backlog.
	debounceWorker := workerthread.New("debounce-demo")
	debounceWorker.Start()
	defer func() {
		debounceWorker.Finish()
		debounceWorker.Join()
	}()

	debouncer := debounce.New(debounceWorker, func(req publishRequest) {
		postPublish(h, metricsReg, req)
	}, time.Duration(cfg.Debounce.DefaultDelayMs)*time.Millisecond)

	throttler := throttle.New(func(req publishRequest) {
		metricsReg.Throttled.Inc("http")
		postPublish(h, metricsReg, req)
	}, time.Duration(cfg.Throttle.DefaultIntervalMs)*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/publish", publishEndpoint(h, metricsReg, debouncer, throttler))
	if cfg.PubSub.WebSocket.Enabled {
		mux.Handle("/ws", &pubsub.WebSocketBridge{Registry: reg})
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("loopd ready", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		} else {
			serveErr <- nil
		}
	}()

	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		go func() {
			slog.Info("metrics server listening", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, metricsReg.Handler()); err != nil {
				slog.Warn("metrics server error", "err", err)
			}
		}()
	}

	// The main looper's Loop must run on this goroutine (thread affinity),
	// so the heartbeat ticker posts to it from a dedicated goroutine instead.
	stopHeartbeat := make(chan struct{})
	go heartbeatLoop(h, stopHeartbeat)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	stopErr := make(chan error, 1)
	go func() {
		var err error
		select {
		case sig := <-quit:
			slog.Info("shutting down", "signal", sig)
		case err = <-serveErr:
		}
		close(stopHeartbeat)
		mainLooper.Quit(msgqueue.Graceful)
		stopErr <- err
	}()

	if err := mainLooper.Loop(); err != nil {
		return fmt.Errorf("main looper: %w", err)
	}
	if err := <-stopErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	slog.Info("loopd stopped")
	return nil
}

func heartbeatLoop(h *handler.Handler, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.SendMessage(h.ObtainMessage(whatHeartbeat, 0, 0, nil))
		}
	}
}

func postPublish(h *handler.Handler, met *metrics.Registry, req publishRequest) {
	met.Enqueued.Inc("main")
	h.SendMessage(h.ObtainMessage(whatPublishRequest, req.What, 0, pubsub.Intent{
		Action: req.Action,
		What:   req.What,
		Extras: req.Extras,
	}))
}

func publishEndpoint(h *handler.Handler, met *metrics.Registry, d *debounce.Debouncer[publishRequest], th *throttle.Throttler[publishRequest]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req publishRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch r.URL.Query().Get("mode") {
		case "debounce":
			d.Call(req)
		case "throttle":
			th.Call(req)
		default:
			postPublish(h, met, req)
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
