// Package metrics provides a lightweight Prometheus-compatible metrics
// registry for loopd. It deliberately avoids the prometheus/client_golang
// package so the server binary stays small with no additional dependencies.
//
// # Counter naming convention
//
// Every counter uses a tab-separated string as its label key so that a
// single sync.Map can hold all label combinations without additional map
// nesting.
//
//	Enqueued / Dispatched / Panics  →  key = "looper"
//	DebounceFired / Throttled       →  key = "name"
//
// # Prometheus text output
//
// Calling Registry.Handler() returns an http.Handler that renders all
// counters in the Prometheus exposition format (text/plain; version=0.0.4).
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// labelCounter is a lock-free, label-keyed counter map backed by sync.Map
// and atomic.Int64 values.
type labelCounter struct {
	vals sync.Map // key string → *atomic.Int64
}

func (lc *labelCounter) get(key string) *atomic.Int64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Inc increments the counter for key by 1.
func (lc *labelCounter) Inc(key string) { lc.get(key).Add(1) }

// Each calls fn for every key/value pair. The order is non-deterministic.
func (lc *labelCounter) Each(fn func(key string, val int64)) {
	lc.vals.Range(func(k, v any) bool {
		fn(k.(string), v.(*atomic.Int64).Load())
		return true
	})
}

// Registry holds every loopd application metric.
type Registry struct {
	// Dispatch counters. key = looper/worker name.
	Enqueued   labelCounter
	Dispatched labelCounter
	Panics     labelCounter

	// Companion primitive counters. key = debouncer/throttler name.
	DebounceFired labelCounter
	Throttled     labelCounter
	ThrottleDropped labelCounter
}

// Handler returns an http.Handler that renders all metrics in the
// Prometheus plain-text exposition format (text/plain; version=0.0.4).
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		var b strings.Builder

		writeFamily(&b, "loopd_messages_enqueued_total",
			"Total messages enqueued onto a looper", "counter",
			func(fn func(labels, val string)) {
				r.Enqueued.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`looper=%q`, key), fmt.Sprintf("%d", val))
				})
			})

		writeFamily(&b, "loopd_messages_dispatched_total",
			"Total messages dispatched by a looper", "counter",
			func(fn func(labels, val string)) {
				r.Dispatched.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`looper=%q`, key), fmt.Sprintf("%d", val))
				})
			})

		writeFamily(&b, "loopd_handler_panics_total",
			"Total recovered panics from handler dispatch", "counter",
			func(fn func(labels, val string)) {
				r.Panics.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`looper=%q`, key), fmt.Sprintf("%d", val))
				})
			})

		writeFamily(&b, "loopd_debounce_fired_total",
			"Total debounced calls that reached the wrapped function", "counter",
			func(fn func(labels, val string)) {
				r.DebounceFired.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`name=%q`, key), fmt.Sprintf("%d", val))
				})
			})

		writeFamily(&b, "loopd_throttle_allowed_total",
			"Total throttled calls that ran", "counter",
			func(fn func(labels, val string)) {
				r.Throttled.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`name=%q`, key), fmt.Sprintf("%d", val))
				})
			})

		writeFamily(&b, "loopd_throttle_dropped_total",
			"Total throttled calls dropped before their interval elapsed", "counter",
			func(fn func(labels, val string)) {
				r.ThrottleDropped.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`name=%q`, key), fmt.Sprintf("%d", val))
				})
			})

		fmt.Fprint(w, b.String())
	})
}

// writeFamily writes a single Prometheus metric family to b. fill is called
// with a writer function that appends individual label+value lines.
func writeFamily(
	b *strings.Builder,
	name, help, typ string,
	fill func(fn func(labels, val string)),
) {
	var lines []string
	fill(func(labels, val string) {
		lines = append(lines, fmt.Sprintf("%s{%s} %s\n", name, labels, val))
	})
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	for _, l := range lines {
		b.WriteString(l)
	}
}
