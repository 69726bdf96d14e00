package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Prometheus-style counters (uint64 via atomic)
var (
	msgCreated           atomic.Uint64
	msgBroadcast         atomic.Uint64
	msgDeadLettered      atomic.Uint64
	homePageRenders      atomic.Uint64
	wsConnections        atomic.Int64 // gauge semantics
	oidcInitSuccess      atomic.Uint64
	oidcInitFailure      atomic.Uint64
	oidcLastInitAttempts atomic.Uint64 // gauge semantics
)

func IncMsgCreated()      { msgCreated.Add(1) }
func IncMsgBroadcast()    { msgBroadcast.Add(1) }
func IncMsgDeadLettered() { msgDeadLettered.Add(1) }
func IncHomePageRenders() { homePageRenders.Add(1) }
func IncWSConnections()   { wsConnections.Add(1) }
func DecWSConnections()   { wsConnections.Add(-1) }

func IncOIDCInitSuccess(attempts uint64) {
	oidcInitSuccess.Add(1)
	oidcLastInitAttempts.Store(attempts)
}

func IncOIDCInitFailure(attempts uint64) {
	oidcInitFailure.Add(1)
	oidcLastInitAttempts.Store(attempts)
}

// Handler exposes metrics in a minimal Prometheus exposition format.
func Handler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	write := func(name, kind, help string, v interface{}) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %d\n", name, v)
	}
	write("messageboard_messages_created_total", "counter", "Messages accepted and persisted", msgCreated.Load())
	write("messageboard_messages_broadcast_total", "counter", "Messages fanned out to websocket clients", msgBroadcast.Load())
	write("messageboard_messages_dead_lettered_total", "counter", "Messages written to the dead letter topic", msgDeadLettered.Load())
	write("messageboard_home_page_renders_total", "counter", "Home page renders", homePageRenders.Load())
	write("messageboard_ws_connections", "gauge", "Open websocket connections", wsConnections.Load())

	fmt.Fprintf(w, "# HELP messageboard_oidc_provider_init_total OIDC provider initializations by outcome\n")
	fmt.Fprintf(w, "# TYPE messageboard_oidc_provider_init_total counter\n")
	fmt.Fprintf(w, "messageboard_oidc_provider_init_total{outcome=\"success\"} %d\n", oidcInitSuccess.Load())
	fmt.Fprintf(w, "messageboard_oidc_provider_init_total{outcome=\"failure\"} %d\n", oidcInitFailure.Load())
	write("messageboard_oidc_last_init_attempts", "gauge", "Attempts used in the most recent init", oidcLastInitAttempts.Load())
}
