// Package httpfront is the external HTTP front end collaborator from
// spec.md §6: it maps a URL path to a room identity and hands the
// upgraded transport to the coordinator's attach operation. It knows
// nothing about frames, CRDTs, or locks — only routing.
package httpfront

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/negroni/v3"

	"roomcoordinator/internal/coordinator"
	"roomcoordinator/internal/keepalive"
	"roomcoordinator/internal/recovery"
	"roomcoordinator/internal/session"
)

// maxRoomNameBytes is spec.md §6's limit on a room identifier supplied
// in the websocket upgrade path; longer names 404 instead of reaching
// the coordinator.
const maxRoomNameBytes = 128

// Front wires the REST surface (room allocation, websocket upgrade,
// metrics) on top of a Coordinator.
type Front struct {
	coord     *coordinator.Coordinator
	upgrader  websocket.Upgrader
	log       logging.LeveledLogger
	keepalive keepalive.Config
}

// New constructs a Front. keepaliveCfg governs the per-session ping/pong
// monitor started on every successful attach.
func New(coord *coordinator.Coordinator, log logging.LeveledLogger, keepaliveCfg keepalive.Config) *Front {
	return &Front{
		coord: coord,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:       log,
		keepalive: keepaliveCfg,
	}
}

// Handler returns the complete middleware-wrapped http.Handler: negroni
// logging, then the teacher's own panic-recovery middleware, in front of
// the route mux, matching the shape of the teacher's app.Run stack.
func (f *Front) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/room", f.createRoomHandler)
	mux.HandleFunc("/api/room/{name}/websocket", f.websocketHandler)
	mux.HandleFunc("/health", f.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	n := negroni.New()
	n.Use(negroni.NewLogger())
	n.UseHandler(recovery.RecoveryMiddleware(f.log, mux))
	return n
}

// createRoomHandler allocates a fresh unguessable room identifier and
// returns it as text (spec.md §6).
func (f *Front) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	name := uuid.New().String()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, name)
}

// websocketHandler upgrades the connection and delegates to the
// coordinator's attach operation, blocking for the lifetime of the
// session.
func (f *Front) websocketHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if len(name) > maxRoomNameBytes {
		http.NotFound(w, r)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Errorf("websocket upgrade failed for room %s: %v", name, err)
		return
	}

	playerID := r.URL.Query().Get("playerId")
	sess := session.New(conn)
	sess.StartKeepalive(f.keepalive, f.log)
	if err := f.coord.Attach(r.Context(), name, sess, playerID); err != nil {
		f.log.Warnf("attach for room %s ended with error: %v", name, err)
	}
}

// healthHandler reports basic liveness, matching the teacher's
// healthHandler shape.
func (f *Front) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%q}`, time.Now().UTC().Format(time.RFC3339))
}
