package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messageboard/board"
	"messageboard/logger"
	"messageboard/metrics"
	"messageboard/models"
	"messageboard/store"
)

// TokenVerifier abstracts OIDC token verification.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) error
}

// DeadLetterer takes messages the broadcast loop could not persist.
type DeadLetterer interface {
	WriteMessage(ctx context.Context, msg models.Message, reason string) error
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Deps wires a Server. Service, Repository and Broadcast are required.
type Deps struct {
	Service    *board.Service
	Repository store.Repository
	// Broadcast carries every new message, whichever instance created it.
	Broadcast <-chan models.Delivery
	// Verifier guards write endpoints; nil leaves them open.
	Verifier  TokenVerifier
	DLQ       DeadLetterer
	PageLimit int
	Ready     map[string]ReadinessCheck
}

type Server struct {
	handler    http.Handler
	hub        *Hub
	svc        *board.Service
	repo       store.Repository
	verifier   TokenVerifier
	dlq        DeadLetterer
	pageLimit  int
	ready      map[string]ReadinessCheck
	broadcastC <-chan models.Delivery

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

const maxBodyBytes = 1 << 20

func NewServer(d Deps) *Server {
	s := &Server{
		hub:        NewHub(),
		svc:        d.Service,
		repo:       d.Repository,
		verifier:   d.Verifier,
		dlq:        d.DLQ,
		pageLimit:  d.PageLimit,
		ready:      d.Ready,
		broadcastC: d.Broadcast,
		done:       make(chan struct{}),
	}
	s.handler = loggingMiddleware(s.routes())
	s.wg.Add(1)
	go s.broadcastLoop()
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.Handle("GET /static/", staticHandler())
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/ws", s.handleWS)
	mux.HandleFunc("/messages", s.handleMessages)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("DELETE /messages/{id}", s.withAuth(s.handleDelete))
	mux.HandleFunc("DELETE /api/messages/{id}", s.withAuth(s.handleDelete))
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", metrics.Handler)
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

// Close stops the broadcast loop and disconnects websocket clients.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.hub.CloseAll()
	})
}

// withAuth extracts a bearer token and passes it to the verifier.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if err := s.verifier.Verify(r.Context(), token); err != nil {
			logger.Error("token verification failed", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type createRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.verifier != nil {
		token := r.URL.Query().Get("token")
		if token == "" || s.verifier.Verify(r.Context(), token) != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", err)
		return
	}
	s.hub.Add(conn)
	metrics.IncWSConnections()
	go func() {
		defer func() { s.hub.Remove(conn); metrics.DecWSConnections() }()
		conn.SetReadLimit(maxBodyBytes)
		for {
			var req createRequest
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("ws read", logger.FieldKV("error", err.Error()))
				}
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := s.svc.Create(ctx, req.Text); err != nil {
				logger.Error("ws create message", err, logger.FieldKV("remote_addr", conn.RemoteAddr().String()))
			}
			cancel()
		}
	}()
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.withAuth(s.handleCreate)(w, r)
	case http.MethodGet, http.MethodHead:
		list, err := s.svc.List(r.Context(), 0)
		if err != nil {
			logger.Error("fetch messages failed", err)
			http.Error(w, "fetch failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	form := isForm(r)

	var text string
	if form {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		text = r.PostForm.Get("text")
	} else {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		text = req.Text
	}

	msg, err := s.svc.Create(r.Context(), text)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.Error("create message failed", err)
			http.Error(w, "failed to store message", status)
			return
		}
		http.Error(w, err.Error(), status)
		return
	}
	if form {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.Error("delete message failed", err)
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case d, ok := <-s.broadcastC:
			if !ok {
				return
			}
			m := d.Message
			if s.svc.Deleted(m.ID) {
				logger.Debug("dropping deleted message", logger.FieldKV("message_id", m.ID))
				continue
			}
			n := s.hub.Broadcast(m)
			metrics.IncMsgBroadcast()
			logger.Debug("message broadcast", logger.FieldKV("message_id", m.ID), logger.FieldKV("clients", n))
			if !d.Remote {
				continue
			}
			// Messages created on other instances reach this store here.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.repo.InsertMessage(ctx, m); err != nil {
				logger.Error("persist message failed", err, logger.FieldKV("message_id", m.ID))
				if s.dlq != nil {
					if derr := s.dlq.WriteMessage(ctx, m, "persist_failure"); derr != nil {
						logger.Error("dlq write failed", derr, logger.FieldKV("message_id", m.ID))
					}
				}
			}
			cancel()
		}
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		logger.Error("store not ready", err)
		http.Error(w, "store not ready", http.StatusServiceUnavailable)
		return
	}
	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			logger.Error("dependency not ready", err, logger.FieldKV("dependency", name))
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, board.ErrEmptyText), errors.Is(err, board.ErrTooLong), errors.Is(err, board.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func isForm(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
