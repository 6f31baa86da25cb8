/*
Package api
File: handlers.go
Description:
    HTTP handlers for the REST API and the WebSocket message dispatcher.
    Both surfaces decode a request, hand it to the Session (which serializes
    every engine call) and encode the result.

    Key Responsibilities:
    - Input validation (valid JSON, correct method, rate limits)
    - Mapping engine errors to HTTP status codes / WS rejection messages
    - Pushing a fresh state pulse to every client after a change
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/everforgeworks/moai-clicker/internal/game"
	"github.com/everforgeworks/moai-clicker/internal/platform/logger"
	"github.com/everforgeworks/moai-clicker/internal/platform/metrics"
	"github.com/everforgeworks/moai-clicker/internal/session"
)

// Request DTOs.

type ClickRequest struct {
	Amount *float64 `json:"amount,omitempty"` // Defaults to one manual action
}

type BuyRequest struct {
	KindID string `json:"kind_id"`
}

// ActionResponse is returned by the click and buy endpoints.
type ActionResponse struct {
	Event game.Event    `json:"event"`
	State game.Snapshot `json:"state"`
}

type errorPayload struct {
	Reason string `json:"reason"` // invalid_input, unknown_kind, insufficient_funds, rate_limited, bad_request
	Detail string `json:"detail"`
	KindID string `json:"kind_id,omitempty"`
}

// Options tunes the client-facing surface of a Server.
type Options struct {
	AllowedOrigin  string
	MaxClickAmount float64 // Largest amount one click request may carry; <= 0 means one manual action
}

// Server wires the session to HTTP and WebSocket clients.
type Server struct {
	session  *session.Session
	hub      *Hub
	limiter  *Limiter
	metrics  *metrics.Collector
	log      *logger.Logger
	origin   string
	maxClick float64
	upgrader websocket.Upgrader
}

// NewServer creates the API server and installs itself as the hub's message handler.
func NewServer(sess *session.Session, hub *Hub, limiter *Limiter, m *metrics.Collector, log *logger.Logger, opts Options) *Server {
	maxClick := opts.MaxClickAmount
	if maxClick <= 0 {
		maxClick = game.ManualActionAmount
	}
	s := &Server{
		session:  sess,
		hub:      hub,
		limiter:  limiter,
		metrics:  m,
		log:      log,
		origin:   opts.AllowedOrigin,
		maxClick: maxClick,
		upgrader: newUpgrader(opts.AllowedOrigin),
	}
	hub.handler = s.handleMessage
	hub.onLeave = limiter.Forget
	return s
}

// Routes returns the full HTTP handler including CORS.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Information endpoints
	mux.HandleFunc("/api/state", s.handleGetState)
	mux.HandleFunc("/api/generators", s.handleGetGenerators)
	mux.HandleFunc("/metrics", s.metrics.Handler())

	// Action endpoints
	mux.HandleFunc("/api/click", s.handleClick)
	mux.HandleFunc("/api/generators/buy", s.handleBuy)

	// Real-time endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.ServeWs(s.upgrader, w, r)
	})

	return corsMiddleware(s.origin, mux)
}

// handleGetState returns the full snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleGetGenerators returns the static catalog in presentation order.
func (s *Server) handleGetGenerators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Catalog().Kinds())
}

// handleClick applies one manual action.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	actor := clientIP(r)
	if !s.limiter.Allow(actor) {
		s.metrics.RateLimited.Add(1)
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	amount, err := s.clickAmount(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	ev, err := s.session.Click(actor, amount)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	snap := s.session.Snapshot()
	s.hub.PublishState(snap)
	writeJSON(w, http.StatusOK, ActionResponse{Event: ev, State: snap})
}

// handleBuy purchases one generator unit.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ev, err := s.session.Buy(clientIP(r), req.KindID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	snap := s.session.Snapshot()
	s.hub.PublishState(snap)
	writeJSON(w, http.StatusOK, ActionResponse{Event: ev, State: snap})
}

// handleMessage dispatches one inbound WebSocket message.
// Successful actions are broadcast to everyone; failures reply to the sender only.
func (s *Server) handleMessage(clientID string, msg inboundMessage) []byte {
	var err error
	var kindID string

	switch msg.Type {
	case TypeClick:
		var req ClickRequest
		if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
			if jerr := json.Unmarshal(msg.Payload, &req); jerr != nil {
				return s.rejection(clientID, TypeError, errorPayload{Reason: "bad_request", Detail: jerr.Error()})
			}
		}
		if !s.limiter.Allow(clientID) {
			s.metrics.RateLimited.Add(1)
			return s.rejection(clientID, TypeError, errorPayload{Reason: "rate_limited", Detail: "too many actions"})
		}
		var amount float64
		if amount, err = s.clickAmount(req.Amount); err == nil {
			_, err = s.session.Click(clientID, amount)
		}

	case TypeBuy:
		var req BuyRequest
		if jerr := json.Unmarshal(msg.Payload, &req); jerr != nil {
			return s.rejection(clientID, TypeError, errorPayload{Reason: "bad_request", Detail: jerr.Error()})
		}
		kindID = req.KindID
		_, err = s.session.Buy(clientID, kindID)

	default:
		return s.rejection(clientID, TypeError, errorPayload{Reason: "bad_request", Detail: "unknown message type " + msg.Type})
	}

	if err != nil {
		typ := TypeError
		if msg.Type == TypeBuy {
			typ = TypePurchaseRejected
		}
		return s.rejection(clientID, typ, errorPayload{Reason: reasonFor(err), Detail: err.Error(), KindID: kindID})
	}

	s.hub.Broadcast(Message{Type: TypeStatePulse, Payload: s.session.Snapshot(), Sender: clientID})
	return nil
}

func (s *Server) rejection(clientID, typ string, p errorPayload) []byte {
	data, err := encodeMessage(Message{Type: typ, Payload: p, Sender: session.SystemActor})
	if err != nil {
		s.log.Errorf("WS: marshal rejection for %s: %v", clientID, err)
		return nil
	}
	return data
}

// clickAmount resolves the requested click amount, capped by the server's limit.
func (s *Server) clickAmount(amount *float64) (float64, error) {
	if amount == nil {
		return game.ManualActionAmount, nil
	}
	if *amount > s.maxClick {
		s.metrics.RejectedInput.Add(1)
		return 0, fmt.Errorf("%w: click amount %v exceeds limit %v", game.ErrInvalidInput, *amount, s.maxClick)
	}
	return *amount, nil
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, game.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, game.ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, game.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// corsMiddleware lets a browser client on another origin call the API.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
