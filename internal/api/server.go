// Package api exposes the settlement processor over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"solana-nft-market/internal/observability"
	"solana-nft-market/internal/processor"
	"solana-nft-market/internal/storage"
)

// Options contains configuration for creating a Server.
type Options struct {
	Processor   *processor.Processor
	Settlements storage.SettlementStore // required for GET /v1/settlements/{id}
	// DevFaucet enables POST /v1/dev/airdrop. Never enable against a mirrored cluster ledger.
	DevFaucet bool
	Logger    *zap.Logger
	Now       func() time.Time
}

// Server serves the marketplace HTTP API.
type Server struct {
	proc        *processor.Processor
	settlements storage.SettlementStore
	devFaucet   bool
	logger      *zap.Logger
	now         func() time.Time
	started     time.Time

	bidsSettled  atomic.Int64
	bidsRejected atomic.Int64
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		proc:        opts.Processor,
		settlements: opts.Settlements,
		devFaucet:   opts.DevFaucet,
		logger:      logger.Named("api"),
		now:         now,
		started:     now(),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/bids", s.handleBid).Methods(http.MethodPost)
	v1.HandleFunc("/listings/{address}", s.handleGetListing).Methods(http.MethodGet)
	v1.HandleFunc("/settlements/{id}", s.handleGetSettlement).Methods(http.MethodGet)
	v1.HandleFunc("/derive/listing", s.handleDeriveListing).Methods(http.MethodGet)
	if s.devFaucet {
		v1.HandleFunc("/dev/airdrop", s.handleAirdrop).Methods(http.MethodPost)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, errorBody{Message: "page not found"})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	ProgramID    string `json:"program_id"`
	DevFaucet    bool   `json:"dev_faucet"`
	BidsSettled  int64  `json:"bids_settled"`
	BidsRejected int64  `json:"bids_rejected"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:       "running",
		Uptime:       s.now().Sub(s.started).Truncate(time.Second).String(),
		ProgramID:    s.proc.Program().ID().String(),
		DevFaucet:    s.devFaucet,
		BidsSettled:  s.bidsSettled.Load(),
		BidsRejected: s.bidsRejected.Load(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
