// Package api implements the local HTTP control and query surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/peridot-net/peridot-chain/internal/gossip"
	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/internal/miner"
	"github.com/peridot-net/peridot-chain/internal/node"
)

// maxBodySize limits POST bodies (1 MB).
const maxBodySize = 1 << 20

// Server exposes the node's control endpoints to operators and wallets.
type Server struct {
	addr      string
	state     *node.State
	miner     *miner.Miner
	broadcast gossip.Broadcaster

	server *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// New creates the API server. The miner and broadcaster may be nil in
// tests; the corresponding endpoints then report failure.
func New(addr string, state *node.State, m *miner.Miner, broadcast gossip.Broadcaster) *Server {
	s := &Server{
		addr:      addr,
		state:     state,
		miner:     m,
		broadcast: broadcast,
		logger:    log.API,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/miner/start", s.handleMinerStart)
	mux.HandleFunc("/network/ping", s.handleNetworkPing)
	mux.HandleFunc("/blockchain/longest-chain", s.handleLongestChain)
	mux.HandleFunc("/blockchain/height", s.handleHeight)
	mux.HandleFunc("/blockchain/longest-chain-tx", s.handleLongestChainTx)
	mux.HandleFunc("/blockchain/longest-chain-tx-count", s.handleLongestChainTxCount)
	mux.HandleFunc("/utxo", s.handleUTXO)
	mux.HandleFunc("/utxo-count", s.handleUTXOCount)
	mux.HandleFunc("/mempool/query_utxo_by_pk", s.handleQueryUTXOByPK)
	mux.HandleFunc("/mempool/submit_tx", s.handleSubmitTx)
	mux.HandleFunc("/", s.handleNotFound)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server error")
		}
	}()

	s.logger.Info().Str("addr", s.Addr()).Msg("api server listening")
	return nil
}

// Addr returns the bound listener address (useful with :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// statusResponse is the {success,message} reply for control endpoints.
type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) respondStatus(w http.ResponseWriter, success bool, message string) {
	s.respondJSONCode(w, http.StatusOK, statusResponse{Success: success, Message: message})
}

func (s *Server) respondJSON(w http.ResponseWriter, payload any) {
	s.respondJSONCode(w, http.StatusOK, payload)
}

func (s *Server) respondJSONCode(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn().Err(err).Msg("write response failed")
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respondJSONCode(w, http.StatusNotFound,
		statusResponse{Success: false, Message: "endpoint not found"})
}
