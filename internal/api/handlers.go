package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/peridot-net/peridot-chain/internal/chain"
	"github.com/peridot-net/peridot-chain/internal/gossip"
	"github.com/peridot-net/peridot-chain/internal/mempool"
	"github.com/peridot-net/peridot-chain/pkg/tx"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

func (s *Server) handleMinerStart(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("lambda")
	if raw == "" {
		s.respondStatus(w, false, "missing lambda")
		return
	}
	lambda, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.respondStatus(w, false, fmt.Sprintf("error parsing lambda: %v", err))
		return
	}
	if s.miner == nil {
		s.respondStatus(w, false, "miner not available")
		return
	}
	s.miner.Start(lambda)
	s.logger.Info().Uint64("lambda", lambda).Msg("mining started via api")
	s.respondStatus(w, true, "ok")
}

func (s *Server) handleNetworkPing(w http.ResponseWriter, r *http.Request) {
	if s.broadcast == nil {
		s.respondStatus(w, false, "network not available")
		return
	}
	if err := s.broadcast.Broadcast(gossip.NewPing("operator ping")); err != nil {
		s.respondStatus(w, false, err.Error())
		return
	}
	s.respondStatus(w, true, "ok")
}

func (s *Server) handleLongestChain(w http.ResponseWriter, r *http.Request) {
	var hashes []string
	s.state.ReadChain(func(bc *chain.Blockchain) {
		for _, h := range bc.LongestChain() {
			hashes = append(hashes, h.String())
		}
	})
	s.respondJSON(w, hashes)
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request) {
	var height uint32
	s.state.ReadChain(func(bc *chain.Blockchain) {
		height = bc.Height()
	})
	s.respondJSON(w, height)
}

func (s *Server) handleLongestChainTx(w http.ResponseWriter, r *http.Request) {
	txHashes := []string{}
	s.state.ReadChain(func(bc *chain.Blockchain) {
		for _, h := range bc.LongestChain() {
			bwh, ok := bc.Get(h)
			if !ok {
				continue
			}
			for _, stx := range bwh.Block.Body.Txs {
				txHashes = append(txHashes, stx.TxHash().String())
			}
		}
	})
	s.respondJSON(w, txHashes)
}

func (s *Server) handleLongestChainTxCount(w http.ResponseWriter, r *http.Request) {
	var count uint64
	s.state.ReadChain(func(bc *chain.Blockchain) {
		for _, h := range bc.LongestChain() {
			if bwh, ok := bc.Get(h); ok {
				count += uint64(bwh.Block.Body.TxCount)
			}
		}
	})
	s.respondJSON(w, count)
}

func (s *Server) handleUTXO(w http.ResponseWriter, r *http.Request) {
	entries := []string{}
	s.state.ReadPool(func(p *mempool.Pool) {
		for _, e := range p.Entries() {
			entries = append(entries, fmt.Sprintf("%s => %s:%d",
				e.Outpoint, e.Output.PKHash, e.Output.Value))
		}
	})
	s.respondJSON(w, entries)
}

func (s *Server) handleUTXOCount(w http.ResponseWriter, r *http.Request) {
	var count int
	s.state.ReadPool(func(p *mempool.Pool) {
		count = p.UTXOCount()
	})
	s.respondJSON(w, count)
}

// utxoByPKEntry is one row of the query_utxo_by_pk response.
type utxoByPKEntry struct {
	TxHash string    `json:"tx_hash"`
	Index  uint32    `json:"index"`
	Output tx.Output `json:"output"`
}

func (s *Server) handleQueryUTXOByPK(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("pkh")
	pkh, err := types.HexToHash(raw)
	if err != nil {
		s.respondStatus(w, false, fmt.Sprintf("error parsing pkh: %v", err))
		return
	}

	rows := []utxoByPKEntry{}
	s.state.ReadPool(func(p *mempool.Pool) {
		for _, e := range p.QueryByPKHash(pkh) {
			rows = append(rows, utxoByPKEntry{
				TxHash: e.Outpoint.TxID.String(),
				Index:  e.Outpoint.Index,
				Output: e.Output,
			})
		}
	})
	s.respondJSON(w, rows)
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondStatus(w, false, "submit_tx requires POST")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.respondStatus(w, false, fmt.Sprintf("error reading body: %v", err))
		return
	}

	var stx tx.SignedTransaction
	if err := json.Unmarshal(body, &stx); err != nil {
		s.respondStatus(w, false, fmt.Sprintf("error decoding transaction: %v", err))
		return
	}

	if err := s.state.AddTx(&stx); err != nil {
		s.respondStatus(w, false, err.Error())
		return
	}
	s.logger.Info().Str("tx", stx.TxHash().Short()).Msg("transaction accepted via api")
	s.respondStatus(w, true, "ok")
}
