// Package miner implements block production: a control-driven mining loop
// and the worker that announces mined blocks to the network.
package miner

import (
	"math/rand"
	"time"

	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/internal/node"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// signalKind selects the control message variant.
type signalKind int

const (
	sigStart signalKind = iota // begin mining with the carried lambda
	sigUpdate                  // refresh the cached tip
	sigExit                    // shut the loop down
)

type signal struct {
	kind   signalKind
	lambda uint64 // microseconds to sleep between attempts (Start only)
}

// opState is the miner's operating state.
type opState int

const (
	statePaused opState = iota
	stateRunning
	stateShutDown
)

// Miner runs the proof-of-work loop on a single long-lived goroutine. It
// starts paused; the control surface drives it through Start/Update/Exit.
type Miner struct {
	control chan signal
	mined   chan *block.Block
	state   *node.State

	op      opState
	lambda  uint64
	lastTip types.Hash
}

// New creates a paused miner over the shared chain state.
func New(state *node.State) *Miner {
	return &Miner{
		control: make(chan signal, 16),
		mined:   make(chan *block.Block, 16),
		state:   state,
		lastTip: state.Tip(),
	}
}

// Start begins (or re-tunes) continuous mining. lambda is the pause in
// microseconds between attempts; zero mines flat out.
func (m *Miner) Start(lambda uint64) {
	m.control <- signal{kind: sigStart, lambda: lambda}
}

// Update tells the miner the chain tip may have moved.
func (m *Miner) Update() {
	m.control <- signal{kind: sigUpdate}
}

// Exit shuts the mining loop down at its next control check.
func (m *Miner) Exit() {
	m.control <- signal{kind: sigExit}
}

// Mined returns the channel newly mined blocks are announced on. The
// channel closes when the loop exits.
func (m *Miner) Mined() <-chan *block.Block {
	return m.mined
}

// Run starts the mining loop goroutine.
func (m *Miner) Run() {
	go m.loop()
	log.Miner.Info().Msg("miner initialized into paused mode")
}

func (m *Miner) loop() {
	defer close(m.mined)

	for {
		switch m.op {
		case statePaused:
			// Nothing to do until the operator says so.
			m.apply(<-m.control)
			continue
		case stateRunning:
			// Drain any pending control signals without blocking.
			select {
			case sig := <-m.control:
				m.apply(sig)
				continue
			default:
			}
		case stateShutDown:
			log.Miner.Info().Msg("miner shut down")
			return
		}

		m.mineOnce()

		if m.lambda > 0 {
			time.Sleep(time.Duration(m.lambda) * time.Microsecond)
		}
	}
}

func (m *Miner) apply(sig signal) {
	switch sig.kind {
	case sigStart:
		log.Miner.Info().Uint64("lambda", sig.lambda).Msg("miner starting in continuous mode")
		m.op = stateRunning
		m.lambda = sig.lambda
	case sigUpdate:
		if m.op == stateRunning {
			m.lastTip = m.state.Tip()
			log.Miner.Debug().Str("tip", m.lastTip.Short()).Msg("refreshed mining tip")
		}
	case sigExit:
		m.op = stateShutDown
	}
}

// mineOnce assembles a block from the mempool, searches the nonce space,
// and on success inserts the block atomically and hands it to the
// announcement worker.
func (m *Miner) mineOnce() {
	body, merkleRoot, totalFee := m.state.ProposeBlockBody()
	difficulty := m.state.Difficulty()
	m.lastTip = m.state.Tip()

	header := &block.Header{
		Parent:     m.lastTip,
		Difficulty: difficulty,
		MerkleRoot: merkleRoot,
		Timestamp:  uint64(time.Now().Unix()),
		Nonce:      rand.Uint32(),
	}
	b := &block.Block{Header: header, Body: body}

	log.Miner.Debug().
		Str("parent", header.Parent.Short()).
		Uint32("txs", body.TxCount).
		Uint64("fees", totalFee).
		Msg("mining attempt")

	for !b.MeetsDifficulty(difficulty) {
		header.Nonce++
	}

	m.state.InsertMined(b)
	log.Miner.Info().
		Str("block", b.Hash().Short()).
		Uint32("txs", body.TxCount).
		Msg("mined a block")

	m.mined <- b
}
