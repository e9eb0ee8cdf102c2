package gossip

import (
	"sync"

	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/internal/node"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// InboundQueueSize bounds the shared channel between the transport and the
// worker pool.
const InboundQueueSize = 10_000

// Peer is a handle for replying to the sender of a message.
type Peer interface {
	ID() string
	Send(*Message) error
}

// Broadcaster fans a message out to every connected peer.
type Broadcaster interface {
	Broadcast(*Message) error
}

// Inbound is one raw message off the wire plus the handle of the peer that
// sent it.
type Inbound struct {
	Data []byte
	From Peer
}

// Worker is the pool of identical goroutines that dispatch peer messages
// into the chain state.
type Worker struct {
	inbound   <-chan Inbound
	workers   int
	state     *node.State
	broadcast Broadcaster
	wg        sync.WaitGroup
}

// NewWorker creates a pool of n workers reading from inbound.
func NewWorker(n int, inbound <-chan Inbound, state *node.State, broadcast Broadcaster) *Worker {
	return &Worker{
		inbound:   inbound,
		workers:   n,
		state:     state,
		broadcast: broadcast,
	}
}

// Start launches the worker goroutines. They exit when the inbound channel
// closes.
func (w *Worker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.loop()
			log.Gossip.Info().Int("worker", id).Msg("worker exited")
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) loop() {
	for in := range w.inbound {
		msg, err := Decode(in.Data)
		if err != nil {
			log.Gossip.Warn().Str("peer", in.From.ID()).Err(err).Msg("dropping undecodable message")
			continue
		}
		w.handle(msg, in.From)
	}
}

func (w *Worker) handle(msg *Message, peer Peer) {
	switch msg.Type {
	case MsgPing:
		log.Gossip.Debug().Str("peer", peer.ID()).Str("nonce", msg.Nonce).Msg("ping")
		w.send(peer, NewPong(msg.Nonce))

	case MsgPong:
		log.Gossip.Debug().Str("peer", peer.ID()).Str("nonce", msg.Nonce).Msg("pong")

	case MsgNewBlockHashes:
		w.handleNewBlockHashes(msg.Hashes, peer)

	case MsgGetBlocks:
		w.handleGetBlocks(msg.Hashes, peer)

	case MsgBlocks:
		w.handleBlocks(msg, peer)
	}
}

// handleNewBlockHashes requests every announced block we do not have yet
// from the announcing peer.
func (w *Worker) handleNewBlockHashes(hashes []types.Hash, peer Peer) {
	if len(hashes) == 0 {
		return
	}
	var missing []types.Hash
	for _, h := range hashes {
		if !w.state.HasBlock(h) {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		log.Gossip.Debug().Str("peer", peer.ID()).Int("missing", len(missing)).Msg("requesting announced blocks")
		w.send(peer, NewGetBlocks(missing))
	}
}

// handleGetBlocks serves every requested block we know.
func (w *Worker) handleGetBlocks(hashes []types.Hash, peer Peer) {
	if len(hashes) == 0 {
		return
	}
	var known []*block.Block
	for _, h := range hashes {
		if b, ok := w.state.GetBlock(h); ok {
			known = append(known, b)
		}
	}
	if len(known) > 0 {
		w.send(peer, NewBlocks(known))
	}
}

// handleBlocks routes delivered blocks into the insertion pipeline,
// re-announces the fresh ones to the network, and asks the originating
// peer for the parents of any orphans.
func (w *Worker) handleBlocks(msg *Message, peer Peer) {
	if len(msg.Blocks) == 0 {
		return
	}

	difficulty := w.state.Difficulty()

	var announce []types.Hash
	var orphanParents []types.Hash
	for _, b := range msg.Blocks {
		// A block declaring a threshold below the chain's fixed difficulty
		// is dropped before doing any work; proof of work itself is checked
		// against the chain's difficulty in the insertion pipeline.
		if b.Header.Difficulty.Less(difficulty) {
			log.Gossip.Warn().Str("peer", peer.ID()).Str("block", b.Hash().Short()).Msg("dropping under-difficulty block")
			continue
		}
		if w.state.HasBlock(b.Hash()) {
			continue
		}

		announce = append(announce, b.Hash())
		if !w.state.SendBlock(b) {
			orphanParents = append(orphanParents, b.Parent())
		}
	}

	if len(announce) > 0 {
		if err := w.broadcast.Broadcast(NewBlockHashes(announce)); err != nil {
			log.Gossip.Warn().Err(err).Msg("broadcast failed")
		}
	}
	if len(orphanParents) > 0 {
		log.Gossip.Debug().Str("peer", peer.ID()).Int("parents", len(orphanParents)).Msg("requesting orphan parents")
		w.send(peer, NewGetBlocks(orphanParents))
	}
}

func (w *Worker) send(peer Peer, msg *Message) {
	if err := peer.Send(msg); err != nil {
		log.Gossip.Warn().Str("peer", peer.ID()).Err(err).Msg("send failed")
	}
}
