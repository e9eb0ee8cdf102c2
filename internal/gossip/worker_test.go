package gossip

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peridot-net/peridot-chain/config"
	"github.com/peridot-net/peridot-chain/internal/chain"
	"github.com/peridot-net/peridot-chain/internal/ico"
	"github.com/peridot-net/peridot-chain/internal/node"
	"github.com/peridot-net/peridot-chain/pkg/block"
	"github.com/peridot-net/peridot-chain/pkg/types"
)

// fakePeer records messages sent to it on a channel.
type fakePeer struct {
	id   string
	sent chan *Message
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, sent: make(chan *Message, 16)}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(m *Message) error {
	p.sent <- m
	return nil
}

func (p *fakePeer) recv(t *testing.T) *Message {
	t.Helper()
	select {
	case m := <-p.sent:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for peer message")
		return nil
	}
}

// fakeBroadcaster records broadcast messages.
type fakeBroadcaster struct {
	sent chan *Message
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{sent: make(chan *Message, 16)}
}

func (b *fakeBroadcaster) Broadcast(m *Message) error {
	b.sent <- m
	return nil
}

func (b *fakeBroadcaster) recv(t *testing.T) *Message {
	t.Helper()
	select {
	case m := <-b.sent:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return nil
	}
}

var (
	genesisOnce  sync.Once
	genesisBlock *block.Block
)

type harness struct {
	state     *node.State
	inbound   chan Inbound
	broadcast *fakeBroadcaster
	worker    *Worker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	genesisOnce.Do(func() {
		dir := t.TempDir()
		require.NoError(t, ico.Generate(dir))
		var err error
		genesisBlock, err = chain.GenesisBlock(dir)
		require.NoError(t, err)
	})

	h := &harness{
		state:     node.NewState(genesisBlock),
		inbound:   make(chan Inbound, 64),
		broadcast: newFakeBroadcaster(),
	}
	h.worker = NewWorker(1, h.inbound, h.state, h.broadcast)
	h.worker.Start()
	t.Cleanup(func() {
		close(h.inbound)
		h.worker.Wait()
	})
	return h
}

func (h *harness) deliver(t *testing.T, peer Peer, msg *Message) {
	t.Helper()
	data, err := msg.Encode()
	require.NoError(t, err)
	h.inbound <- Inbound{Data: data, From: peer}
}

var testSeq uint64

func solvedChild(parent types.Hash) *block.Block {
	testSeq++
	header := &block.Header{
		Parent:     parent,
		Difficulty: config.GenesisDifficulty(),
		Timestamp:  config.GenesisTimestamp + testSeq,
	}
	b := block.New(header, nil)
	for !b.MeetsDifficulty(header.Difficulty) {
		header.Nonce++
	}
	return b
}

func TestPingPong(t *testing.T) {
	h := newHarness(t)
	peer := newFakePeer("p1")

	h.deliver(t, peer, NewPing("hello"))
	reply := peer.recv(t)
	assert.Equal(t, MsgPong, reply.Type)
	assert.Equal(t, "hello", reply.Nonce)
}

func TestNewBlockHashesRequestsUnknown(t *testing.T) {
	h := newHarness(t)
	peer := newFakePeer("p1")

	unknown := solvedChild(genesisBlock.Hash()).Hash()
	h.deliver(t, peer, NewBlockHashes([]types.Hash{unknown}))

	reply := peer.recv(t)
	assert.Equal(t, MsgGetBlocks, reply.Type)
	assert.Equal(t, []types.Hash{unknown}, reply.Hashes)
}

func TestNewBlockHashesIgnoresKnown(t *testing.T) {
	h := newHarness(t)
	peer := newFakePeer("p1")

	h.deliver(t, peer, NewBlockHashes([]types.Hash{genesisBlock.Hash()}))
	// No request should come back; prove liveness with a ping.
	h.deliver(t, peer, NewPing("after"))
	reply := peer.recv(t)
	assert.Equal(t, MsgPong, reply.Type)
}

func TestGetBlocksServesKnown(t *testing.T) {
	h := newHarness(t)
	peer := newFakePeer("p1")

	h.deliver(t, peer, NewGetBlocks([]types.Hash{genesisBlock.Hash()}))
	reply := peer.recv(t)
	assert.Equal(t, MsgBlocks, reply.Type)
	require.Len(t, reply.Blocks, 1)
	assert.Equal(t, genesisBlock.Hash(), reply.Blocks[0].Hash())
}

func TestBlocksInsertedAndAnnounced(t *testing.T) {
	h := newHarness(t)
	peer := newFakePeer("p1")

	b := solvedChild(genesisBlock.Hash())
	h.deliver(t, peer, NewBlocks([]*block.Block{b}))

	announced := h.broadcast.recv(t)
	assert.Equal(t, MsgNewBlockHashes, announced.Type)
	assert.Equal(t, []types.Hash{b.Hash()}, announced.Hashes)
	assert.True(t, h.state.HasBlock(b.Hash()))
	assert.Equal(t, b.Hash(), h.state.Tip())
}

func TestOrphanBlockTriggersParentRequest(t *testing.T) {
	h := newHarness(t)
	peer := newFakePeer("p1")

	b1 := solvedChild(genesisBlock.Hash())
	b2 := solvedChild(b1.Hash())

	h.deliver(t, peer, NewBlocks([]*block.Block{b2}))

	announced := h.broadcast.recv(t)
	assert.Equal(t, MsgNewBlockHashes, announced.Type)

	request := peer.recv(t)
	assert.Equal(t, MsgGetBlocks, request.Type)
	assert.Equal(t, []types.Hash{b1.Hash()}, request.Hashes)
	assert.False(t, h.state.HasBlock(b2.Hash()))

	// Delivering the parent adopts both.
	h.deliver(t, peer, NewBlocks([]*block.Block{b1}))
	h.broadcast.recv(t)

	// Drain through a ping barrier so the insert has completed.
	h.deliver(t, peer, NewPing("barrier"))
	peer.recv(t)
	assert.True(t, h.state.HasBlock(b1.Hash()))
	assert.True(t, h.state.HasBlock(b2.Hash()))
	assert.Equal(t, b2.Hash(), h.state.Tip())
}

func TestUnderDifficultyBlockDropped(t *testing.T) {
	h := newHarness(t)
	peer := newFakePeer("p1")

	weakDifficulty := types.Hash{}
	weakDifficulty[31] = 0x01
	b := block.New(&block.Header{
		Parent:     genesisBlock.Hash(),
		Difficulty: weakDifficulty,
		Timestamp:  config.GenesisTimestamp + 999,
	}, nil)

	h.deliver(t, peer, NewBlocks([]*block.Block{b}))
	h.deliver(t, peer, NewPing("barrier"))
	reply := peer.recv(t)
	assert.Equal(t, MsgPong, reply.Type)
	assert.False(t, h.state.HasBlock(b.Hash()))
}

func TestUndecodableMessageSkipped(t *testing.T) {
	h := newHarness(t)
	peer := newFakePeer("p1")

	h.inbound <- Inbound{Data: []byte("{not json"), From: peer}
	h.deliver(t, peer, NewPing("still alive"))
	reply := peer.recv(t)
	assert.Equal(t, MsgPong, reply.Type)
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msgs := []*Message{
		NewPing("n"),
		NewPong("n"),
		NewBlockHashes([]types.Hash{genesisHashForCodec()}),
		NewGetBlocks([]types.Hash{genesisHashForCodec()}),
		NewBlocks([]*block.Block{block.New(&block.Header{Timestamp: 1}, nil)}),
	}
	for _, m := range msgs {
		data, err := m.Encode()
		require.NoError(t, err)
		back, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, m.Type, back.Type)
		assert.Equal(t, m.Nonce, back.Nonce)
		assert.Equal(t, m.Hashes, back.Hashes)
		assert.Equal(t, len(m.Blocks), len(back.Blocks))
	}

	_, err := Decode([]byte(`{"type":99}`))
	assert.Error(t, err)
}

func genesisHashForCodec() types.Hash {
	var h types.Hash
	h[0] = 0xab
	return h
}
