package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/peridot-net/peridot-chain/internal/gossip"
	"github.com/peridot-net/peridot-chain/internal/log"
)

const (
	// TopicGossip carries broadcasts to every peer.
	TopicGossip = "/peridot/gossip/1.0.0"

	// DirectProtocol carries peer-addressed messages, one per stream.
	DirectProtocol = protocol.ID("/peridot/direct/1.0.0")

	// maxMessageBytes limits a single wire message (a Blocks delivery can
	// carry many blocks).
	maxMessageBytes = 16 << 20

	// sendTimeout bounds writing one direct message.
	sendTimeout = 30 * time.Second
)

// handleStream reads one message off a direct stream and funnels it to the
// worker pool.
func (n *Node) handleStream(stream network.Stream) {
	defer stream.Close()

	from := stream.Conn().RemotePeer()
	data, err := io.ReadAll(io.LimitReader(stream, maxMessageBytes))
	if err != nil {
		log.P2P.Warn().Str("peer", from.String()).Err(err).Msg("direct stream read failed")
		return
	}
	n.addPeer(from)
	n.deliver(data, from)
}

// Broadcast publishes a message to every peer via the gossip topic.
// It implements gossip.Broadcaster.
func (n *Node) Broadcast(msg *gossip.Message) error {
	if n.topic == nil {
		return fmt.Errorf("p2p node not started")
	}
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	return n.topic.Publish(n.ctx, data)
}

// remotePeer is the reply handle handed to the gossip workers alongside
// each inbound message. Send opens a fresh direct stream to the peer.
type remotePeer struct {
	node *Node
	id   peer.ID
}

// ID returns the peer's base58 identity.
func (p *remotePeer) ID() string {
	return p.id.String()
}

// Send writes one message to the peer on a new direct stream.
func (p *remotePeer) Send(msg *gossip.Message) error {
	ctx, cancel := context.WithTimeout(p.node.ctx, sendTimeout)
	defer cancel()

	stream, err := p.node.host.NewStream(ctx, p.id, DirectProtocol)
	if err != nil {
		return fmt.Errorf("open direct stream: %w", err)
	}
	defer stream.Close()

	_ = stream.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := json.NewEncoder(stream).Encode(msg); err != nil {
		return fmt.Errorf("write direct message: %w", err)
	}
	return stream.CloseWrite()
}
