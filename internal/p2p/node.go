// Package p2p implements the peer-to-peer transport on libp2p.
//
// Broadcasts (block-hash announcements, pings) ride a GossipSub topic;
// peer-addressed messages (pong replies, block requests and deliveries)
// ride short-lived streams on a dedicated protocol. Both inbound paths
// funnel into one bounded channel consumed by the gossip worker pool.
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"

	"github.com/peridot-net/peridot-chain/internal/gossip"
	"github.com/peridot-net/peridot-chain/internal/log"
	"github.com/peridot-net/peridot-chain/internal/storage"
)

const (
	// rendezvous is the mDNS/DHT discovery namespace.
	rendezvous = "peridot-chain"

	// dhtDiscoveryInterval is how often DHT FindPeers runs.
	dhtDiscoveryInterval = 30 * time.Second

	// seedRetryInterval is how long to wait between attempts to reach a
	// seed peer that has not connected yet.
	seedRetryInterval = time.Second

	// peerConnectTimeout bounds a single dial.
	peerConnectTimeout = 5 * time.Second
)

// Config holds P2P node configuration.
type Config struct {
	ListenAddr string     // host:port to listen on
	Seeds      []string   // peer multiaddrs dialed at startup
	NoDiscover bool       // disable mDNS and DHT discovery
	DB         storage.DB // peer persistence (nil = disabled)
	DataDir    string     // node identity storage ("" = ephemeral identity)
}

// Node is the libp2p transport endpoint.
type Node struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc

	host   host.Host
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	dht    *dht.IpfsDHT

	inbound   chan gossip.Inbound
	closeOnce sync.Once

	mu    sync.RWMutex
	peers map[peer.ID]time.Time // connect time per live peer

	peerStore *PeerStore
}

// New creates a P2P node with the given config.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
		inbound: make(chan gossip.Inbound, gossip.InboundQueueSize),
		peers:   make(map[peer.ID]time.Time),
	}
	if cfg.DB != nil {
		n.peerStore = NewPeerStore(cfg.DB)
	}
	return n
}

// Inbound returns the channel the transport delivers raw messages on. It
// closes when the node stops.
func (n *Node) Inbound() <-chan gossip.Inbound {
	return n.inbound
}

// Start brings up the libp2p host, joins the gossip topic, and begins
// dialing seeds and discovering peers.
func (n *Node) Start() error {
	h, err := n.listen()
	if err != nil {
		return err
	}
	n.host = h
	h.Network().Notify(&connNotifier{node: n})

	if !n.config.NoDiscover {
		if err := n.initDHT(); err != nil {
			h.Close()
			return fmt.Errorf("init dht: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(n.ctx, h)
	if err != nil {
		n.closeDHT()
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	n.topic, err = ps.Join(TopicGossip)
	if err != nil {
		return fmt.Errorf("join gossip topic: %w", err)
	}
	n.sub, err = n.topic.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe gossip topic: %w", err)
	}

	h.SetStreamHandler(DirectProtocol, n.handleStream)
	go n.readTopic()

	for _, seed := range n.config.Seeds {
		go n.dialSeed(seed)
	}
	go n.reconnectPersistedPeers()

	if !n.config.NoDiscover {
		n.startMDNS()
		go n.runDHTDiscovery()
	}
	if n.peerStore != nil {
		go n.runPersistLoop()
	}

	log.P2P.Info().
		Str("peer_id", h.ID().String()).
		Strs("addrs", n.Addrs()).
		Msg("p2p node listening")
	return nil
}

// listen builds the libp2p host from the configured host:port.
func (n *Node) listen() (host.Host, error) {
	hostPart, portPart, err := net.SplitHostPort(n.config.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("p2p listen address %q: %w", n.config.ListenAddr, err)
	}
	addr := fmt.Sprintf("/ip4/%s/tcp/%s", hostPart, portPart)

	opts := []libp2p.Option{libp2p.ListenAddrStrings(addr)}
	if n.config.DataDir != "" {
		privKey, err := loadOrCreateIdentity(n.config.DataDir)
		if err != nil {
			return nil, fmt.Errorf("load p2p identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(privKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}
	return h, nil
}

// Stop shuts down the transport and closes the inbound channel so the
// worker pool drains out.
func (n *Node) Stop() error {
	n.persistPeers()
	n.cancel()
	if n.sub != nil {
		n.sub.Cancel()
	}
	if n.topic != nil {
		n.topic.Close()
	}
	n.closeDHT()

	var err error
	if n.host != nil {
		err = n.host.Close()
	}
	n.closeOnce.Do(func() { close(n.inbound) })
	return err
}

// ID returns the node's peer ID (empty before Start).
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the node's full multiaddrs, suitable for -c on other nodes.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var addrs []string
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

// PeerCount returns the number of live peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

func (n *Node) addPeer(id peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.peers[id]; !ok {
		n.peers[id] = time.Now()
	}
}

func (n *Node) removePeer(id peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

// deliver pushes one raw message to the worker pool, blocking while the
// bounded queue is full.
func (n *Node) deliver(data []byte, from peer.ID) {
	select {
	case n.inbound <- gossip.Inbound{Data: data, From: &remotePeer{node: n, id: from}}:
	case <-n.ctx.Done():
	}
}

// readTopic funnels pubsub messages into the inbound channel.
func (n *Node) readTopic() {
	for {
		msg, err := n.sub.Next(n.ctx)
		if err != nil {
			return // context cancelled
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue // skip own broadcasts
		}
		n.addPeer(msg.ReceivedFrom)
		n.deliver(msg.Data, msg.ReceivedFrom)
	}
}

// dialSeed dials one seed multiaddr, retrying every second until the first
// successful connection.
func (n *Node) dialSeed(addr string) {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		log.P2P.Error().Str("addr", addr).Err(err).Msg("bad seed address")
		return
	}
	for {
		ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		err := n.host.Connect(ctx, *info)
		cancel()
		if err == nil {
			n.addPeer(info.ID)
			log.P2P.Info().Str("peer", info.ID.String()).Msg("seed connected")
			return
		}
		log.P2P.Warn().Str("addr", addr).Err(err).Msg("seed connect failed, retrying in one second")

		select {
		case <-n.ctx.Done():
			return
		case <-time.After(seedRetryInterval):
		}
	}
}

// --- DHT discovery ---

func (n *Node) initDHT() error {
	kadDHT, err := dht.New(n.ctx, n.host, dht.Mode(dht.ModeAuto))
	if err != nil {
		return fmt.Errorf("create kad-dht: %w", err)
	}
	n.dht = kadDHT
	return kadDHT.Bootstrap(n.ctx)
}

func (n *Node) closeDHT() {
	if n.dht != nil {
		n.dht.Close()
		n.dht = nil
	}
}

func (n *Node) startMDNS() {
	svc := mdns.NewMdnsService(n.host, rendezvous, &discoveryNotifee{node: n})
	// mDNS failure is non-fatal.
	_ = svc.Start()
}

func (n *Node) runDHTDiscovery() {
	if n.dht == nil {
		return
	}

	routingDiscovery := drouting.NewRoutingDiscovery(n.dht)
	dutil.Advertise(n.ctx, routingDiscovery, rendezvous)

	ticker := time.NewTicker(dhtDiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.findDHTPeers(routingDiscovery)
		}
	}
}

func (n *Node) findDHTPeers(routingDiscovery *drouting.RoutingDiscovery) {
	ctx, cancel := context.WithTimeout(n.ctx, 20*time.Second)
	defer cancel()

	peerCh, err := routingDiscovery.FindPeers(ctx, rendezvous)
	if err != nil {
		return
	}

	for p := range peerCh {
		if p.ID == n.host.ID() || len(p.Addrs) == 0 {
			continue
		}
		connectCtx, connectCancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		if err := n.host.Connect(connectCtx, p); err == nil {
			n.addPeer(p.ID)
		}
		connectCancel()
	}
}

// loadOrCreateIdentity loads a persisted libp2p identity key from dataDir,
// or generates a new Ed25519 key and saves it so the peer ID is stable
// across restarts.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "node.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}
	return priv, nil
}
