package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/peridot-net/peridot-chain/internal/storage"
)

const (
	peerKeyPrefix   = "peer/"
	staleThreshold  = 24 * time.Hour
	persistInterval = 5 * time.Minute
)

// PeerRecord is a persisted peer entry, used to redial known peers after a
// restart.
type PeerRecord struct {
	ID       string   `json:"id"`
	Addrs    []string `json:"addrs"`
	LastSeen int64    `json:"last_seen"`
}

// PeerStore persists peer records in a storage.DB under the "peer/"
// prefix.
type PeerStore struct {
	db storage.DB
}

// NewPeerStore creates a PeerStore backed by the given DB.
func NewPeerStore(db storage.DB) *PeerStore {
	return &PeerStore{db: db}
}

func peerKey(id string) []byte {
	return []byte(peerKeyPrefix + id)
}

// Save persists a peer record.
func (ps *PeerStore) Save(rec PeerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal peer record: %w", err)
	}
	return ps.db.Put(peerKey(rec.ID), data)
}

// LoadAll returns all persisted peer records, skipping corrupt entries.
func (ps *PeerStore) LoadAll() ([]PeerRecord, error) {
	var records []PeerRecord
	err := ps.db.ForEach([]byte(peerKeyPrefix), func(_, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil // skip corrupt records
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate peer records: %w", err)
	}
	return records, nil
}

// PruneStale removes records older than the threshold, and corrupt ones.
// Returns the number pruned.
func (ps *PeerStore) PruneStale(threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).Unix()
	var toDelete [][]byte

	err := ps.db.ForEach([]byte(peerKeyPrefix), func(key, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil || rec.LastSeen < cutoff {
			k := make([]byte, len(key))
			copy(k, key)
			toDelete = append(toDelete, k)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate for prune: %w", err)
	}

	for _, k := range toDelete {
		if err := ps.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete stale peer: %w", err)
		}
	}
	return len(toDelete), nil
}

// persistPeers snapshots the live peer set into the store.
func (n *Node) persistPeers() {
	if n.peerStore == nil || n.host == nil {
		return
	}

	n.mu.RLock()
	snapshot := make([]peer.ID, 0, len(n.peers))
	for id := range n.peers {
		snapshot = append(snapshot, id)
	}
	n.mu.RUnlock()

	now := time.Now().Unix()
	for _, id := range snapshot {
		addrs := n.host.Peerstore().Addrs(id)
		addrStrs := make([]string, len(addrs))
		for i, a := range addrs {
			addrStrs[i] = a.String()
		}
		// Best-effort, ignore errors.
		_ = n.peerStore.Save(PeerRecord{ID: id.String(), Addrs: addrStrs, LastSeen: now})
	}
}

// reconnectPersistedPeers redials peers remembered from previous runs.
func (n *Node) reconnectPersistedPeers() {
	if n.peerStore == nil {
		return
	}

	n.peerStore.PruneStale(staleThreshold)
	records, err := n.peerStore.LoadAll()
	if err != nil {
		return
	}

	for _, rec := range records {
		id, err := peer.Decode(rec.ID)
		if err != nil || id == n.host.ID() {
			continue
		}

		info := peer.AddrInfo{ID: id}
		for _, addr := range rec.Addrs {
			full, err := peer.AddrInfoFromString(fmt.Sprintf("%s/p2p/%s", addr, rec.ID))
			if err != nil {
				continue
			}
			info.Addrs = append(info.Addrs, full.Addrs...)
		}
		if len(info.Addrs) == 0 {
			continue
		}

		ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		n.host.Connect(ctx, info) // best-effort
		cancel()
	}
}

func (n *Node) runPersistLoop() {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.persistPeers()
			n.peerStore.PruneStale(staleThreshold)
		}
	}
}
