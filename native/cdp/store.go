package cdp

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp/clip"
	"cdpvault/native/cdp/dog"
	"cdpvault/native/cdp/jug"
	"cdpvault/native/cdp/spot"
	"cdpvault/native/cdp/vat"
	"cdpvault/native/cdp/vow"
	"cdpvault/storage"
)

const snapshotVersion = 1

var (
	snapshotKey = []byte("cdp/snapshot")
	digestKey   = []byte("cdp/snapshot/blake3")

	// ErrCorruptSnapshot reports a stored snapshot whose digest does not match.
	ErrCorruptSnapshot = errors.New("cdp: snapshot digest mismatch")
)

type ClipEntry struct {
	Ilk   string
	State clip.Snapshot
}

type FeedEntry struct {
	Ilk     string
	Value   *uint256.Int
	Updated uint64
}

// Snapshot is the full persisted state of a System.
type Snapshot struct {
	Version uint64
	Taken   uint64
	Wards   []common.Address
	Vat     vat.Snapshot
	Spot    spot.Snapshot
	Jug     jug.Snapshot
	Dog     dog.Snapshot
	Vow     vow.Snapshot
	Clips   []ClipEntry
	Feeds   []FeedEntry
}

// Snapshot captures the state of every component.
func (s *System) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := &Snapshot{
		Version: snapshotVersion,
		Taken:   s.clock.Now(),
		Wards:   s.wards.List(),
		Vat:     s.vat.Export(),
		Spot:    s.spot.Export(),
		Jug:     s.jug.Export(),
		Dog:     s.dog.Export(),
		Vow:     s.vow.Export(),
	}
	names := make([]string, 0, len(s.clips))
	for name := range s.clips {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Clips = append(snap.Clips, ClipEntry{Ilk: name, State: s.clips[name].Export()})
		value, updated := s.feeds[name].Observation()
		snap.Feeds = append(snap.Feeds, FeedEntry{Ilk: name, Value: value, Updated: updated})
	}
	return snap
}

// Restore replaces the component state with snap. The system must have been
// deployed with the same collateral types.
func (s *System) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cdp: restore: %w", cdperrors.ErrInvalidParam)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("cdp: restore: version %d: %w", snap.Version, cdperrors.ErrInvalidParam)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range snap.Clips {
		if _, ok := s.clips[entry.Ilk]; !ok {
			return fmt.Errorf("cdp: restore: ilk %s not deployed: %w", entry.Ilk, cdperrors.ErrIlkNotInitialized)
		}
	}
	for _, entry := range snap.Clips {
		if err := s.clips[entry.Ilk].Restore(entry.State); err != nil {
			return fmt.Errorf("cdp: restore: clip %s: %w", entry.Ilk, err)
		}
	}
	s.wards.Restore(snap.Wards)
	s.vat.Restore(snap.Vat)
	s.spot.Restore(snap.Spot)
	s.jug.Restore(snap.Jug)
	s.dog.Restore(snap.Dog)
	s.vow.Restore(snap.Vow)
	for _, entry := range snap.Feeds {
		if feed, ok := s.feeds[entry.Ilk]; ok {
			feed.Load(entry.Value, entry.Updated)
		}
	}
	s.logger.Info("cdp system restored", "taken", snap.Taken, "ilks", len(snap.Clips))
	return nil
}

// Store persists snapshots as RLP with a blake3 digest.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store { return &Store{db: db} }

// Save writes snap, replacing the previous one.
func (st *Store) Save(snap *Snapshot) error {
	enc, err := rlp.EncodeToBytes(snap)
	if err != nil {
		return fmt.Errorf("cdp: encode snapshot: %w", err)
	}
	sum := blake3.Sum256(enc)
	return st.db.WriteBatch(
		storage.Entry{Key: snapshotKey, Value: enc},
		storage.Entry{Key: digestKey, Value: sum[:]},
	)
}

// Load reads the stored snapshot. It returns storage.ErrNotFound when none
// was saved and ErrCorruptSnapshot when the digest does not match.
func (st *Store) Load() (*Snapshot, error) {
	enc, err := st.db.Get(snapshotKey)
	if err != nil {
		return nil, err
	}
	digest, err := st.db.Get(digestKey)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(enc)
	if !bytes.Equal(sum[:], digest) {
		return nil, ErrCorruptSnapshot
	}
	snap := new(Snapshot)
	if err := rlp.DecodeBytes(enc, snap); err != nil {
		return nil, fmt.Errorf("cdp: decode snapshot: %w", err)
	}
	return snap, nil
}
