// Package spatial implements the overlay's Spatial Store: a persisted,
// indexed collection of known nodes supporting great-circle distance
// queries and per-entry expiry.
//
// Grounded on the teacher's internal/directory package: a bbolt bucket is
// the single source of truth (and the only state spec.md §6 says survives a
// restart), mirrored into an in-memory map kept under a sync.RWMutex so that
// distance-ordered and random queries never touch disk.
package spatial

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	bolt "go.etcd.io/bbolt"

	"github.com/deuszex/iop-location-based-network/internal/changebus"
	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/randsrc"
)

var bucketEntries = []byte("entries")

// Store is the overlay's indexed, persisted view of known nodes.
type Store struct {
	db   *bolt.DB
	bus  *changebus.Bus
	clk  clock.Clock
	rnd  randsrc.Source

	mu      sync.RWMutex
	entries map[string]protocol.NodeDbEntry
	selfID  string
}

// Open opens (or creates) the spatial database at path and rebuilds the
// in-memory index from its contents.
func Open(path string, bus *changebus.Bus, clk clock.Clock, rnd randsrc.Source) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, locneterrors.Wrap(err, "open spatial database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, locneterrors.Wrap(err, "create entries bucket")
	}

	s := &Store{
		db:      db,
		bus:     bus,
		clk:     clk,
		rnd:     rnd,
		entries: make(map[string]protocol.NodeDbEntry),
	}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAll() error {
	return s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketEntries)
		return bkt.ForEach(func(k, v []byte) error {
			var e protocol.NodeDbEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return locneterrors.Wrap(err, "decode stored entry "+string(k))
			}
			s.entries[e.NodeID()] = e
			if e.RelationType == protocol.RelationSelf {
				s.selfID = e.NodeID()
			}
			return nil
		})
	})
}

func (s *Store) persist(e protocol.NodeDbEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return locneterrors.Wrap(err, "encode entry")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(e.NodeID()), data)
	})
}

func (s *Store) delete(nodeID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(nodeID))
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Bus returns the store's change-notification registry.
func (s *Store) Bus() *changebus.Bus {
	return s.bus
}

func validateCoordinate(loc geo.Location) error {
	if !loc.Valid() {
		return locneterrors.Newf(locneterrors.InvalidCoordinate,
			"invalid coordinate lat=%f lon=%f", loc.LatitudeDeg, loc.LongitudeDeg)
	}
	return nil
}

// StoreSelf installs or replaces the single Self entry representing the
// local node. Self never expires (invariant 1).
func (s *Store) StoreSelf(info protocol.NodeInfo) error {
	if err := validateCoordinate(info.Location); err != nil {
		return err
	}
	entry := protocol.NodeDbEntry{
		Info:         info,
		RelationType: protocol.RelationSelf,
	}

	s.mu.Lock()
	if s.selfID != "" && s.selfID != info.Profile.NodeID {
		delete(s.entries, s.selfID)
		s.delete(s.selfID) //nolint:errcheck
	}
	s.entries[info.Profile.NodeID] = entry
	s.selfID = info.Profile.NodeID
	s.mu.Unlock()

	return s.persist(entry)
}

// Self returns the local node's own entry.
func (s *Store) Self() protocol.NodeDbEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[s.selfID]
}

// Store inserts a brand-new entry. Fails with ConflictingID if the NodeId
// is already present (invariant 2). If expires is false, any ExpiresAtUnix
// on entry is cleared. The Change Bus only hears about Neighbour entries
// (spec.md §2); Colleague and Self writes publish nothing.
func (s *Store) Store(entry protocol.NodeDbEntry, expires bool) error {
	if err := validateCoordinate(entry.Info.Location); err != nil {
		return err
	}
	if !expires {
		entry.ExpiresAtUnix = 0
	}

	s.mu.Lock()
	if _, exists := s.entries[entry.NodeID()]; exists {
		s.mu.Unlock()
		return locneterrors.Newf(locneterrors.ConflictingID, "node %s already stored", entry.NodeID())
	}
	s.entries[entry.NodeID()] = entry
	s.mu.Unlock()

	if err := s.persist(entry); err != nil {
		return err
	}
	if entry.RelationType == protocol.RelationNeighbour {
		s.bus.PublishAdded(entry)
	}
	return nil
}

// Update refreshes an existing entry in place (relation, role, expiry).
// Fails with NotFound if the NodeId is not already stored. As with Store,
// only a Neighbour-relation update reaches the Change Bus.
func (s *Store) Update(entry protocol.NodeDbEntry, expires bool) error {
	if err := validateCoordinate(entry.Info.Location); err != nil {
		return err
	}
	if !expires {
		entry.ExpiresAtUnix = 0
	}

	s.mu.Lock()
	if _, exists := s.entries[entry.NodeID()]; !exists {
		s.mu.Unlock()
		return locneterrors.Newf(locneterrors.NotFound, "node %s not stored", entry.NodeID())
	}
	s.entries[entry.NodeID()] = entry
	s.mu.Unlock()

	if err := s.persist(entry); err != nil {
		return err
	}
	if entry.RelationType == protocol.RelationNeighbour {
		s.bus.PublishUpdated(entry)
	}
	return nil
}

// Remove deletes an entry. Fails with NotFound if the NodeId is not stored.
func (s *Store) Remove(nodeID string) error {
	s.mu.Lock()
	entry, exists := s.entries[nodeID]
	if !exists {
		s.mu.Unlock()
		return locneterrors.Newf(locneterrors.NotFound, "node %s not stored", nodeID)
	}
	delete(s.entries, nodeID)
	s.mu.Unlock()

	if err := s.delete(nodeID); err != nil {
		return err
	}
	if entry.RelationType == protocol.RelationNeighbour {
		s.bus.PublishRemoved(entry)
	}
	return nil
}

// Load returns the unique entry for nodeID, or ok=false if absent.
func (s *Store) Load(nodeID string) (protocol.NodeDbEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[nodeID]
	return e, ok
}

// ExpireOldNodes removes every entry whose ExpiresAtUnix is non-zero and in
// the past, publishing RemovedNode for each removed Neighbour (invariant 6).
func (s *Store) ExpireOldNodes() []protocol.NodeDbEntry {
	now := s.clk.Now().Unix()

	s.mu.Lock()
	var expired []protocol.NodeDbEntry
	for id, e := range s.entries {
		if e.ExpiresAtUnix != 0 && e.ExpiresAtUnix < now {
			expired = append(expired, e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		s.delete(e.NodeID()) //nolint:errcheck
		if e.RelationType == protocol.RelationNeighbour {
			s.bus.PublishRemoved(e)
		}
	}
	return expired
}

// GetNeighboursByDistance returns every Neighbour entry, sorted by
// ascending great-circle distance from Self.
func (s *Store) GetNeighboursByDistance() []protocol.NodeDbEntry {
	self := s.Self()

	s.mu.RLock()
	out := make([]protocol.NodeDbEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.RelationType == protocol.RelationNeighbour {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sortByDistanceThenID(out, self.Info.Location)
	return out
}

// GetClosestByDistance returns at most max entries within radiusKm of
// center, sorted ascending by distance from center, ties broken by NodeId.
func (s *Store) GetClosestByDistance(center geo.Location, radiusKm float64, max int, filter protocol.NeighbourFilter) []protocol.NodeDbEntry {
	s.mu.RLock()
	candidates := make([]protocol.NodeDbEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.RelationType == protocol.RelationSelf {
			continue
		}
		if !passesFilter(e, filter) {
			continue
		}
		if geo.DistanceKm(center, e.Info.Location) <= radiusKm {
			candidates = append(candidates, e)
		}
	}
	s.mu.RUnlock()

	sortByDistanceThenID(candidates, center)
	if max >= 0 && len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates
}

// GetRandom returns up to max entries sampled uniformly at random.
func (s *Store) GetRandom(max int, filter protocol.NeighbourFilter) []protocol.NodeDbEntry {
	s.mu.RLock()
	candidates := make([]protocol.NodeDbEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.RelationType == protocol.RelationSelf {
			continue
		}
		if passesFilter(e, filter) {
			candidates = append(candidates, e)
		}
	}
	s.mu.RUnlock()

	// Deterministic base ordering before shuffling so the same backing
	// map iteration order never leaks into which entries get picked.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].NodeID() < candidates[j].NodeID() })

	for i := len(candidates) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	if max >= 0 && len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates
}

// GetNodes returns every entry whose role matches.
func (s *Store) GetNodes(role protocol.Role) []protocol.NodeDbEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.NodeDbEntry, 0)
	for _, e := range s.entries {
		if e.Role == role {
			out = append(out, e)
		}
	}
	return out
}

// GetNodeCount returns the number of stored entries, optionally restricted
// to a single relation type.
func (s *Store) GetNodeCount(relation *protocol.RelationType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if relation == nil {
		return len(s.entries)
	}
	n := 0
	for _, e := range s.entries {
		if e.RelationType == *relation {
			n++
		}
	}
	return n
}

// DistanceKm is a passthrough to geo.DistanceKm for callers that only hold
// a Store reference.
func (s *Store) DistanceKm(a, b geo.Location) float64 {
	return geo.DistanceKm(a, b)
}

func passesFilter(e protocol.NodeDbEntry, filter protocol.NeighbourFilter) bool {
	switch filter {
	case protocol.NeighboursExcluded:
		return e.RelationType != protocol.RelationNeighbour
	default: // NeighboursIncluded or unset: no restriction
		return true
	}
}

func sortByDistanceThenID(entries []protocol.NodeDbEntry, from geo.Location) {
	sort.SliceStable(entries, func(i, j int) bool {
		di := geo.DistanceKm(from, entries[i].Info.Location)
		dj := geo.DistanceKm(from, entries[j].Info.Location)
		if di != dj {
			return di < dj
		}
		return entries[i].NodeID() < entries[j].NodeID()
	})
}
