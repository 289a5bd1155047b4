package mesh

// MaxNeighbors bounds the neighbor table (spec §3). Overflow never evicts an
// existing neighbor for a new one; staleness pruning is the only removal
// path.
const MaxNeighbors = 150

// DefaultDirectThresholdDBm is the RSSI at or above which a neighbor is
// considered "direct" (spec §3).
const DefaultDirectThresholdDBm int8 = -70

// DefaultNeighborMaxAgeMs is the default staleness bound used by Prune.
const DefaultNeighborMaxAgeMs int64 = 30_000

// Neighbor is one entry in a node's neighbor table.
type Neighbor struct {
	NodeID       uint32
	GPS          GPSLocation
	RSSI         int8
	MessageCount uint32
	LastSeenMs   int64
	IsDirect     bool
}

// NeighborTable is a bounded, index-addressed neighbor set (spec §9:
// "integer indices into fixed-size arrays replace any pointer-identified
// records"). Zero value is not usable; construct with NewNeighborTable.
type NeighborTable struct {
	entries            [MaxNeighbors]Neighbor
	used               [MaxNeighbors]bool
	count              int
	directThresholdDBm int8
}

// NewNeighborTable constructs an empty table using directThresholdDBm as the
// RSSI cutoff for Neighbor.IsDirect.
func NewNeighborTable(directThresholdDBm int8) *NeighborTable {
	return &NeighborTable{directThresholdDBm: directThresholdDBm}
}

// indexOf returns the slot index of id, or -1 if not present.
func (t *NeighborTable) indexOf(id uint32) int {
	for i := 0; i < MaxNeighbors; i++ {
		if t.used[i] && t.entries[i].NodeID == id {
			return i
		}
	}
	return -1
}

// Upsert records a sighting of id with the given (possibly invalid) GPS and
// RSSI at nowMs. An existing entry is updated in place; a new entry is
// created in the first free slot. When the table is full and id is not
// already present, Upsert returns ErrOverflow and leaves the table
// unchanged.
func (t *NeighborTable) Upsert(id uint32, gps GPSLocation, rssi int8, nowMs int64) (*Neighbor, error) {
	if idx := t.indexOf(id); idx >= 0 {
		n := &t.entries[idx]
		n.RSSI = rssi
		n.LastSeenMs = nowMs
		n.MessageCount++
		if gps.Valid {
			n.GPS = gps
		}
		n.IsDirect = rssi >= t.directThresholdDBm
		return n, nil
	}

	for i := 0; i < MaxNeighbors; i++ {
		if t.used[i] {
			continue
		}
		t.used[i] = true
		t.count++
		t.entries[i] = Neighbor{
			NodeID:       id,
			GPS:          gps,
			RSSI:         rssi,
			MessageCount: 1,
			LastSeenMs:   nowMs,
			IsDirect:     rssi >= t.directThresholdDBm,
		}
		return &t.entries[i], nil
	}

	return nil, ErrOverflow
}

// Find returns the neighbor record for id, if present.
func (t *NeighborTable) Find(id uint32) (*Neighbor, bool) {
	idx := t.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	return &t.entries[idx], true
}

// Count returns the number of neighbor records currently held.
func (t *NeighborTable) Count() int { return t.count }

// DirectCount returns the number of neighbors currently marked IsDirect.
func (t *NeighborTable) DirectCount() int {
	n := 0
	t.ForEach(func(nb *Neighbor) {
		if nb.IsDirect {
			n++
		}
	})
	return n
}

// AverageRSSI returns the mean RSSI across all neighbor entries, or 0 when
// the table is empty.
func (t *NeighborTable) AverageRSSI() float64 {
	if t.count == 0 {
		return 0
	}
	var sum float64
	t.ForEach(func(nb *Neighbor) {
		sum += float64(nb.RSSI)
	})
	return sum / float64(t.count)
}

// Prune removes entries whose LastSeenMs is older than maxAgeMs relative to
// nowMs. It returns the number of entries removed.
func (t *NeighborTable) Prune(maxAgeMs, nowMs int64) int {
	removed := 0
	for i := 0; i < MaxNeighbors; i++ {
		if !t.used[i] {
			continue
		}
		if nowMs-t.entries[i].LastSeenMs > maxAgeMs {
			t.used[i] = false
			t.entries[i] = Neighbor{}
			t.count--
			removed++
		}
	}
	return removed
}

// ForEach invokes fn once per occupied entry. fn must not retain the
// pointer beyond the call: the backing array may be mutated by subsequent
// Upsert/Prune calls.
func (t *NeighborTable) ForEach(fn func(*Neighbor)) {
	for i := 0; i < MaxNeighbors; i++ {
		if t.used[i] {
			fn(&t.entries[i])
		}
	}
}
