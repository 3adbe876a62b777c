package engine

import (
	"bytes"
	"encoding/gob"

	"github.com/hailam/chessmind/internal/board"
)

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // Exact score
	TTLowerBound               // Failed high (beta cutoff)
	TTUpperBound               // Failed low
)

// TTEntry represents an entry in the transposition table.
type TTEntry struct {
	Key      uint32     // Upper 32 bits of Zobrist hash for verification
	BestMove board.Move // Best move found
	Score    int32      // Score (bounded by flag), position-relative
	Depth    int8       // Remaining plies at which it was searched
	Flag     TTFlag     // Type of bound
}

// TranspositionTable is a fixed-size, open-addressed hash table for
// storing search results.
type TranspositionTable struct {
	entries []TTEntry
	size    uint64
	mask    uint64

	hits   uint64
	probes uint64
}

// NewTranspositionTable creates a transposition table sized from a
// megabyte budget, rounded down to a power of two entry count.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	entrySize := uint64(16)
	numEntries := (uint64(sizeMB) * 1024 * 1024) / entrySize
	numEntries = roundDownToPowerOf2(numEntries)
	if numEntries == 0 {
		numEntries = 1
	}

	return &TranspositionTable{
		entries: make([]TTEntry, numEntries),
		size:    numEntries,
		mask:    numEntries - 1,
	}
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

// Probe looks up a position in the transposition table. Returns the
// entry and true if a verified match is present, else false.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	tt.probes++

	idx := hash & tt.mask
	entry := tt.entries[idx]

	if entry.Depth > 0 && entry.Key == uint32(hash>>32) {
		tt.hits++
		return entry, true
	}

	return TTEntry{}, false
}

// Store saves a position in the transposition table using the exact
// replacement policy: insert if empty, replace if strictly deeper,
// and on equal-or-shallower depth replace only when the new entry is
// Exact and the existing one is not.
func (tt *TranspositionTable) Store(hash uint64, depth int, score int, flag TTFlag, bestMove board.Move) {
	idx := hash & tt.mask
	entry := &tt.entries[idx]

	replace := entry.Depth == 0 ||
		depth > int(entry.Depth) ||
		(flag == TTExact && entry.Flag != TTExact)

	if replace {
		entry.Key = uint32(hash >> 32)
		entry.BestMove = bestMove
		entry.Score = int32(score)
		entry.Depth = int8(depth)
		entry.Flag = flag
	}
}

// Clear empties the transposition table.
func (tt *TranspositionTable) Clear() {
	for i := range tt.entries {
		tt.entries[i] = TTEntry{}
	}
	tt.hits = 0
	tt.probes = 0
}

// HashFull returns the permille (parts per thousand) of the table in use.
func (tt *TranspositionTable) HashFull() int {
	used := 0
	sampleSize := 1000
	if uint64(sampleSize) > tt.size {
		sampleSize = int(tt.size)
	}

	for i := 0; i < sampleSize; i++ {
		if tt.entries[i].Depth > 0 {
			used++
		}
	}

	return (used * 1000) / sampleSize
}

// HitRate returns the cache hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// Size returns the number of entries in the table.
func (tt *TranspositionTable) Size() uint64 {
	return tt.size
}

// ttSnapshotEntry pairs a stored entry with a 64-bit hash rebuilt from
// its slot index (low bits) and TTEntry.Key (upper 32 bits); the bits
// in between are zero. Restoring into a table of the same or a smaller
// size puts each entry in the slot its position probes; in a larger
// table an entry lands in a slot that its position does not probe.
type ttSnapshotEntry struct {
	Hash  uint64
	Entry TTEntry
}

// MarshalBinary serializes the occupied entries for snapshotting to
// disk (see internal/store), keeping with each the hash rebuilt from
// its slot and key (see ttSnapshotEntry).
func (tt *TranspositionTable) MarshalBinary() ([]byte, error) {
	occupied := make([]ttSnapshotEntry, 0, tt.size/4)
	for idx, e := range tt.entries {
		if e.Depth > 0 {
			hash := uint64(idx)&tt.mask | uint64(e.Key)<<32
			occupied = append(occupied, ttSnapshotEntry{Hash: hash, Entry: e})
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(occupied); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores entries from a snapshot produced by
// MarshalBinary, re-hashing each into the current table by its
// snapshot hash. Entries that collide are resolved by the normal Store
// replacement policy.
func (tt *TranspositionTable) UnmarshalBinary(data []byte) error {
	var occupied []ttSnapshotEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&occupied); err != nil {
		return err
	}

	for _, se := range occupied {
		e := se.Entry
		tt.Store(se.Hash, int(e.Depth), int(e.Score), e.Flag, e.BestMove)
	}
	return nil
}

// isWhiteMateScore reports whether score falls in the mate band that
// encodes "White is mated" (very negative, White-relative).
func isWhiteMateScore(score int) bool {
	return score <= -MateThreshold
}

// isBlackMateScore reports whether score falls in the mate band that
// encodes "Black is mated" (very positive, White-relative).
func isBlackMateScore(score int) bool {
	return score >= MateThreshold
}

// AdjustScoreForStore converts a root-relative mate score into the
// position-relative form stored in the TT: the stored distance is
// measured from the node itself, so a root-relative score of
// -MateScore+m seen at ply p becomes -MateScore+(m-p), and
// symmetrically for the positive band.
func AdjustScoreForStore(score int, plyFromRoot int) int {
	if isWhiteMateScore(score) {
		return score - plyFromRoot
	}
	if isBlackMateScore(score) {
		return score + plyFromRoot
	}
	return score
}

// AdjustScoreForProbe converts a position-relative TT mate score back
// into one relative to the current root, inverting
// AdjustScoreForStore at the probing node's ply.
func AdjustScoreForProbe(score int, plyFromRoot int) int {
	if isWhiteMateScore(score) {
		return score + plyFromRoot
	}
	if isBlackMateScore(score) {
		return score - plyFromRoot
	}
	return score
}
