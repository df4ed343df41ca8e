package dbg

import (
	"encoding/binary"

	metro "github.com/dgryski/go-metro"

	"txidx/kmer"
)

// hash seed is fixed so kmer placement is stable across processes
const kmerMapSeed = 0x5bd1e995

const minTabSize = 1024

// KmerPair is one stored (canonical kmer, entry) record
type KmerPair struct {
	Km kmer.Kmer
	E  KmerEntry
}

// KmerMap is a hash table from canonical kmer to KmerEntry. Records
// live in an append-only array in insertion order; the open-addressed
// index table holds offsets into it. Iteration follows insertion
// order, which keeps serialization deterministic.
type KmerMap struct {
	pairs []KmerPair
	tab   []int32 // -1 marks a free slot
	mask  uint64
}

func hashKmer(km kmer.Kmer) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(km))
	return metro.Hash64(b[:], kmerMapSeed)
}

func tabSizeFor(n int) int {
	size := minTabSize
	for n > size*3/4 {
		size <<= 1
	}
	return size
}

func NewKmerMap(sizeHint int) *KmerMap {
	m := &KmerMap{}
	m.rebuild(tabSizeFor(sizeHint))
	return m
}

func (m *KmerMap) rebuild(size int) {
	m.tab = make([]int32, size)
	m.mask = uint64(size - 1)
	for i := range m.tab {
		m.tab[i] = -1
	}
	for i, p := range m.pairs {
		j := hashKmer(p.Km) & m.mask
		for m.tab[j] >= 0 {
			j = (j + 1) & m.mask
		}
		m.tab[j] = int32(i)
	}
}

// Find returns a pointer to the entry of km, nil if absent. km must be
// canonical. The pointer is invalidated by the next Insert.
func (m *KmerMap) Find(km kmer.Kmer) *KmerEntry {
	j := hashKmer(km) & m.mask
	for {
		i := m.tab[j]
		if i < 0 {
			return nil
		}
		if m.pairs[i].Km == km {
			return &m.pairs[i].E
		}
		j = (j + 1) & m.mask
	}
}

// Insert stores e under km if absent and returns a pointer to the
// stored entry, existing or new.
func (m *KmerMap) Insert(km kmer.Kmer, e KmerEntry) *KmerEntry {
	if p := m.Find(km); p != nil {
		return p
	}
	if len(m.pairs)+1 > len(m.tab)*3/4 {
		m.rebuild(len(m.tab) << 1)
	}
	m.pairs = append(m.pairs, KmerPair{Km: km, E: e})
	i := int32(len(m.pairs) - 1)
	j := hashKmer(km) & m.mask
	for m.tab[j] >= 0 {
		j = (j + 1) & m.mask
	}
	m.tab[j] = i
	return &m.pairs[i].E
}

// Size returns the number of stored kmers
func (m *KmerMap) Size() int {
	return len(m.pairs)
}

// Range calls f for every record in insertion order
func (m *KmerMap) Range(f func(km kmer.Kmer, e *KmerEntry)) {
	for i := range m.pairs {
		f(m.pairs[i].Km, &m.pairs[i].E)
	}
}
