package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/cespare/xxhash"

	"txidx/bnt"
	"txidx/dbg"
	"txidx/ingest"
	"txidx/kmer"
)

// IndexVersion is bumped on every change to the file format
const IndexVersion uint64 = 10

// DefaultSkip is the query-time back-off probe stride
const DefaultSkip = 1

// KmerIndex maps canonical kmers of the target transcriptome to
// contigs of the compacted de Bruijn graph and their equivalence
// classes. Built once, read-only afterwards; the query methods are
// safe for concurrent use.
type KmerIndex struct {
	K        int
	NumTrans int
	Skip     int

	DBGraph *dbg.Graph
	ECMap   [][]int32

	TargetNames []string
	TargetLens  []int32

	ecmapinv ecTable

	targetSeqs []string
	seqOnce    sync.Once
}

func New(k int) *KmerIndex {
	if k < 3 || k > kmer.MaxK || k%2 == 0 {
		log.Fatalf("[New] k: %d must be odd and in range [3,%d]\n", k, kmer.MaxK)
	}
	return &KmerIndex{K: k, Skip: DefaultSkip, ecmapinv: newECTable()}
}

// TRInfo says transcript TrID covers contig kmer positions
// [Start,Stop) in orientation Sense. Build-time only.
type TRInfo struct {
	TrID  int32
	Start int
	Stop  int
	Sense bool
}

// ecTable interns sorted transcript id lists. Keys are xxhash sums
// with exact-compare buckets, ids index ECMap.
type ecTable struct {
	m map[uint64][]int32
}

func newECTable() ecTable {
	return ecTable{m: make(map[uint64][]int32)}
}

func hashIDs(u []int32) uint64 {
	b := make([]byte, 4*len(u))
	for i, x := range u {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(x))
	}
	return xxhash.Sum64(b)
}

func (t ecTable) lookup(ecmap [][]int32, u []int32) (int32, bool) {
	for _, id := range t.m[hashIDs(u)] {
		if equalInt32s(ecmap[id], u) {
			return id, true
		}
	}
	return -1, false
}

func (t ecTable) insert(u []int32, id int32) {
	h := hashIDs(u)
	t.m[h] = append(t.m[h], id)
}

func equalInt32s(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// uniqueInt32s dedupes a sorted slice in place
func uniqueInt32s(u []int32) []int32 {
	if len(u) < 2 {
		return u
	}
	j := 1
	for i := 1; i < len(u); i++ {
		if u[i] != u[i-1] {
			u[j] = u[i]
			j++
		}
	}
	return u[:j]
}

func uniqueInts(u []int) []int {
	if len(u) < 2 {
		return u
	}
	j := 1
	for i := 1; i < len(u); i++ {
		if u[i] != u[i-1] {
			u[j] = u[i]
			j++
		}
	}
	return u[:j]
}

// BuildTranscripts builds the full index from normalized transcripts:
// the kmer table and contigs, then the equivalence classes.
func (idx *KmerIndex) BuildTranscripts(trs []ingest.Transcript) {
	idx.NumTrans = len(trs)
	seqs := make([][]byte, len(trs))
	for i, tr := range trs {
		seqs[i] = tr.Seq
		idx.TargetNames = append(idx.TargetNames, tr.Name)
		idx.TargetLens = append(idx.TargetLens, tr.RawLen)
	}

	// each target seeds its own singleton class
	for i := range trs {
		single := []int32{int32(i)}
		idx.ecmapinv.insert(single, int32(i))
		idx.ECMap = append(idx.ECMap, single)
	}

	idx.BuildDeBruijnGraph(seqs)
	idx.BuildEquivalenceClasses(seqs)
}

// BuildDeBruijnGraph gathers the canonical kmer set and walks it into
// maximal unambiguous contigs.
func (idx *KmerIndex) BuildDeBruijnGraph(seqs [][]byte) {
	k := idx.K
	g := dbg.NewGraph(k)
	idx.DBGraph = g

	fmt.Printf("[BuildDeBruijnGraph] counting k-mers ... ")
	for _, seq := range seqs {
		sc := kmer.NewScanner(seq, k)
		for {
			km, _, ok := sc.Next()
			if !ok {
				break
			}
			g.Kmap.Insert(km.Rep(k), dbg.EmptyKmerEntry())
		}
	}
	fmt.Printf("done\n")

	fmt.Printf("[BuildDeBruijnGraph] building target de Bruijn graph ... ")
	g.BuildUnitigs()
	fmt.Printf("done\n")
}

// BuildEquivalenceClasses computes per-contig transcript membership,
// splits contigs where membership changes, interns each distinct
// transcript set and records contig occurrences on each transcript.
func (idx *KmerIndex) BuildEquivalenceClasses(seqs [][]byte) {
	fmt.Printf("[BuildEquivalenceClasses] creating equivalence classes ... ")
	k := idx.K
	g := idx.DBGraph

	trinfos := make([][]TRInfo, len(g.Contigs))
	for i, seq := range seqs {
		seqlen := len(seq) - k + 1 // number of kmers
		sc := kmer.NewScanner(seq, k)
		for {
			km, kpos, ok := sc.Next()
			if !ok {
				break
			}
			rep := km.Rep(k)
			forward := km == rep
			val := g.Kmap.Find(rep)
			if val == nil {
				log.Fatalf("[BuildEquivalenceClasses] target %d kmer at %d missing from graph\n", i, kpos)
			}

			tr := TRInfo{TrID: int32(i)}
			jump := kpos
			if forward == val.IsFw() {
				tr.Sense = true
				tr.Start = val.GetPos()
				if int(val.Length)-tr.Start > seqlen-kpos {
					// target stops inside the contig
					tr.Stop = tr.Start + seqlen - kpos
					jump = seqlen
				} else {
					tr.Stop = int(val.Length)
					jump = kpos + (tr.Stop - tr.Start) - 1
				}
			} else {
				tr.Sense = false
				tr.Stop = val.GetPos() + 1
				stpos := tr.Stop - (seqlen - kpos)
				if stpos > 0 {
					tr.Start = stpos
					jump = seqlen
				} else {
					tr.Start = 0
					jump = kpos + (tr.Stop - tr.Start) - 1
				}
			}
			trinfos[val.ID] = append(trinfos[val.ID], tr)
			sc.JumpTo(jump + 1)
		}
	}

	trinfos = idx.FixSplitContigs(trinfos)

	// intern the transcript set of each contig
	for ind := range g.Contigs {
		var u []int32
		for _, x := range trinfos[ind] {
			u = append(u, x.TrID)
		}
		if len(u) == 0 {
			log.Fatalf("[BuildEquivalenceClasses] contig %d has no transcripts\n", ind)
		}
		sort.Slice(u, func(a, b int) bool { return u[a] < u[b] })
		u = uniqueInt32s(u)

		ec, ok := idx.ecmapinv.lookup(idx.ECMap, u)
		if !ok {
			ec = int32(len(idx.ECMap))
			idx.ecmapinv.insert(u, ec)
			idx.ECMap = append(idx.ECMap, u)
		}
		g.Contigs[ind].EC = ec
	}
	// correct the ec of every kmer in each contig
	g.Kmap.Range(func(km kmer.Kmer, e *dbg.KmerEntry) {
		e.EC = g.Contigs[e.ID].EC
	})

	// map transcripts to contigs, rebuilding each target as a check
	for i, seq := range seqs {
		seqlen := len(seq) - k + 1
		var stmp []byte
		sc := kmer.NewScanner(seq, k)
		for {
			km, kpos, ok := sc.Next()
			if !ok {
				break
			}
			rep := km.Rep(k)
			forward := km == rep
			val := g.Kmap.Find(rep)
			if val == nil {
				log.Fatalf("[BuildEquivalenceClasses] target %d kmer at %d missing from graph\n", i, kpos)
			}
			info := dbg.ContigTran{TrID: int32(i), Pos: int32(kpos), Sense: forward == val.IsFw()}
			jump := kpos + int(val.Length) - 1
			c := &g.Contigs[val.ID]
			c.Transcripts = append(c.Transcripts, info)
			r := c.Seq
			if !info.Sense {
				r = bnt.RevComp(c.Seq)
			}
			if info.Pos == 0 {
				stmp = append(stmp, r...)
			} else {
				stmp = append(stmp, r[k-1:]...)
			}
			sc.JumpTo(jump + 1)
		}
		if seqlen > 0 && !bytes.Equal(seq, stmp) {
			log.Fatalf("[BuildEquivalenceClasses] target %d not rebuilt from its contigs\n\twant: %s\n\tgot:  %s\n", i, seq, stmp)
		}
	}

	// double check the contig occurrences
	for ci := range g.Contigs {
		c := &g.Contigs[ci]
		for _, info := range c.Transcripts {
			r := c.Seq
			if !info.Sense {
				r = bnt.RevComp(c.Seq)
			}
			if r != string(seqs[info.TrID][info.Pos:int(info.Pos)+len(r)]) {
				log.Fatalf("[BuildEquivalenceClasses] contig %d occurrence on target %d at %d does not match\n", ci, info.TrID, info.Pos)
			}
		}
	}

	fmt.Printf("done\n")
	fmt.Printf("[BuildEquivalenceClasses] target de Bruijn graph has %d contigs and contains %d k-mers\n", len(g.Contigs), g.NumKmers())
}

// FixSplitContigs splits each contig whose transcript membership
// changes along its length at the recorded coverage breakpoints, so
// that afterwards every transcript covers its contigs end to end.
func (idx *KmerIndex) FixSplitContigs(trinfos [][]TRInfo) [][]TRInfo {
	k := idx.K
	g := idx.DBGraph

	numContigs := len(g.Contigs)
	for ind := 0; ind < numContigs; ind++ {
		contigLen := int(g.Contigs[ind].Length)
		all := true
		for _, x := range trinfos[ind] {
			if x.Start != 0 || x.Stop != contigLen {
				all = false
			}
			if x.Start >= x.Stop {
				log.Fatalf("[FixSplitContigs] contig %d empty cover [%d,%d)\n", ind, x.Start, x.Stop)
			}
		}
		if all {
			continue
		}

		var brpoints []int
		for _, x := range trinfos[ind] {
			brpoints = append(brpoints, x.Start, x.Stop)
		}
		sort.Ints(brpoints)
		brpoints = uniqueInts(brpoints)
		if brpoints[0] != 0 || brpoints[len(brpoints)-1] != contigLen {
			log.Fatalf("[FixSplitContigs] contig %d breakpoints %v do not span [0,%d]\n", ind, brpoints, contigLen)
		}

		seq := g.Contigs[ind].Seq
		origID := g.Contigs[ind].ID
		oldtrinfo := trinfos[ind]

		for j := 1; j < len(brpoints); j++ {
			newc := dbg.Contig{
				Length: int32(brpoints[j] - brpoints[j-1]),
				EC:     -1,
				Seq:    seq[brpoints[j-1] : brpoints[j]+k-1],
			}
			if j > 1 {
				newc.ID = int32(len(g.Contigs))
				g.Contigs = append(g.Contigs, newc)
			} else {
				newc.ID = origID
				g.Contigs[ind] = newc
			}

			// repair the kmer records of the slice
			sc := kmer.NewScanner([]byte(newc.Seq), k)
			for {
				km, kpos, ok := sc.Next()
				if !ok {
					break
				}
				rep := km.Rep(k)
				val := g.Kmap.Find(rep)
				if val == nil {
					log.Fatalf("[FixSplitContigs] contig %d slice kmer at %d missing from graph\n", ind, kpos)
				}
				*val = dbg.NewKmerEntry(int(newc.ID), int(newc.Length), kpos, km == rep)
			}

			// repair the transcript infos of the slice
			var newtrinfo []TRInfo
			for _, x := range oldtrinfo {
				if !(x.Stop <= brpoints[j-1] || x.Start >= brpoints[j]) {
					newtrinfo = append(newtrinfo, TRInfo{
						TrID:  x.TrID,
						Start: 0,
						Stop:  int(newc.Length),
						Sense: x.Sense,
					})
				}
			}
			if j > 1 {
				trinfos = append(trinfos, newtrinfo)
			} else {
				trinfos[ind] = newtrinfo
			}
		}
	}
	return trinfos
}

// LoadTranscriptSequences rebuilds the target sequences from contig
// substrings on first use and caches them.
func (idx *KmerIndex) LoadTranscriptSequences() []string {
	idx.seqOnce.Do(func() {
		k := idx.K
		type posContig struct {
			ci int
			ct dbg.ContigTran
		}
		transContigs := make([][]posContig, idx.NumTrans)
		for ci := range idx.DBGraph.Contigs {
			for _, ct := range idx.DBGraph.Contigs[ci].Transcripts {
				transContigs[ct.TrID] = append(transContigs[ct.TrID], posContig{ci, ct})
			}
		}
		idx.targetSeqs = make([]string, idx.NumTrans)
		for i := range transContigs {
			v := transContigs[i]
			sort.Slice(v, func(a, b int) bool { return v[a].ct.Pos < v[b].ct.Pos })
			var seq []byte
			for _, pc := range v {
				s := idx.DBGraph.Contigs[pc.ci].Seq
				if !pc.ct.Sense {
					s = bnt.RevComp(s)
				}
				if pc.ct.Pos != 0 {
					s = s[k-1:]
				}
				seq = append(seq, s...)
			}
			idx.targetSeqs[i] = string(seq)
		}
	})
	return idx.targetSeqs
}
