package dbg

import (
	"log"

	"txidx/bnt"
	"txidx/kmer"
)

const (
	posMask = 0x0FFFFFFF
	dirMask = 0xF0000000
)

// KmerEntry locates one canonical kmer inside its contig. Pos packs a
// 28 bit offset with a direction nibble: high nibble clear means the
// contig-oriented kmer at this offset is canonical. The four fields
// are the serialized layout of a kmer record.
type KmerEntry struct {
	Pos    uint32
	Length int32
	ID     int32
	EC     int32
}

// NewKmerEntry builds an entry for kmer number pos of contig id
func NewKmerEntry(id, length, pos int, isFw bool) KmerEntry {
	var e KmerEntry
	e.ID = int32(id)
	e.Length = int32(length)
	e.EC = -1
	e.SetPos(pos)
	e.SetDir(isFw)
	return e
}

// EmptyKmerEntry is the sentinel stored before contigs are assigned
func EmptyKmerEntry() KmerEntry {
	return KmerEntry{Pos: posMask, Length: 0, ID: -1, EC: -1}
}

func (e KmerEntry) GetPos() int {
	return int(e.Pos & posMask)
}

func (e KmerEntry) IsFw() bool {
	return e.Pos&dirMask == 0
}

func (e *KmerEntry) SetPos(p int) {
	e.Pos = e.Pos&dirMask | uint32(p)&posMask
}

func (e *KmerEntry) SetDir(isFw bool) {
	if isFw {
		e.Pos = e.Pos & posMask
	} else {
		e.Pos = e.Pos | dirMask
	}
}

// GetDist returns the number of kmers between this one and the far
// junction end of the contig, walking in direction fw
func (e KmerEntry) GetDist(fw bool) int {
	if e.IsFw() == fw {
		return int(e.Length) - 1 - e.GetPos()
	}
	return e.GetPos()
}

// ContigTran records one occurrence of a contig on a transcript: the
// kmer index where the contig starts and whether the transcript runs
// sense to the contig's canonical strand.
type ContigTran struct {
	TrID  int32
	Pos   int32
	Sense bool
}

// Contig is a maximal unbranched path of Length kmers, Seq holds
// Length+k-1 bases in canonical orientation.
type Contig struct {
	ID          int32
	Length      int32
	EC          int32
	Seq         string
	Transcripts []ContigTran
}

// Graph is the compacted de Bruijn graph: the canonical kmer table and
// the contig arena it points into.
type Graph struct {
	K       int
	Kmap    *KmerMap
	Contigs []Contig
}

func NewGraph(k int) *Graph {
	return &Graph{K: k, Kmap: NewKmerMap(0)}
}

// NumKmers returns the number of canonical kmers
func (g *Graph) NumKmers() int {
	return g.Kmap.Size()
}

// fwStep reports the unique forward extension of end, requiring the
// extension to have exactly one predecessor so contigs never merge
// across a branch.
func (g *Graph) fwStep(end kmer.Kmer) (kmer.Kmer, bool) {
	k := g.K
	j := -1
	fwCount := 0
	for i := 0; i < bnt.BaseTypeNum; i++ {
		fwRep := end.ForwardBase(k, byte(i)).Rep(k)
		if g.Kmap.Find(fwRep) != nil {
			j = i
			fwCount++
			if fwCount > 1 {
				return end, false
			}
		}
	}
	if fwCount != 1 {
		return end, false
	}

	fw := end.ForwardBase(k, byte(j))

	bwCount := 0
	for i := 0; i < bnt.BaseTypeNum; i++ {
		bwRep := fw.BackwardBase(k, byte(i)).Rep(k)
		if g.Kmap.Find(bwRep) != nil {
			bwCount++
			if bwCount > 1 {
				return end, false
			}
		}
	}
	if bwCount != 1 {
		return end, false
	}
	if fw == end {
		return end, false
	}
	return fw, true
}

// BuildUnitigs partitions the kmer set into maximal unbranched contigs.
// Every stored kmer must still carry the empty sentinel entry.
func (g *Graph) BuildUnitigs() {
	k := g.K
	for si := 0; si < len(g.Kmap.pairs); si++ {
		if g.Kmap.pairs[si].E.ID != -1 {
			continue
		}
		km := g.Kmap.pairs[si].Km
		twin := km.Twin(k)

		// forward extension
		end, last := km, km
		selfLoop := false
		flist := []kmer.Kmer{km}
		for {
			fw, ok := g.fwStep(end)
			if !ok {
				break
			}
			end = fw
			if end == km {
				selfLoop = true
				break
			} else if end == twin {
				// mobius loop; a hairpin of one kmer is not a loop
				selfLoop = len(flist) > 1
				break
			} else if end == last.Twin(k) {
				// hairpin
				break
			}
			flist = append(flist, end)
			last = end
		}

		// backward extension runs forward from the twin
		var blist []kmer.Kmer
		if !selfLoop {
			front, first := twin, twin
			for {
				fw, ok := g.fwStep(front)
				if !ok {
					break
				}
				front = fw
				if front == twin {
					selfLoop = true
					break
				} else if front == km {
					selfLoop = true
					break
				} else if front == first.Twin(k) {
					break
				}
				blist = append(blist, front)
				first = front
			}
		}

		klist := make([]kmer.Kmer, 0, len(blist)+len(flist))
		for i := len(blist) - 1; i >= 0; i-- {
			klist = append(klist, blist[i].Twin(k))
		}
		klist = append(klist, flist...)

		contigLen := len(klist)
		id := len(g.Contigs)
		seq := make([]byte, 0, contigLen+k-1)
		seq = append(seq, klist[0].String(k)...)
		for i, x := range klist {
			xr := x.Rep(k)
			forward := x == xr
			p := g.Kmap.Find(xr)
			if p == nil || p.ID != -1 {
				log.Fatalf("[BuildUnitigs] contig %d kmer %d already assigned\n", id, i)
			}
			*p = NewKmerEntry(id, contigLen, i, forward)
			if i > 0 {
				seq = append(seq, bnt.BitNtCharUp[x.LastBase()])
			}
		}
		g.Contigs = append(g.Contigs, Contig{
			ID:     int32(id),
			Length: int32(contigLen),
			EC:     -1,
			Seq:    string(seq),
		})
	}
}
