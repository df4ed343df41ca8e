package index

import (
	"txidx/dbg"
	"txidx/kmer"
	"txidx/utils"
)

// Match is one query hit: the entry of a matched kmer and the read
// offset it was found at.
type Match struct {
	Val dbg.KmerEntry
	Pos int
}

// Match scans the kmers of read s against the graph. Inside a contig
// it skips ahead to the far junction, since every kmer of a contig
// witnesses the same equivalence class; a probe that lands in a
// different contig falls back to incremental scanning up to the jump
// target. Matched entries are emitted with their read offsets.
func (idx *KmerIndex) Match(s []byte) []Match {
	k := idx.K
	l := len(s)
	g := idx.DBGraph
	var v []Match

	sc := kmer.NewScanner(s, k)
	for {
		km, pos, ok := sc.Next()
		if !ok {
			break
		}
		rep := km.Rep(k)
		val := g.Kmap.Find(rep)
		if val == nil {
			continue
		}
		v = append(v, Match{*val, pos})

		forward := km == rep
		dist := val.GetDist(forward)
		if dist < 2 {
			continue
		}

		// jump to the far junction, clamped to the last kmer
		nextPos := utils.MinInt(pos+dist, l-k)
		var val2 *dbg.KmerEntry
		if km2, ok2 := kmer.At(s, nextPos, k); ok2 {
			val2 = g.Kmap.Find(km2.Rep(k))
		}

		found2 := false
		found2pos := pos + dist
		if val2 == nil {
			found2 = true
			found2pos = pos
		} else if val2.ID == val.ID {
			found2 = true
			found2pos = pos + dist
		}
		if found2 {
			if found2pos >= l-k {
				// tail hit past the scan window
				v = append(v, Match{*val, l - k})
				break
			}
			v = append(v, Match{*val, found2pos})
			sc.JumpTo(nextPos + 1)
			continue
		}

		// landed in a different contig, try the middle kmer
		foundMiddle := false
		if dist > 4 {
			middlePos := (pos + nextPos) / 2
			found3pos := pos + dist
			if km3, ok3 := kmer.At(s, middlePos, k); ok3 {
				if val3 := g.Kmap.Find(km3.Rep(k)); val3 != nil {
					if val3.ID == val.ID {
						foundMiddle = true
						found3pos = middlePos
					} else if val3.ID == val2.ID {
						foundMiddle = true
						found3pos = pos + dist
					}
					if foundMiddle {
						v = append(v, Match{*val3, found3pos})
						if nextPos >= l-k {
							return v
						}
						sc.JumpTo(nextPos + 1)
					}
				}
			}
		}
		if foundMiddle {
			continue
		}

		// back off and scan towards the jump target, probing every
		// Skip-th kmer
		for j := 0; ; j++ {
			if j == idx.Skip {
				j = 0
			}
			bkm, bpos, bok := sc.Next()
			if !bok {
				return v
			}
			if j == 0 {
				if bval := g.Kmap.Find(bkm.Rep(k)); bval != nil {
					v = append(v, Match{*bval, bpos})
				}
			}
			if bpos >= nextPos {
				break
			}
		}
	}
	return v
}

// firstHit reports the inferred contig position and strand of the
// first matching kmer of s.
func (idx *KmerIndex) firstHit(s []byte) (p int, d bool, c int32, found bool) {
	k := idx.K
	sc := kmer.NewScanner(s, k)
	for {
		km, pos, ok := sc.Next()
		if !ok {
			return 0, false, -1, false
		}
		rep := km.Rep(k)
		val := idx.DBGraph.Kmap.Find(rep)
		if val == nil {
			continue
		}
		forward := km == rep
		if forward == val.IsFw() {
			return val.GetPos() - pos, true, val.ID, true
		}
		return val.GetPos() + k + pos, false, val.ID, true
	}
}

// MapPair infers the fragment length of a read pair. Both mates must
// hit the same contig on opposite strands, otherwise -1.
func (idx *KmerIndex) MapPair(s1, s2 []byte) int {
	p1, d1, c1, found1 := idx.firstHit(s1)
	if !found1 {
		return -1
	}
	p2, d2, c2, found2 := idx.firstHit(s2)
	if !found2 {
		return -1
	}
	if c1 != c2 {
		return -1
	}
	if d1 == d2 {
		// mates map to the same strand
		return -1
	}
	if p1 > p2 {
		return p1 - p2
	}
	return p2 - p1
}

// FindPosition projects a matched kmer onto transcript tr. km is the
// p-th kmer of the read and val its entry. Returns the 1-based
// position and strand of the read on tr, or (-1, true) when the
// contig does not occur on tr.
func (idx *KmerIndex) FindPosition(tr int, km kmer.Kmer, val dbg.KmerEntry, p int) (int, bool) {
	if val.ID < 0 {
		return -1, true
	}
	fw := km == km.Rep(idx.K)
	csense := fw == val.IsFw()

	trpos := -1
	trsense := true
	for _, x := range idx.DBGraph.Contigs[val.ID].Transcripts {
		if int(x.TrID) == tr {
			trpos = int(x.Pos)
			trsense = x.Sense
			break
		}
	}
	if trpos == -1 {
		return -1, true
	}

	if trsense {
		if csense {
			return trpos + val.GetPos() - p + 1, csense
		}
		return trpos + val.GetPos() + idx.K + p, csense
	}
	if csense {
		return trpos + (int(val.Length) - val.GetPos() - 1) + idx.K + p, !csense
	}
	return trpos + (int(val.Length) - val.GetPos()) - p, !csense
}

// FindPositionKmer looks km up first; (-1, true) when absent.
func (idx *KmerIndex) FindPositionKmer(tr int, km kmer.Kmer, p int) (int, bool) {
	val := idx.DBGraph.Kmap.Find(km.Rep(idx.K))
	if val == nil {
		return -1, true
	}
	return idx.FindPosition(tr, km, *val, p)
}

// Intersect returns the sorted intersection of ecmap[ec] and v. v
// must be sorted and duplicate free. Empty when ec is out of range.
func (idx *KmerIndex) Intersect(ec int, v []int32) []int32 {
	res := []int32{}
	if ec < 0 || ec >= len(idx.ECMap) {
		return res
	}
	u := idx.ECMap[ec]
	a, b := 0, 0
	for a < len(u) && b < len(v) {
		switch {
		case u[a] < v[b]:
			a++
		case v[b] < u[a]:
			b++
		default:
			res = append(res, u[a])
			a++
			b++
		}
	}
	return res
}
