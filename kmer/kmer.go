package kmer

import (
	"log"

	"txidx/bnt"
)

// Kmer is a DNA sequence of length k packed 2 bits per base, the first
// base in the most significant pair so that integer order equals
// lexicographic order. k <= MaxK bases fit one uint64.
type Kmer uint64

const MaxK = 31

// Mask returns the low 2k bit mask for length k kmers
func Mask(k int) Kmer {
	return (1 << uint(2*k)) - 1
}

// FromBytes packs k bases of seq starting at pos, false if the window
// holds a non-ACGT byte
func FromBytes(seq []byte, pos, k int) (Kmer, bool) {
	km, _, ok := fromBytes(seq, pos, k)
	return km, ok
}

// fromBytes also reports the absolute index of the first invalid byte
func fromBytes(seq []byte, pos, k int) (km Kmer, badIdx int, ok bool) {
	for i := 0; i < k; i++ {
		b := bnt.Base2Bnt[seq[pos+i]]
		if b >= bnt.BaseTypeNum {
			return 0, pos + i, false
		}
		km = km<<bnt.NumBitsInBase | Kmer(b)
	}
	return km, 0, true
}

// At returns the kmer at pos, false if out of range or invalid
func At(seq []byte, pos, k int) (Kmer, bool) {
	if pos < 0 || pos+k > len(seq) {
		return 0, false
	}
	return FromBytes(seq, pos, k)
}

// FromString packs a kmer with k = len(s)
func FromString(s string) Kmer {
	km, ok := FromBytes([]byte(s), 0, len(s))
	if !ok {
		log.Fatalf("[FromString] seq: %s contains non ACGT base\n", s)
	}
	return km
}

// Twin returns the reverse complement
func (km Kmer) Twin(k int) Kmer {
	var tw Kmer
	for i := 0; i < k; i++ {
		tw = tw<<bnt.NumBitsInBase | Kmer(bnt.BntRev[km&bnt.BaseMask])
		km >>= bnt.NumBitsInBase
	}
	return tw
}

// Rep returns the canonical form, the smaller of km and its twin
func (km Kmer) Rep(k int) Kmer {
	tw := km.Twin(k)
	if tw < km {
		return tw
	}
	return km
}

// ForwardBase shifts one base left and appends the 2bit code b
func (km Kmer) ForwardBase(k int, b byte) Kmer {
	return (km<<bnt.NumBitsInBase | Kmer(b)) & Mask(k)
}

// BackwardBase shifts one base right and prepends the 2bit code b
func (km Kmer) BackwardBase(k int, b byte) Kmer {
	return km>>bnt.NumBitsInBase | Kmer(b)<<uint(bnt.NumBitsInBase*(k-1))
}

// LastBase returns the 2bit code of the final base
func (km Kmer) LastBase() byte {
	return byte(km & bnt.BaseMask)
}

func (km Kmer) String(k int) string {
	buf := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		buf[i] = bnt.BitNtCharUp[km&bnt.BaseMask]
		km >>= bnt.NumBitsInBase
	}
	return string(buf)
}

// Scanner iterates the valid kmers of a sequence in order, skipping
// windows that contain non ACGT bytes.
type Scanner struct {
	seq    []byte
	k      int
	pos    int // next position to try
	cur    Kmer
	curPos int // position of cur, -1 when cur cannot be rolled forward
}

func NewScanner(seq []byte, k int) *Scanner {
	if k < 3 || k > MaxK {
		log.Fatalf("[NewScanner] k: %d out of range [3,%d]\n", k, MaxK)
	}
	return &Scanner{seq: seq, k: k, curPos: -1}
}

// Next returns the next kmer and its 0-based position
func (s *Scanner) Next() (Kmer, int, bool) {
	for s.pos+s.k <= len(s.seq) {
		if s.curPos >= 0 && s.pos == s.curPos+1 {
			b := bnt.Base2Bnt[s.seq[s.pos+s.k-1]]
			if b < bnt.BaseTypeNum {
				s.cur = s.cur.ForwardBase(s.k, b)
				s.curPos = s.pos
				s.pos++
				return s.cur, s.curPos, true
			}
			s.curPos = -1
			s.pos += s.k
			continue
		}
		km, badIdx, ok := fromBytes(s.seq, s.pos, s.k)
		if ok {
			s.cur, s.curPos = km, s.pos
			s.pos++
			return km, s.curPos, true
		}
		s.curPos = -1
		s.pos = badIdx + 1
	}
	return 0, 0, false
}

// JumpTo makes the next call to Next start at pos. Only moves forward.
func (s *Scanner) JumpTo(pos int) {
	if pos > s.pos {
		s.pos = pos
		s.curPos = -1
	}
}
