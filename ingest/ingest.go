package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

var (
	ErrDuplicateName = errors.New("repeated target name, rerun with makeUnique to suffix repeated names")
	ErrEmptyInput    = errors.New("no target sequences in input")
)

// Transcript is one normalized target sequence. RawLen is the length
// before the poly-A tail was clipped, the length reported downstream.
type Transcript struct {
	Name   string
	Seq    []byte
	RawLen int32
}

// the seed is fixed so non-ACGT replacement is reproducible between runs
const replaceSeed = 42

var dna = [4]byte{'A', 'C', 'G', 'T'}

// ReadFasta loads and normalizes the target sequences of one or more
// FASTA files: upper case, U to T, non-ACGT bytes replaced with
// pseudo-random bases, poly-A tails of 10 or more clipped.
func ReadFasta(fns []string, makeUnique bool) ([]Transcript, error) {
	rng := rand.New(rand.NewSource(replaceSeed))
	uniqueNames := make(map[string]bool)
	var trs []Transcript
	countNonNucl, countUNuc, polyAcount := 0, 0, 0

	for _, fn := range fns {
		fp, err := os.Open(fn)
		if err != nil {
			return nil, fmt.Errorf("[ReadFasta] open %s: %w", fn, err)
		}
		fmt.Printf("[ReadFasta] loading fasta file %s\n", fn)
		r := fasta.NewReader(bufio.NewReader(fp), linear.NewSeq("", nil, alphabet.DNAredundant))
		for {
			s, err := r.Read()
			if err == io.EOF {
				break
			} else if err != nil {
				fp.Close()
				return nil, fmt.Errorf("[ReadFasta] read %s: %w", fn, err)
			}
			sq := s.(*linear.Seq)
			seq := make([]byte, len(sq.Seq))
			for i, l := range sq.Seq {
				seq[i] = byte(l)
			}
			rawLen := len(seq)
			for i, c := range seq {
				if c >= 'a' && c <= 'z' {
					c -= 'a' - 'A'
				}
				switch c {
				case 'A', 'C', 'G', 'T':
				case 'U':
					c = 'T'
					countUNuc++
				default:
					c = dna[rng.Intn(4)]
					countNonNucl++
				}
				seq[i] = c
			}
			seq = clipPolyA(seq, &polyAcount)

			name := firstField(s.Name())
			if uniqueNames[name] {
				if !makeUnique {
					fp.Close()
					return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateName, name, fn)
				}
				for i := 1; ; i++ {
					newName := name + "_" + strconv.Itoa(i)
					if !uniqueNames[newName] {
						name = newName
						break
					}
				}
			}
			uniqueNames[name] = true
			trs = append(trs, Transcript{Name: name, Seq: seq, RawLen: int32(rawLen)})
		}
		fp.Close()
	}

	if polyAcount > 0 {
		fmt.Printf("[ReadFasta] warning: clipped off poly-A tail (10 or more) from %d target sequences\n", polyAcount)
	}
	if countNonNucl > 0 {
		fmt.Printf("[ReadFasta] warning: replaced %d non-ACGUT characters in the input with pseudorandom nucleotides\n", countNonNucl)
	}
	if countUNuc > 0 {
		fmt.Printf("[ReadFasta] warning: replaced %d U characters with Ts\n", countUNuc)
	}
	if len(trs) == 0 {
		return nil, ErrEmptyInput
	}
	return trs, nil
}

// clipPolyA strips all trailing As when the last 10 bases are A
func clipPolyA(seq []byte, polyAcount *int) []byte {
	n := len(seq)
	if n < 10 {
		return seq
	}
	for i := n - 10; i < n; i++ {
		if seq[i] != 'A' {
			return seq
		}
	}
	*polyAcount++
	j := n - 1
	for j >= 0 && seq[j] == 'A' {
		j--
	}
	return seq[:j+1]
}

func firstField(name string) string {
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		return name[:i]
	}
	return name
}
