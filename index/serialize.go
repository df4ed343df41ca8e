package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"txidx/dbg"
	"txidx/kmer"
)

var ErrVersionMismatch = errors.New("incompatible index version")

// ewriter folds the error checks of sequential binary writes
type ewriter struct {
	w   io.Writer
	err error
}

func (e *ewriter) write(v interface{}) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *ewriter) writeBytes(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

type ereader struct {
	r   io.Reader
	err error
}

func (e *ereader) read(v interface{}) {
	if e.err != nil {
		return
	}
	e.err = binary.Read(e.r, binary.LittleEndian, v)
}

func (e *ereader) readBytes(n uint64) []byte {
	if e.err != nil {
		return nil
	}
	b := make([]byte, n)
	_, e.err = io.ReadFull(e.r, b)
	return b
}

// Write serializes the index. With writeKmerTable false only the
// header sections are written: such a file reports names and lengths
// but cannot be queried.
func (idx *KmerIndex) Write(w io.Writer, writeKmerTable bool) error {
	buf := bufio.NewWriterSize(w, 1<<20)
	ew := &ewriter{w: buf}

	// 1-3. version, k, number of targets
	ew.write(IndexVersion)
	ew.write(int32(idx.K))
	ew.write(int32(idx.NumTrans))

	// 4. target lengths
	ew.write(idx.TargetLens)

	// 5-6. kmer records
	if writeKmerTable {
		ew.write(uint64(idx.DBGraph.Kmap.Size()))
		idx.DBGraph.Kmap.Range(func(km kmer.Kmer, e *dbg.KmerEntry) {
			ew.write(uint64(km))
			ew.write(*e)
		})
	} else {
		ew.write(uint64(0))
	}

	// 7-8. equivalence classes
	ew.write(uint64(len(idx.ECMap)))
	for ec, v := range idx.ECMap {
		ew.write(int32(ec))
		ew.write(uint64(len(v)))
		ew.write(v)
	}

	// 9. target names
	for _, name := range idx.TargetNames {
		ew.write(uint64(len(name)))
		ew.writeBytes([]byte(name))
	}

	// 10-11. contigs and their ecs
	if writeKmerTable {
		ew.write(uint64(len(idx.DBGraph.Contigs)))
		for ci := range idx.DBGraph.Contigs {
			c := &idx.DBGraph.Contigs[ci]
			ew.write(c.ID)
			ew.write(c.Length)
			ew.write(uint64(len(c.Seq)))
			ew.writeBytes([]byte(c.Seq))
			ew.write(uint64(len(c.Transcripts)))
			for _, info := range c.Transcripts {
				ew.write(info.TrID)
				ew.write(info.Pos)
				ew.write(info.Sense)
			}
		}
		for ci := range idx.DBGraph.Contigs {
			ew.write(idx.DBGraph.Contigs[ci].EC)
		}
	} else {
		ew.write(uint64(0))
	}

	if ew.err != nil {
		return fmt.Errorf("[Write] index write failed: %w", ew.err)
	}
	return buf.Flush()
}

// WriteFile writes the index to fn
func (idx *KmerIndex) WriteFile(fn string, writeKmerTable bool) error {
	fp, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("[WriteFile] create %s: %w", fn, err)
	}
	defer fp.Close()
	if err := idx.Write(fp, writeKmerTable); err != nil {
		return err
	}
	return fp.Close()
}

// Load reads an index written by Write. With loadKmerTable false the
// kmer records are consumed but not kept.
func Load(r io.Reader, loadKmerTable bool) (*KmerIndex, error) {
	er := &ereader{r: bufio.NewReaderSize(r, 1<<20)}

	// 1. version
	var version uint64
	er.read(&version)
	if er.err != nil {
		return nil, fmt.Errorf("[Load] index header unreadable: %w", er.err)
	}
	if version != IndexVersion {
		return nil, fmt.Errorf("%w: found version %d, expected version %d, rerun index to regenerate",
			ErrVersionMismatch, version, IndexVersion)
	}

	// 2-3. k, number of targets
	var k, numTrans int32
	er.read(&k)
	er.read(&numTrans)
	if er.err == nil && (k < 3 || k > kmer.MaxK || k%2 == 0) {
		return nil, fmt.Errorf("[Load] bad kmer length %d", k)
	}

	idx := &KmerIndex{K: int(k), NumTrans: int(numTrans), Skip: DefaultSkip, ecmapinv: newECTable()}

	// 4. target lengths
	idx.TargetLens = make([]int32, numTrans)
	er.read(idx.TargetLens)

	// 5-6. kmer records
	var kmapSize uint64
	er.read(&kmapSize)
	idx.DBGraph = dbg.NewGraph(int(k))
	if loadKmerTable {
		idx.DBGraph.Kmap = dbg.NewKmerMap(int(kmapSize))
	}
	for i := uint64(0); i < kmapSize && er.err == nil; i++ {
		var km uint64
		var e dbg.KmerEntry
		er.read(&km)
		er.read(&e)
		if loadKmerTable {
			idx.DBGraph.Kmap.Insert(kmer.Kmer(km), e)
		}
	}

	// 7-8. equivalence classes
	var ecmapSize uint64
	er.read(&ecmapSize)
	idx.ECMap = make([][]int32, ecmapSize)
	for i := uint64(0); i < ecmapSize && er.err == nil; i++ {
		var id int32
		var size uint64
		er.read(&id)
		er.read(&size)
		v := make([]int32, size)
		er.read(v)
		if er.err == nil {
			if id < 0 || uint64(id) >= ecmapSize {
				return nil, fmt.Errorf("[Load] equivalence class id %d out of range", id)
			}
			idx.ECMap[id] = v
			idx.ecmapinv.insert(v, id)
		}
	}

	// 9. target names
	for i := int32(0); i < numTrans && er.err == nil; i++ {
		var size uint64
		er.read(&size)
		idx.TargetNames = append(idx.TargetNames, string(er.readBytes(size)))
	}

	// 10-11. contigs and their ecs
	var contigCount uint64
	er.read(&contigCount)
	for i := uint64(0); i < contigCount && er.err == nil; i++ {
		var c dbg.Contig
		er.read(&c.ID)
		er.read(&c.Length)
		var size uint64
		er.read(&size)
		c.Seq = string(er.readBytes(size))
		var txCount uint64
		er.read(&txCount)
		for j := uint64(0); j < txCount && er.err == nil; j++ {
			var info dbg.ContigTran
			er.read(&info.TrID)
			er.read(&info.Pos)
			er.read(&info.Sense)
			c.Transcripts = append(c.Transcripts, info)
		}
		idx.DBGraph.Contigs = append(idx.DBGraph.Contigs, c)
	}
	for i := uint64(0); i < contigCount && er.err == nil; i++ {
		er.read(&idx.DBGraph.Contigs[i].EC)
	}

	if er.err != nil {
		return nil, fmt.Errorf("[Load] index truncated or unreadable: %w", er.err)
	}
	return idx, nil
}

// LoadFile reads the index at fn
func LoadFile(fn string, loadKmerTable bool) (*KmerIndex, error) {
	fp, err := os.Open(fn)
	if err != nil {
		return nil, fmt.Errorf("[LoadFile] open %s: %w", fn, err)
	}
	defer fp.Close()
	return Load(fp, loadKmerTable)
}
