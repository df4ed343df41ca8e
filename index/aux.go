package index

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/awalterschulze/gographviz"
	"github.com/biogo/hts/sam"
	"github.com/klauspost/compress/zstd"

	"txidx/bnt"
	"txidx/dbg"
	"txidx/kmer"
)

// WriteDOT renders the contig adjacency graph. One node per contig
// labeled id|length|ec, an edge wherever a junction kmer of one
// contig extends into another on either strand.
func (idx *KmerIndex) WriteDOT(w io.Writer) error {
	k := idx.K
	g := gographviz.NewGraph()
	g.SetName("G")
	g.SetDir(true)
	g.SetStrict(false)

	for ci := range idx.DBGraph.Contigs {
		c := &idx.DBGraph.Contigs[ci]
		attr := make(map[string]string)
		attr["color"] = "Green"
		attr["shape"] = "record"
		attr["label"] = "\"{" + strconv.Itoa(int(c.ID)) +
			"|" + strconv.Itoa(int(c.Length)) +
			"|" + strconv.Itoa(int(c.EC)) + "}\""
		g.AddNode("G", strconv.Itoa(int(c.ID)), attr)
	}

	for ci := range idx.DBGraph.Contigs {
		c := &idx.DBGraph.Contigs[ci]
		seq := []byte(c.Seq)
		lastKm, ok1 := kmer.At(seq, len(seq)-k, k)
		firstKm, ok2 := kmer.At(seq, 0, k)
		if !ok1 || !ok2 {
			return fmt.Errorf("[WriteDOT] contig %d seq shorter than k", c.ID)
		}
		for _, end := range [2]kmer.Kmer{lastKm, firstKm.Twin(k)} {
			for b := 0; b < bnt.BaseTypeNum; b++ {
				fw := end.ForwardBase(k, byte(b))
				if val := idx.DBGraph.Kmap.Find(fw.Rep(k)); val != nil && val.ID != c.ID {
					g.AddEdge(strconv.Itoa(int(c.ID)), strconv.Itoa(int(val.ID)), true, nil)
				}
			}
		}
	}

	_, err := io.WriteString(w, g.String())
	return err
}

// DumpKmers writes every (canonical kmer, ec) record in table order as
// a zstd compressed little-endian stream.
func (idx *KmerIndex) DumpKmers(w io.Writer) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderCRC(false), zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(1))
	if err != nil {
		return fmt.Errorf("[DumpKmers] open zstd stream: %w", err)
	}
	buffp := bufio.NewWriterSize(zw, 1<<20)
	ew := &ewriter{w: buffp}
	idx.DBGraph.Kmap.Range(func(km kmer.Kmer, e *dbg.KmerEntry) {
		ew.write(uint64(km))
		ew.write(e.EC)
	})
	if ew.err != nil {
		zw.Close()
		return fmt.Errorf("[DumpKmers] write kmer records: %w", ew.err)
	}
	if err := buffp.Flush(); err != nil {
		zw.Close()
		return fmt.Errorf("[DumpKmers] flush: %w", err)
	}
	return zw.Close()
}

// WritePseudoBamHeader writes a SAM header carrying one reference line
// per target with its length.
func (idx *KmerIndex) WritePseudoBamHeader(w io.Writer) error {
	h, err := sam.NewHeader(nil, nil)
	if err != nil {
		return fmt.Errorf("[WritePseudoBamHeader] new header: %w", err)
	}
	for i := 0; i < idx.NumTrans; i++ {
		ref, err := sam.NewReference(idx.TargetNames[i], "", "", int(idx.TargetLens[i]), nil, nil)
		if err != nil {
			return fmt.Errorf("[WritePseudoBamHeader] reference %s: %w", idx.TargetNames[i], err)
		}
		if err := h.AddReference(ref); err != nil {
			return fmt.Errorf("[WritePseudoBamHeader] add reference %s: %w", idx.TargetNames[i], err)
		}
	}
	if _, err := sam.NewWriter(w, h, sam.FlagDecimal); err != nil {
		return fmt.Errorf("[WritePseudoBamHeader] write header: %w", err)
	}
	return nil
}
