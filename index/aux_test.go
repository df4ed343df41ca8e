package index

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestWriteDOT(t *testing.T) {
	seqs := []string{"AAAAACCCCC", "AAAAAGGGGG"}
	idx := buildIndex(t, 5, seqs...)
	var buf bytes.Buffer
	if err := idx.WriteDOT(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "digraph G") {
		t.Errorf("output is not a digraph:\n%s", out)
	}
	if !strings.Contains(out, "->") {
		t.Errorf("no edges between the branch contigs:\n%s", out)
	}
}

func TestDumpKmers(t *testing.T) {
	seqs := []string{t19}
	idx := buildIndex(t, 5, seqs...)
	var buf bytes.Buffer
	if err := idx.DumpKmers(&buf); err != nil {
		t.Fatal(err)
	}
	zr, err := zstd.NewReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	// 8 kmer bytes plus a 4 byte ec per record
	if want := idx.DBGraph.Kmap.Size() * 12; len(raw) != want {
		t.Errorf("dump holds %d bytes, want %d", len(raw), want)
	}
}

func TestWritePseudoBamHeader(t *testing.T) {
	seqs := []string{"AAAAACCCCC", "AAAAAGGGGG"}
	idx := buildIndex(t, 5, seqs...)
	var buf bytes.Buffer
	if err := idx.WritePseudoBamHeader(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"@SQ", "SN:tr0", "SN:tr1", "LN:10"} {
		if !strings.Contains(out, want) {
			t.Errorf("header misses %q:\n%s", want, out)
		}
	}
}
