package index

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"txidx/dbg"
	"txidx/kmer"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	seqs := []string{"AAAAACCCCC", "AAAAAGGGGG"}
	idx := buildIndex(t, 5, seqs...)

	var buf bytes.Buffer
	if err := idx.Write(&buf, true); err != nil {
		t.Fatal(err)
	}
	got, err := Load(bytes.NewReader(buf.Bytes()), true)
	if err != nil {
		t.Fatal(err)
	}

	if got.K != idx.K || got.NumTrans != idx.NumTrans {
		t.Errorf("header = k %d, %d targets", got.K, got.NumTrans)
	}
	if !equalInt32s(got.TargetLens, idx.TargetLens) {
		t.Errorf("lens = %v", got.TargetLens)
	}
	for i, name := range idx.TargetNames {
		if got.TargetNames[i] != name {
			t.Errorf("name %d = %q, want %q", i, got.TargetNames[i], name)
		}
	}
	if len(got.ECMap) != len(idx.ECMap) {
		t.Fatalf("ecmap size = %d, want %d", len(got.ECMap), len(idx.ECMap))
	}
	for i := range idx.ECMap {
		if !equalInt32s(got.ECMap[i], idx.ECMap[i]) {
			t.Errorf("ECMap[%d] = %v, want %v", i, got.ECMap[i], idx.ECMap[i])
		}
	}
	if len(got.DBGraph.Contigs) != len(idx.DBGraph.Contigs) {
		t.Fatalf("contigs = %d, want %d", len(got.DBGraph.Contigs), len(idx.DBGraph.Contigs))
	}
	for i := range idx.DBGraph.Contigs {
		a, b := &idx.DBGraph.Contigs[i], &got.DBGraph.Contigs[i]
		if a.ID != b.ID || a.Length != b.Length || a.EC != b.EC || a.Seq != b.Seq {
			t.Errorf("contig %d = %+v, want %+v", i, b, a)
		}
		if len(a.Transcripts) != len(b.Transcripts) {
			t.Fatalf("contig %d occurrences = %d, want %d", i, len(b.Transcripts), len(a.Transcripts))
		}
		for j := range a.Transcripts {
			if a.Transcripts[j] != b.Transcripts[j] {
				t.Errorf("contig %d occurrence %d = %+v, want %+v", i, j, b.Transcripts[j], a.Transcripts[j])
			}
		}
	}
	if got.DBGraph.Kmap.Size() != idx.DBGraph.Kmap.Size() {
		t.Fatalf("kmap size = %d, want %d", got.DBGraph.Kmap.Size(), idx.DBGraph.Kmap.Size())
	}
	idx.DBGraph.Kmap.Range(func(km kmer.Kmer, e *dbg.KmerEntry) {
		ge := got.DBGraph.Kmap.Find(km)
		if ge == nil || *ge != *e {
			t.Errorf("kmer %v entry = %+v, want %+v", km, ge, e)
		}
	})

	// loaded index answers queries like the built one
	read := []byte("AAAAACCCCC")
	va, vb := idx.Match(read), got.Match(read)
	if len(va) != len(vb) {
		t.Fatalf("loaded index matches = %d, want %d", len(vb), len(va))
	}
	for i := range va {
		if va[i] != vb[i] {
			t.Errorf("match %d = %+v, want %+v", i, vb[i], va[i])
		}
	}
}

func TestWriteDeterminism(t *testing.T) {
	seqs := []string{t19, "AAAAACCCCC", "AAAAAGGGGG"}
	a := buildIndex(t, 5, seqs...)
	b := buildIndex(t, 5, seqs...)
	var bufA, bufB bytes.Buffer
	if err := a.Write(&bufA, true); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(&bufB, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Errorf("two builds of the same input differ on disk")
	}

	// write(load(write(x))) is byte-identical too
	loaded, err := Load(bytes.NewReader(bufA.Bytes()), true)
	if err != nil {
		t.Fatal(err)
	}
	var bufC bytes.Buffer
	if err := loaded.Write(&bufC, true); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bufA.Bytes(), bufC.Bytes()) {
		t.Errorf("reload changed the serialized bytes")
	}
}

func TestWriteWithoutKmerTable(t *testing.T) {
	seqs := []string{"AAAAACCCCC"}
	idx := buildIndex(t, 5, seqs...)
	var buf bytes.Buffer
	if err := idx.Write(&buf, false); err != nil {
		t.Fatal(err)
	}
	got, err := Load(bytes.NewReader(buf.Bytes()), true)
	if err != nil {
		t.Fatal(err)
	}
	if got.DBGraph.Kmap.Size() != 0 || len(got.DBGraph.Contigs) != 0 {
		t.Errorf("kmer-table-less index still holds %d kmers, %d contigs",
			got.DBGraph.Kmap.Size(), len(got.DBGraph.Contigs))
	}
	if got.NumTrans != 1 || got.TargetNames[0] != "tr0" || got.TargetLens[0] != 10 {
		t.Errorf("header = %d targets %v %v", got.NumTrans, got.TargetNames, got.TargetLens)
	}
}

func TestLoadSkipsKmerTable(t *testing.T) {
	seqs := []string{"AAAAACCCCC"}
	idx := buildIndex(t, 5, seqs...)
	var buf bytes.Buffer
	if err := idx.Write(&buf, true); err != nil {
		t.Fatal(err)
	}
	got, err := Load(bytes.NewReader(buf.Bytes()), false)
	if err != nil {
		t.Fatal(err)
	}
	if got.DBGraph.Kmap.Size() != 0 {
		t.Errorf("kmap loaded despite loadKmerTable=false")
	}
	// the sections after the kmer records must still line up
	if len(got.ECMap) != len(idx.ECMap) || got.TargetNames[0] != "tr0" {
		t.Errorf("trailing sections misread: ecmap %d names %v", len(got.ECMap), got.TargetNames)
	}
}

func TestLoadVersionMismatch(t *testing.T) {
	seqs := []string{"AAAAACCCCC"}
	idx := buildIndex(t, 5, seqs...)
	var buf bytes.Buffer
	if err := idx.Write(&buf, true); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	b[0] = 99 // clobber the version word
	if _, err := Load(bytes.NewReader(b), true); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("err = %v, want ErrVersionMismatch", err)
	}
}

func TestLoadTruncated(t *testing.T) {
	seqs := []string{"AAAAACCCCC"}
	idx := buildIndex(t, 5, seqs...)
	var buf bytes.Buffer
	if err := idx.Write(&buf, true); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	if _, err := Load(bytes.NewReader(b[:len(b)-7]), true); err == nil {
		t.Errorf("truncated file loaded without error")
	}
}

func TestWriteLoadFile(t *testing.T) {
	seqs := []string{t19}
	idx := buildIndex(t, 5, seqs...)
	fn := filepath.Join(t.TempDir(), "test.tki")
	if err := idx.WriteFile(fn, true); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(fn, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.DBGraph.Kmap.Size() != idx.DBGraph.Kmap.Size() {
		t.Errorf("kmap size = %d, want %d", got.DBGraph.Kmap.Size(), idx.DBGraph.Kmap.Size())
	}
}
