package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"github.com/jwaldrip/odin/cli"

	"txidx/index"
	"txidx/ingest"
	"txidx/utils"
)

const KmerDef = 31

var app = cli.New("0.1.0", "Transcriptome kmer index for pseudoalignment", func(c cli.Command) {})

func init() {
	app.DefineStringFlag("cpuprofile", "", "write cpu profile to file")
	app.DefineIntFlag("t", 1, "number of CPU used")
	build := app.DefineSubCommand("index", "build the target de Bruijn graph index from transcript FASTA", Build)
	{
		build.DefineIntFlag("K", KmerDef, "kmer length, odd, between 3 and 31")
		build.DefineStringFlag("i", "", "input FASTA file(s), comma separated")
		build.DefineStringFlag("o", "index.tki", "output index file")
		build.DefineBoolFlag("makeUnique", false, "replace repeated target names with name_1, name_2, ...")
		build.DefineBoolFlag("skipKmerTable", false, "write the header sections only, such an index cannot be queried")
	}
	inspect := app.DefineSubCommand("inspect", "print index statistics", Inspect)
	{
		inspect.DefineStringFlag("i", "index.tki", "index file")
		inspect.DefineStringFlag("dot", "", "write the contig graph to a DOT file")
		inspect.DefineStringFlag("samhdr", "", "write a pseudobam header to a file")
	}
	dumpkmers := app.DefineSubCommand("dumpkmers", "dump (kmer, ec) records compressed with zstd", DumpKmers)
	{
		dumpkmers.DefineStringFlag("i", "index.tki", "index file")
		dumpkmers.DefineStringFlag("o", "kmers.zst", "output file")
	}
}

type optionsBuild struct {
	utils.ArgsOpt
	Kmer          int
	Input         string
	Output        string
	MakeUnique    bool
	SkipKmerTable bool
}

func checkArgsBuild(c cli.Command) (opt optionsBuild, suc bool) {
	var ok bool
	opt.Kmer, ok = c.Flag("K").Get().(int)
	if !ok {
		log.Fatalf("[checkArgsBuild] argument 'K': %v set error\n", c.Flag("K").String())
	}
	if opt.Kmer < 3 || opt.Kmer > 31 || opt.Kmer%2 == 0 {
		log.Fatalf("[checkArgsBuild] argument 'K': %d must be odd and between 3 and 31\n", opt.Kmer)
	}
	opt.Input = c.Flag("i").String()
	if opt.Input == "" {
		log.Fatalf("[checkArgsBuild] argument 'i' not set\n")
	}
	opt.Output = c.Flag("o").String()
	opt.MakeUnique = c.Flag("makeUnique").Get().(bool)
	opt.SkipKmerTable = c.Flag("skipKmerTable").Get().(bool)
	suc = true
	return opt, suc
}

func startProfile(fn string) func() {
	if fn == "" {
		return func() {}
	}
	fp, err := os.Create(fn)
	if err != nil {
		log.Fatalf("[startProfile] create %s failed, err: %v\n", fn, err)
	}
	pprof.StartCPUProfile(fp)
	return func() {
		pprof.StopCPUProfile()
		fp.Close()
	}
}

func Build(c cli.Command) {
	gOpt, _ := utils.CheckGlobalArgs(c)
	opt, suc := checkArgsBuild(c)
	if suc == false {
		log.Fatalf("[Build] check arguments error, opt: %v\n", opt)
	}
	runtime.GOMAXPROCS(gOpt.NumCPU)
	stop := startProfile(gOpt.Cpuprofile)
	defer stop()

	fmt.Printf("[Build] kmer length: %d\n", opt.Kmer)
	trs, err := ingest.ReadFasta(strings.Split(opt.Input, ","), opt.MakeUnique)
	if err != nil {
		log.Fatalf("[Build] read targets failed, err: %v\n", err)
	}
	idx := index.New(opt.Kmer)
	idx.BuildTranscripts(trs)
	if err := idx.WriteFile(opt.Output, !opt.SkipKmerTable); err != nil {
		log.Fatalf("[Build] write index failed, err: %v\n", err)
	}
	fmt.Printf("[Build] wrote index to %s\n", opt.Output)
}

func Inspect(c cli.Command) {
	gOpt, _ := utils.CheckGlobalArgs(c)
	runtime.GOMAXPROCS(gOpt.NumCPU)
	fn := c.Flag("i").String()
	idx, err := index.LoadFile(fn, true)
	if err != nil {
		log.Fatalf("[Inspect] load index failed, err: %v\n", err)
	}
	fmt.Printf("[Inspect] kmer length: %d\n", idx.K)
	fmt.Printf("[Inspect] number of targets: %d\n", idx.NumTrans)
	fmt.Printf("[Inspect] number of kmers: %d\n", idx.DBGraph.NumKmers())
	fmt.Printf("[Inspect] number of contigs: %d\n", len(idx.DBGraph.Contigs))
	fmt.Printf("[Inspect] number of equivalence classes: %d\n", len(idx.ECMap))

	if dotfn := c.Flag("dot").String(); dotfn != "" {
		fp, err := os.Create(dotfn)
		if err != nil {
			log.Fatalf("[Inspect] create %s failed, err: %v\n", dotfn, err)
		}
		if err := idx.WriteDOT(fp); err != nil {
			log.Fatalf("[Inspect] write DOT failed, err: %v\n", err)
		}
		fp.Close()
		fmt.Printf("[Inspect] wrote contig graph to %s\n", dotfn)
	}
	if samfn := c.Flag("samhdr").String(); samfn != "" {
		fp, err := os.Create(samfn)
		if err != nil {
			log.Fatalf("[Inspect] create %s failed, err: %v\n", samfn, err)
		}
		if err := idx.WritePseudoBamHeader(fp); err != nil {
			log.Fatalf("[Inspect] write SAM header failed, err: %v\n", err)
		}
		fp.Close()
		fmt.Printf("[Inspect] wrote pseudobam header to %s\n", samfn)
	}
}

func DumpKmers(c cli.Command) {
	gOpt, _ := utils.CheckGlobalArgs(c)
	runtime.GOMAXPROCS(gOpt.NumCPU)
	idx, err := index.LoadFile(c.Flag("i").String(), true)
	if err != nil {
		log.Fatalf("[DumpKmers] load index failed, err: %v\n", err)
	}
	outfn := c.Flag("o").String()
	fp, err := os.Create(outfn)
	if err != nil {
		log.Fatalf("[DumpKmers] create %s failed, err: %v\n", outfn, err)
	}
	defer fp.Close()
	if err := idx.DumpKmers(fp); err != nil {
		log.Fatalf("[DumpKmers] dump failed, err: %v\n", err)
	}
	fmt.Printf("[DumpKmers] wrote %d kmer records to %s\n", idx.DBGraph.NumKmers(), outfn)
}

func main() {
	app.Start()
}
