/*specter extracts line-of-sight particle samples from distributed particle
snapshots and reads and writes the snapshots themselves.

Run "specter help" for usage.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/specter-sim/specter/lib/comm"
	"github.com/specter-sim/specter/lib/config"
	s_error "github.com/specter-sim/specter/lib/error"
	"github.com/specter-sim/specter/lib/field"
	"github.com/specter-sim/specter/lib/hydro"
	"github.com/specter-sim/specter/lib/los"
	"github.com/specter-sim/specter/lib/part"
	"github.com/specter-sim/specter/lib/snapshot"
	"github.com/specter-sim/specter/lib/thread"
)

const helpText = `specter is a tool for extracting line-of-sight particle
samples from particle snapshots.

Usage:
    specter help
        Print this message.
    specter check <params.yml>
        Parse a parameter file and print what it configures.
    specter sightlines [-ranks N] [-counter C] <params.yml> <snapshot file>
        Draw random sightlines through the snapshot's volume and write the
        particles they intersect to <basename>_C.spec, where basename comes
        from the parameter file's LineOfSight section.
    specter snapshot [-ranks N] [-counter C] <params.yml> <snapshot file>
        Read a snapshot and rewrite it as <basename>_C.spec with the
        parameter file's unit system and field selection applied.

-ranks runs the distributed protocols over N in-process ranks, which is how
single-node runs and tests exercise the same code paths a cluster would.`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(helpText)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		fmt.Println(helpText)
	case "check":
		checkMode(os.Args[2:])
	case "sightlines":
		sightlinesMode(os.Args[2:])
	case "snapshot":
		snapshotMode(os.Args[2:])
	default:
		s_error.External("'%s' is not a specter mode. The valid modes are "+
			"'help', 'check', 'sightlines', and 'snapshot'. Run 'specter "+
			"help' for details.", os.Args[1])
	}
}

func checkMode(args []string) {
	if len(args) != 1 {
		s_error.External("The 'check' mode takes exactly one argument, a " +
			"parameter file.")
	}

	cfg, err := config.ParseFile(args[0])
	if err != nil {
		s_error.External("%s", err.Error())
	}

	fmt.Printf("%s parses cleanly.\n", args[0])
	fmt.Printf("    Threads: %d\n", cfg.Threads)
	fmt.Printf("    Seed: %d\n", cfg.Seed)
	fmt.Printf("    Sightlines: %d along z, %d along x, %d along y\n",
		cfg.LOS.NumAlongXY, cfg.LOS.NumAlongYZ, cfg.LOS.NumAlongXZ)
	fmt.Printf("    Sightline output: %s_*.spec (zstd level %d)\n",
		cfg.LOS.Basename, cfg.LOS.Compression)
	fmt.Printf("    Snapshot output: %s_*.spec\n", cfg.Snapshots.Basename)
}

// runFlags parses the flags and arguments shared by the distributed modes.
func runFlags(mode string, args []string) (
	cfg *config.Config, snapFname string, ranks, counter int,
) {
	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	ranksFlag := fs.Int("ranks", 1, "number of in-process ranks")
	counterFlag := fs.Int("counter", 0, "output file counter")
	fs.Parse(args)

	if fs.NArg() != 2 {
		s_error.External("The '%s' mode takes exactly two arguments, a "+
			"parameter file and a snapshot file. Run 'specter help' for "+
			"details.", mode)
	}
	if *ranksFlag < 1 {
		s_error.External("%d ranks were requested. At least one rank is "+
			"needed to do anything.", *ranksFlag)
	}

	cfg, err := config.ParseFile(fs.Arg(0))
	if err != nil {
		s_error.External("%s", err.Error())
	}
	thread.Set(cfg.Threads)

	return cfg, fs.Arg(1), *ranksFlag, *counterFlag
}

// gasFields merges every module's gas-field contributions. Today that is
// just hydro.
func gasFields() []field.Descriptor {
	fields, err := field.Merge(hydro.Gas())
	if err != nil {
		s_error.Internal("%s", err.Error())
	}
	return fields
}

// overRanks runs f once per rank of an in-process communicator and waits for
// all of them.
func overRanks(ranks int, f func(c comm.Comm)) {
	comms := comm.NewGroup(ranks)
	wg := &sync.WaitGroup{}
	wg.Add(ranks)
	for _, c := range comms {
		go func(c comm.Comm) {
			defer wg.Done()
			f(c)
		}(c)
	}
	wg.Wait()
}

func readGas(
	c comm.Comm, cfg *config.Config, snapFname string,
	fields []field.Descriptor,
) (*part.Shard, *snapshot.Header) {
	shards, hd := snapshot.Read(c, &snapshot.Input{
		Fname:         snapFname,
		Categories:    []string{hydro.CategoryName},
		Fields:        [][]field.Descriptor{fields},
		InternalUnits: cfg.InternalUnitSystem.System(),
	})
	return shards[0], hd
}

func sightlinesMode(args []string) {
	cfg, snapFname, ranks, counter := runFlags("sightlines", args)
	fields := gasFields()

	overRanks(ranks, func(c comm.Comm) {
		sh, hd := readGas(c, cfg, snapFname, fields)
		min, max := cfg.Range(hd.BoxSize)

		los.Run(c, sh, &los.Output{
			Params: los.Params{
				NumAlongXY: cfg.LOS.NumAlongXY,
				NumAlongYZ: cfg.LOS.NumAlongYZ,
				NumAlongXZ: cfg.LOS.NumAlongXZ,
				Min:        min, Max: max,
			},
			Basename: cfg.LOS.Basename,
			Counter:  counter,
			Seed:     cfg.Seed,

			Periodic: hd.Periodic,
			Dim:      hd.BoxSize,
			Time:     hd.Time, Redshift: hd.Redshift,
			ScaleFactor: hd.ScaleFactor,

			InternalUnits: cfg.InternalUnitSystem.System(),
			FileUnits:     cfg.SnapshotUnitSystem.System(),

			Fields: fields,
			Select: cfg.SelectedLOS,

			Compression: cfg.LOS.Compression,
			ChunkRows:   cfg.LOS.ChunkRows,
		})
	})
}

func snapshotMode(args []string) {
	cfg, snapFname, ranks, counter := runFlags("snapshot", args)
	fields := gasFields()

	overRanks(ranks, func(c comm.Comm) {
		sh, hd := readGas(c, cfg, snapFname, fields)

		snapshot.Write(c,
			[]snapshot.Category{
				{Name: hydro.CategoryName, Shard: sh, Fields: fields},
			},
			&snapshot.Output{
				Basename: cfg.Snapshots.Basename,
				Counter:  counter,
				Header:   *hd,

				InternalUnits: cfg.InternalUnitSystem.System(),
				FileUnits:     cfg.SnapshotUnitSystem.System(),

				Select: cfg.Selected,
			})
	})
}
