// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
bio-codfreq reports, for each codon position of one or more coding fragments,
how often each codon is observed across the reads of a BAM file.

  bio-codfreq run -fragments 'PR=pol:1-297,RT=pol:298-1977' -out sample.codfreq.gz sample.bam
  bio-codfreq chunks sample.bam
  bio-codfreq posnas -region pol:100-200 sample.bam
  bio-codfreq index sample.bam
*/

import (
	"fmt"
	"log"
	"os"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	gbam "github.com/hivdb/codfreq/encoding/bam"
	"v.io/x/lib/cmdline"
)

const fragmentsHelp = `A comma-separated list of coding fragments. Each fragment is
'name=ref:start-end', 'ref:start-end', or 'ref'. [start,end] is a 1-based,
closed interval; codons are counted from start. The name defaults to the
reference name, and a bare reference covers the whole reference. By default,
every reference of the BAM header is one fragment.`

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Compute codon frequencies of a BAM file",
		ArgsName: "bampath",
	}
	flags := runFlags{
		index:     cmd.Flags.String("index", "", "Input BAM index filename. By default set to input bampath + .bai"),
		workers:   cmd.Flags.Int("workers", 0, "Number of chunks scanned in parallel; 0 = runtime.NumCPU()"),
		chunkSize: cmd.Flags.Int("chunk-size", gbam.DefaultReadsPerChunk, "Number of BAM records per scan chunk"),
		fragments: cmd.Flags.String("fragments", "", fragmentsHelp),
		out:       cmd.Flags.String("out", "-", "Output path. '-' writes to stdout. A path ending in .gz is gzip-compressed"),
		format: cmd.Flags.String("format", "", `Output format, either "csv" or "tsv".
If empty, the format is guessed from the output path; stdout gets tsv.`),
		logFormat: cmd.Flags.String("log-format", "text", `Progress report format: "text" logs every 10%,
"json" writes one JSON object per line to stderr, "none" is silent.`),
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("run takes one pathname argument, but got %v", argv)
		}
		return run(vcontext.Background(), flags, argv[0], env.Stdout, env.Stderr)
	})
	return cmd
}

func newCmdChunks() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "chunks",
		Short:    "Print the read-count chunks of a BAM file",
		ArgsName: "bampath",
	}
	chunkSize := cmd.Flags.Int("chunk-size", gbam.DefaultReadsPerChunk, "Number of BAM records per chunk")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("chunks takes one pathname argument, but got %v", argv)
		}
		return printChunks(vcontext.Background(), argv[0], *chunkSize, env.Stdout)
	})
	return cmd
}

func newCmdPosNAs() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "posnas",
		Short:    "Print the per-read position/nucleotide decomposition of a BAM file",
		ArgsName: "bampath",
	}
	flags := posnasFlags{
		index:     cmd.Flags.String("index", "", "Input BAM index filename. By default set to input bampath + .bai"),
		workers:   cmd.Flags.Int("workers", 0, "Number of chunks scanned in parallel; 0 = runtime.NumCPU()"),
		chunkSize: cmd.Flags.Int("chunk-size", gbam.DefaultReadsPerChunk, "Number of BAM records per scan chunk"),
		region: cmd.Flags.String("region", "", `Restrict output to reads overlapping 'ref:begin-end'.
[begin,end] is a 1-based, closed interval. Requires the BAM index.`),
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("posnas takes one pathname argument, but got %v", argv)
		}
		return printPosNAs(vcontext.Background(), flags, argv[0], env.Stdout)
	})
	return cmd
}

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "index",
		Short:    "Write the .bai index of a coordinate-sorted BAM file",
		ArgsName: "bampath",
	}
	out := cmd.Flags.String("out", "", "Output index filename. By default set to input bampath + .bai")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("index takes one pathname argument, but got %v", argv)
		}
		baiPath := *out
		if baiPath == "" {
			baiPath = argv[0] + ".bai"
		}
		return gbam.WriteIndexFile(vcontext.Background(), argv[0], baiPath)
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-codfreq",
		Short:    "Codon frequencies of aligned reads",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdRun(),
			newCmdChunks(),
			newCmdPosNAs(),
			newCmdIndex(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(newCmdRoot(), env, os.Args[1:])
	// cmdline.Main exits without running deferred calls.
	shutdown()
	os.Exit(cmdline.ExitCode(err, env.Stderr))
}
