package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gridcraft.ai/internal/persistence/archive"
	"gridcraft.ai/internal/persistence/recording"
)

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin verify <recording>")
		os.Exit(2)
	}

	path := fs.Arg(0)
	h, err := recording.ReadHeader(path)
	if err != nil {
		fatal("read", err)
	}
	res, err := recording.Replay(path)
	if err != nil {
		fatal("verify", err)
	}
	printJSON(struct {
		Recording      string  `json:"recording"`
		Ruleset        string  `json:"ruleset"`
		RulesetDigest  string  `json:"ruleset_digest"`
		Seed           uint64  `json:"seed"`
		Steps          int     `json:"steps"`
		Episodes       int     `json:"episodes"`
		Reward         float64 `json:"reward"`
		DigestsChecked int     `json:"digests_checked"`
		FinalDigest    string  `json:"final_digest"`
		Done           bool    `json:"done"`
		DoneReason     string  `json:"done_reason,omitempty"`
	}{
		Recording:      filepath.Base(path),
		Ruleset:        h.Ruleset,
		RulesetDigest:  h.RulesetDigest,
		Seed:           h.Seed,
		Steps:          res.Steps,
		Episodes:       res.Episodes,
		Reward:         res.Reward,
		DigestsChecked: res.DigestsChecked,
		FinalDigest:    res.FinalDigest,
		Done:           res.Done,
		DoneReason:     string(res.DoneReason),
	})
}

func archiveCmd(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin archive [-data ./data] <recording>")
		os.Exit(2)
	}

	meta, dst, err := archive.ArchiveRecording(*dataDir, fs.Arg(0))
	if err != nil {
		fatal("archive", err)
	}
	fmt.Printf("archive ok: %s steps=%d episodes=%d reward=%g digests=%d out=%s\n",
		meta.Recording, meta.Steps, meta.Episodes, meta.Reward, meta.DigestsChecked, dst)
}
