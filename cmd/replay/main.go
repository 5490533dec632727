// Command replay verifies a recording: it rebuilds the session from
// the header, re-applies every recorded action and checks the state
// digests along the way. A zero exit status means the file reproduces
// bit for bit.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gridcraft.ai/internal/persistence/recording"
	"gridcraft.ai/internal/sim/ruleset"
)

func main() {
	var (
		inPath     = flag.String("in", "", "path to recording (.rec.zst)")
		profile    = flag.String("ruleset", "", "verify under this profile instead of the embedded name")
		headerOnly = flag.Bool("header_only", false, "print the header and exit")
	)
	flag.Parse()

	if *inPath == "" && flag.NArg() == 1 {
		*inPath = flag.Arg(0)
	}
	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay [-ruleset name] [-header_only] <recording.rec.zst>")
		os.Exit(2)
	}

	h, err := recording.ReadHeader(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read header:", err)
		os.Exit(1)
	}
	fmt.Printf("recording v%d ruleset=%s (%.12s) seed=%d world=%dx%d digest_every=%d created=%s\n",
		h.Version, h.Ruleset, h.RulesetDigest, h.Seed,
		h.Config.WorldWidth, h.Config.WorldHeight, h.DigestEvery,
		h.CreatedAt.Format(time.RFC3339))

	if *headerOnly {
		return
	}

	var res *recording.ReplayResult
	if *profile != "" {
		rs, err := ruleset.ByName(*profile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load ruleset:", err)
			os.Exit(1)
		}
		res, err = recording.ReplayWith(*inPath, rs)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	} else {
		res, err = recording.Replay(*inPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	status := "running"
	if res.Done {
		status = string(res.DoneReason)
	}
	fmt.Printf("replay ok: steps=%d episode=%d reward=%.2f digests=%d status=%s final=%.12s\n",
		res.Steps, res.Episodes, res.Reward, res.DigestsChecked, status, res.FinalDigest)
}
