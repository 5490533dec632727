// admin inspects and operates a gridcraft deployment from the command
// line. Index queries read the sqlite database directly; state, save
// and snapshot talk to a running server.
//
// Usage:
//
//	admin summary   [-data ./data]                      - Aggregate episode stats
//	admin episodes  -session ID [-limit N]              - One session's episodes
//	admin top       [-limit N]                          - Highest reward episodes
//	admin saves     -session ID [-limit N]              - One session's save files
//	admin verify    <recording>                         - Replay and check a recording
//	admin archive   [-data ./data] <recording>          - Verify and archive a recording
//	admin state     [-url http://127.0.0.1:8080]        - Live server state
//	admin save      -session ID [-url ...]              - Save a live session to disk
//	admin snapshot  [-seed N] [-actions a,b] [-url ...] - One-shot rendered observation
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "episodes":
			episodesCmd(os.Args[2:])
			return
		case "top":
			topCmd(os.Args[2:])
			return
		case "saves":
			savesCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "archive":
			archiveCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "summary":
			summaryCmd(os.Args[2:])
			return
		}
	}
	summaryCmd(os.Args[1:])
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func fatal(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
	os.Exit(1)
}
