// gridcraft is the interactive terminal client for the grid survival
// engine. It runs the same deterministic sessions the gateway serves,
// drawn with Bubble Tea instead of spoken over a socket.
//
// Usage:
//
//	gridcraft play                 - Play an episode in the terminal
//	gridcraft replay <recording>   - Watch and verify a recording
//	gridcraft watch <session-id>   - Spectate a live gateway session
//
// Global flags:
//
//	--ruleset <name|path>  - Profile name or YAML path (default: classic)
//	--preset <name>        - Session preset (default: default)
//	--seed <value>         - World seed (0 = entropy)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	flagRuleset string
	flagPreset  string
	flagSeed    uint64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gridcraft",
	Short: "Grid survival episodes in your terminal",
	Long: `gridcraft drives a deterministic survival session in the terminal:
explore, gather, craft and stay alive while the engine scores the run.

Available commands:
  play     - Play an episode interactively
  replay   - Watch a recorded run and verify it as it plays
  watch    - Spectate a live gateway session

Examples:
  gridcraft play
  gridcraft play --ruleset extended --seed 7
  gridcraft play --preset human_play
  gridcraft replay run.rec.zst --speed 4
  gridcraft watch <session-id> --url ws://gateway:8080/v1/watch`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRuleset, "ruleset", "classic", "Profile name or YAML path")
	rootCmd.PersistentFlags().StringVar(&flagPreset, "preset", "default", "Session preset: default, fast_training, human_play, easy, hard")
	rootCmd.PersistentFlags().Uint64Var(&flagSeed, "seed", 0, "World seed (0 = fresh entropy)")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(watchCmd)
}
