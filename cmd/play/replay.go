package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gridcraft.ai/internal/tui"
)

var flagSpeed float64

var replayCmd = &cobra.Command{
	Use:   "replay <recording>",
	Short: "Watch a recorded run",
	Long: `Replay a .rec.zst recording tick by tick. The run is rebuilt from
the seed and config in its header, and every stored digest is checked
while it plays, so a replay that reaches the end is also verified.

Controls:
  Space      - Play/Pause
  N/Right    - Single step while paused
  +/-        - Faster / slower
  Q/Esc      - Quit

Examples:
  gridcraft replay run.rec.zst
  gridcraft replay run.rec.zst --speed 4`,
	Args: cobra.ExactArgs(1),
	Run:  runReplay,
}

func init() {
	replayCmd.Flags().Float64Var(&flagSpeed, "speed", 1, "Playback speed multiplier")
}

func runReplay(cmd *cobra.Command, args []string) {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "gridcraft"})

	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}
	if err := tui.RunPlayback(args[0], flagSpeed, width, height); err != nil {
		logger.Fatal("replay", "error", err)
	}
}
