package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gridcraft.ai/internal/tui"
)

var flagWatchURL string

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Spectate a live gateway session",
	Long: `Attach to a running gateway and watch one of its sessions as the
agent plays it. Frames arrive as the agent acts; spectators only look.
Session ids come from the gateway's /v1/watch/sessions endpoint or the
admin state view.

Controls:
  ?          - Toggle help
  Q/Esc      - Quit

Examples:
  gridcraft watch 7b1c9a52-4a7e-4e62-9e1a-2f63d1c2ab10
  gridcraft watch <session-id> --url ws://gateway:8080/v1/watch`,
	Args: cobra.ExactArgs(1),
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchURL, "url", "ws://127.0.0.1:8080/v1/watch", "Gateway watch endpoint")
}

func runWatch(cmd *cobra.Command, args []string) {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "gridcraft"})

	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}
	if err := tui.RunWatch(flagWatchURL, args[0], width, height); err != nil {
		logger.Fatal("watch", "error", err)
	}
}
