package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"gridcraft.ai/internal/persistence/recording"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
	"gridcraft.ai/internal/tui"
)

var (
	flagConfig      string
	flagRecord      bool
	flagDigestEvery int
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play an episode interactively",
	Long: `Start an interactive episode. Logical presets step once per key
press; the human_play preset runs the clock in real time.

Controls:
  WASD/Arrows - Move
  Space       - Interact with the faced tile
  Tab/Z       - Sleep
  R/T/F/P     - Place stone / table / furnace / plant
  1-6         - Craft tools and weapons (7/8 for the diamond tier)
  Esc         - Pause (real time sessions)
  Enter       - New episode
  ?           - Full key list
  Q/Ctrl+C    - Quit

Examples:
  gridcraft play
  gridcraft play --preset human_play
  gridcraft play --ruleset extended --seed 7 --record
  gridcraft play --config ./session.yaml`,
	Run: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&flagConfig, "config", "", "Session config YAML layered over the preset")
	playCmd.Flags().BoolVar(&flagRecord, "record", false, "Record the run under ~/.gridcraft/recordings")
	playCmd.Flags().IntVar(&flagDigestEvery, "digest_every", 20, "Recording digest cadence in steps")
}

func runPlay(cmd *cobra.Command, args []string) {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "gridcraft"})

	rs, err := loadRuleset(flagRuleset)
	if err != nil {
		logger.Fatal("load ruleset", "error", err)
	}
	cfg, err := loadSessionConfig(flagPreset, flagConfig)
	if err != nil {
		logger.Fatal("session config", "error", err)
	}
	if flagSeed != 0 {
		seed := flagSeed
		cfg.Seed = &seed
	}

	s, err := session.New(cfg, rs)
	if err != nil {
		logger.Fatal("new session", "error", err)
	}

	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}

	// Recordings replay Step calls, so only logical sessions qualify;
	// a real time clock would tick past the recorder.
	var rec *recording.Recorder
	var recPath string
	if flagRecord {
		if cfg.Time.Kind != session.TimeLogical {
			logger.Warn("real time sessions are not recorded", "time_mode", cfg.Time.Kind)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				logger.Fatal("home directory", "error", err)
			}
			recPath = filepath.Join(home, ".gridcraft", "recordings",
				fmt.Sprintf("session_%d.rec.zst", time.Now().Unix()))
			rec, err = recording.New(recPath, s, flagDigestEvery)
			if err != nil {
				logger.Fatal("open recording", "error", err)
			}
		}
	}

	runErr := tui.Run(tui.Options{Session: s, Recorder: rec, Width: width, Height: height})

	if rec != nil {
		if err := rec.Close(); err != nil {
			logger.Error("close recording", "error", err)
		} else {
			logger.Info("recording saved", "path", recPath, "steps", s.StepCount())
		}
	}
	if runErr != nil {
		logger.Fatal("run", "error", runErr)
	}
}

// loadRuleset resolves a built-in profile name, or loads a profile
// from disk when the argument looks like a file path.
func loadRuleset(nameOrPath string) (*ruleset.Ruleset, error) {
	if strings.HasSuffix(nameOrPath, ".yaml") || strings.HasSuffix(nameOrPath, ".yml") {
		return ruleset.Load(nameOrPath)
	}
	return ruleset.ByName(nameOrPath)
}

// loadSessionConfig starts from the named preset and layers the YAML
// file on top, so a config file only has to name the knobs it changes.
func loadSessionConfig(preset, path string) (session.Config, error) {
	cfg, err := session.PresetByName(preset)
	if err != nil {
		return session.Config{}, err
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return session.Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return session.Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
