// Command kunquatplay is a reference pull-mode audio driver: it loads a
// composition (the built-in "listener demo" fixture, or one named with
// --fixture), builds an Engine, and streams rendered blocks to the
// speakers through oto's pull-mode player.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/kunquat-go/synth"
	"github.com/kunquat-go/synth/composition"
)

func main() {
	rate := pflag.IntP("rate", "r", kunquat.DefaultConfig.AudioRate, "audio sample rate, in Hz")
	bufferSize := pflag.IntP("buffer-size", "b", kunquat.DefaultConfig.BufferSize, "render block size, in frames")
	voices := pflag.IntP("voices", "v", kunquat.DefaultConfig.VoicePoolCap, "voice pool capacity")
	subsong := pflag.IntP("subsong", "s", 0, "sub-song index to play")
	fixturePath := pflag.StringP("fixture", "f", "", "path to a YAML composition fixture (default: built-in listener demo)")
	seconds := pflag.Float64P("seconds", "t", 12.0, "how long to play before exiting")
	pflag.Parse()

	logger := log.Default()

	comp, err := loadComposition(*fixturePath)
	if err != nil {
		logger.Error("failed to load composition", "err", err)
		os.Exit(1)
	}

	cfg := kunquat.Config{
		AudioRate:     *rate,
		BufferSize:    *bufferSize,
		VoicePoolCap:  *voices,
		EventQueueCap: kunquat.DefaultConfig.EventQueueCap,
	}
	engine := kunquat.New(cfg)
	if err := engine.Load(comp); err != nil {
		logger.Error("failed to load composition into engine", "err", err)
		os.Exit(1)
	}
	if err := engine.Play(*subsong); err != nil {
		logger.Error("failed to start playback", "err", err)
		os.Exit(1)
	}

	player, err := newOtoPlayer(cfg.AudioRate, engine.Render)
	if err != nil {
		logger.Error("failed to open audio output", "err", err)
		os.Exit(1)
	}
	player.start()
	defer player.stop()

	logger.Info("playing", "subsong", *subsong, "rate", cfg.AudioRate, "buffer", cfg.BufferSize)

	time.Sleep(time.Duration(*seconds * float64(time.Second)))
	fmt.Println("done")
}

func loadComposition(path string) (*composition.Composition, error) {
	if path == "" {
		return composition.Demo()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fixture, err := composition.ParseFixture(data)
	if err != nil {
		return nil, err
	}
	return fixture.Build()
}
