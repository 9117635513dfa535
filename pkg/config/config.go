package config

import (
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/eternnoir/whispscribe/pkg/params"
)

// DefaultContextFlag is used when a context size is set without a flag name.
const DefaultContextFlag = "--max-context"

// Config is the effective configuration for one run: built-in defaults,
// overlaid by the external shell-style file, overlaid by the settings record.
type Config struct {
	// External tools
	WhisperBin string `json:"whisper_bin"`
	ModelPath  string `json:"model_path"`
	FFmpegBin  string `json:"ffmpeg_bin"`

	// Transcription
	Language    string      `json:"lang"`
	Threads     int         `json:"threads"`    // 0 lets the engine decide
	ContextFlag string      `json:"ctx_flag"`   // empty means DefaultContextFlag
	ContextSize int         `json:"ctx_size"`   // 0 skips the context flag
	ExtraArgs   string      `json:"extra_args"` // shell-split before use
	OutputTxt   bool        `json:"output_txt"`
	OutputSrt   bool        `json:"output_srt"`
	OutputVtt   bool        `json:"output_vtt"`
	Params      params.List `json:"params"`

	// Artifacts
	OutputDir     string `json:"outdir"`
	KeepAudio     bool   `json:"keep_wav"`
	Overwrite     bool   `json:"overwrite"`
	PerFileSubdir bool   `json:"per_file_subdir"`

	// Convenience state
	RecentInputDir  string `json:"recent_input_dir"`
	RecentOutputDir string `json:"recent_output_dir"`
}

// DefaultConfig returns the built-in default table. Every field has a usable value.
func DefaultConfig() Config {
	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}

	return Config{
		WhisperBin:      filepath.Join(home, "whisper.cpp", "build", "bin", "whisper-cli"),
		ModelPath:       filepath.Join(home, "whisper.cpp", "models", "ggml-large-v3.bin"),
		FFmpegBin:       "ffmpeg",
		Language:        "ru",
		ContextFlag:     DefaultContextFlag,
		OutputTxt:       true,
		PerFileSubdir:   true,
		RecentInputDir:  home,
		RecentOutputDir: home,
	}
}

// Clone returns a snapshot that shares no mutable state with c.
func (c Config) Clone() Config {
	c.Params = c.Params.Clone()
	return c
}

// EffectiveContextFlag returns the context flag name, falling back to the default.
func (c Config) EffectiveContextFlag() string {
	if c.ContextFlag == "" {
		return DefaultContextFlag
	}
	return c.ContextFlag
}
