// Package whisper assembles whisper-cli style command lines.
package whisper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/eternnoir/whispscribe/pkg/config"
)

// Engine flags.
const (
	FlagModel    = "-m"
	FlagLanguage = "-l"
	FlagThreads  = "-t"
	FlagFile     = "-f"
	FlagTxt      = "--output-txt"
	FlagSrt      = "--output-srt"
	FlagVtt      = "--output-vtt"
)

// BaseArgs builds the argv shared by every file of a run:
// binary, model, language, output formats, threads, context size,
// enabled extra parameters, then the free-text arguments.
func BaseArgs(cfg config.Config) ([]string, error) {
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = config.DefaultConfig().Language
	}

	args := []string{cfg.WhisperBin, FlagModel, cfg.ModelPath, FlagLanguage, lang}

	if cfg.OutputTxt {
		args = append(args, FlagTxt, "true")
	}
	if cfg.OutputSrt {
		args = append(args, FlagSrt, "true")
	}
	if cfg.OutputVtt {
		args = append(args, FlagVtt, "true")
	}

	// Zero threads or context size means unset.
	if cfg.Threads > 0 {
		args = append(args, FlagThreads, strconv.Itoa(cfg.Threads))
	}
	if cfg.ContextSize > 0 {
		args = append(args, cfg.EffectiveContextFlag(), strconv.Itoa(cfg.ContextSize))
	}

	args = append(args, cfg.Params.ToCommandArgs()...)

	extra, err := SplitExtra(cfg.ExtraArgs)
	if err != nil {
		return nil, err
	}
	return append(args, extra...), nil
}

// SplitExtra tokenizes free-text arguments with shell word rules.
func SplitExtra(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parser := shellwords.NewParser()
	parser.ParseEnv = false
	parser.ParseBacktick = false
	words, err := parser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid extra arguments %q: %w", s, err)
	}
	return words, nil
}

// Command appends the audio input to a copy of base.
func Command(base []string, wav string) []string {
	argv := make([]string, 0, len(base)+2)
	argv = append(argv, base...)
	return append(argv, FlagFile, wav)
}
