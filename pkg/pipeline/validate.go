package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eternnoir/whispscribe/pkg/config"
)

// Setup checks performed before a run.
const (
	CheckFiles     = "files"
	CheckEngine    = "whisper_bin"
	CheckModel     = "model_path"
	CheckTranscode = "ffmpeg_bin"
	CheckOutputDir = "outdir"
	CheckExtraArgs = "extra_args"
)

// ErrNoFiles is returned when a run is requested with an empty file list.
var ErrNoFiles = errors.New("no input files")

// SetupError aborts a run before any file is processed.
type SetupError struct {
	Check string
	Path  string
	Err   error
}

func (e *SetupError) Error() string {
	var msg string
	switch e.Check {
	case CheckFiles:
		return ErrNoFiles.Error()
	case CheckExtraArgs:
		if e.Err != nil {
			return e.Err.Error()
		}
		msg = "invalid extra arguments: " + e.Path
	case CheckEngine:
		msg = "whisper-cli not found: " + e.Path
	case CheckModel:
		msg = "model not found: " + e.Path
	case CheckTranscode:
		msg = "ffmpeg not in PATH: " + e.Path
	case CheckOutputDir:
		msg = "cannot create output directory: " + e.Path
	default:
		msg = e.Check + " check failed"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *SetupError) Unwrap() error { return e.Err }

// Validate checks that the engine binary and model exist, the transcoder
// resolves through lookPath, and the output directory, if set, can be created.
// The output directory is created on success.
func Validate(cfg config.Config, lookPath func(string) (string, error)) error {
	return validate(cfg, lookPath, true)
}

// Check runs the same checks as Validate without touching the filesystem.
// A missing output directory passes when its nearest existing ancestor is
// a directory.
func Check(cfg config.Config, lookPath func(string) (string, error)) error {
	return validate(cfg, lookPath, false)
}

func validate(cfg config.Config, lookPath func(string) (string, error), create bool) error {
	if lookPath == nil {
		lookPath = Which
	}

	if !isFile(cfg.WhisperBin) {
		return &SetupError{Check: CheckEngine, Path: cfg.WhisperBin}
	}
	if !isFile(cfg.ModelPath) {
		return &SetupError{Check: CheckModel, Path: cfg.ModelPath}
	}
	if _, err := lookPath(cfg.FFmpegBin); err != nil {
		return &SetupError{Check: CheckTranscode, Path: cfg.FFmpegBin, Err: err}
	}
	dir := strings.TrimSpace(cfg.OutputDir)
	if dir == "" {
		return nil
	}
	if create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &SetupError{Check: CheckOutputDir, Path: dir, Err: err}
		}
		return nil
	}
	if err := creatable(dir); err != nil {
		return &SetupError{Check: CheckOutputDir, Path: dir, Err: err}
	}
	return nil
}

// creatable reports whether MkdirAll(dir) could succeed, judged by the
// nearest existing path on the way up.
func creatable(dir string) error {
	for p := filepath.Clean(dir); ; p = filepath.Dir(p) {
		info, err := os.Stat(p)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", p)
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if parent := filepath.Dir(p); parent == p {
			return err
		}
	}
}
