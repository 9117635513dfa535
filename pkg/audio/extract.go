package audio

import (
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Target format the transcription engine expects.
const (
	SampleRate = 16000
	Channels   = 1

	// WavSuffix is appended to the input stem for the intermediate audio file.
	WavSuffix = ".16k.mono.wav"
)

var supportedExts = []string{
	".wav", ".mp3", ".m4a", ".flac", ".ogg", ".opus", ".aac", ".wma",
	".mp4", ".mkv", ".mov", ".avi", ".webm",
}

// Extractor builds transcoder invocations that turn any media into a
// mono 16 kHz PCM WAV.
type Extractor struct {
	bin string
}

// NewExtractor creates an extractor for the transcoder at bin.
// An empty bin means "ffmpeg" on PATH.
func NewExtractor(bin string) *Extractor {
	if strings.TrimSpace(bin) == "" {
		bin = "ffmpeg"
	}
	return &Extractor{bin: bin}
}

// Bin returns the transcoder executable.
func (e *Extractor) Bin() string { return e.bin }

// Command returns the full argv that writes input's audio track to output,
// replacing output if it exists.
func (e *Extractor) Command(input, output string) []string {
	stream := ffmpeg.Input(input).
		Output(output, ffmpeg.KwArgs{
			"vn": "",
			"ac": strconv.Itoa(Channels),
			"ar": strconv.Itoa(SampleRate),
		})

	// -y leads so the output path stays the final argument.
	return append([]string{e.bin, "-y"}, stream.GetArgs()...)
}

// Stem returns the file name without directory and final extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// WavPath returns the intermediate audio path for stem inside dir.
func WavPath(dir, stem string) string {
	return filepath.Join(dir, stem+WavSuffix)
}

// IsSupported reports whether path has a media extension the transcoder
// is commonly fed.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range supportedExts {
		if ext == s {
			return true
		}
	}
	return false
}
