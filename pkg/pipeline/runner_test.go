package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eternnoir/whispscribe/pkg/config"
	"github.com/eternnoir/whispscribe/pkg/logger"
	"github.com/eternnoir/whispscribe/pkg/params"
)

// fakeRunner records invocations and simulates the external tools.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string

	// extract and transcribe replace the default behaviour when set.
	extract    func(ctx context.Context, argv []string) error
	transcribe func(ctx context.Context, argv []string) error
}

func (f *fakeRunner) Run(ctx context.Context, argv []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), argv...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if argv[0] == "ffmpeg" {
		if f.extract != nil {
			return f.extract(ctx, argv)
		}
		return os.WriteFile(argv[len(argv)-1], []byte("RIFF"), 0o644)
	}
	if f.transcribe != nil {
		return f.transcribe(ctx, argv)
	}
	// whisper-cli appends .txt to the audio path.
	return os.WriteFile(audioArg(argv)+".txt", []byte("hello"), 0o644)
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func audioArg(argv []string) string {
	for i := 0; i < len(argv)-1; i++ {
		if argv[i] == "-f" {
			return argv[i+1]
		}
	}
	return ""
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	tools := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.WhisperBin = filepath.Join(tools, "whisper-cli")
	cfg.ModelPath = filepath.Join(tools, "ggml-base.bin")
	cfg.FFmpegBin = "ffmpeg"
	cfg.OutputDir = ""
	cfg.Params = nil
	touch(t, cfg.WhisperBin)
	touch(t, cfg.ModelPath)
	return cfg
}

func newTestRunner(f *fakeRunner) *Runner {
	return NewRunner(f, WithLookPath(func(name string) (string, error) {
		return "/usr/bin/" + name, nil
	}))
}

func collect(events *[]Event) func(Event) {
	return func(e Event) { *events = append(*events, e) }
}

func ofType(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestUniqueDir(t *testing.T) {
	base := t.TempDir()
	require.Equal(t, filepath.Join(base, "clip"), UniqueDir(base, "clip"))

	require.NoError(t, os.Mkdir(filepath.Join(base, "clip"), 0o755))
	require.Equal(t, filepath.Join(base, "clip (2)"), UniqueDir(base, "clip"))

	require.NoError(t, os.Mkdir(filepath.Join(base, "clip (2)"), 0o755))
	require.Equal(t, filepath.Join(base, "clip (3)"), UniqueDir(base, "clip"))
}

func TestNewestExisting(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "a.txt")
	newer := filepath.Join(dir, "b.txt")
	touch(t, older)
	touch(t, newer)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	require.Equal(t, newer, NewestExisting([]string{older, filepath.Join(dir, "missing.txt"), newer}))
	require.Empty(t, NewestExisting([]string{filepath.Join(dir, "missing.txt")}))
}

func TestProcessOneCreatesSubdirAndReconciles(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.PerFileSubdir = true
	cfg.KeepAudio = false

	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	fake := &fakeRunner{}
	r := newTestRunner(fake)
	plan, err := r.Prepare(cfg, []string{input})
	require.NoError(t, err)

	var events []Event
	res := r.ProcessOne(context.Background(), plan, input, collect(&events))
	require.NoError(t, res.Err)

	dir := filepath.Join(cfg.OutputDir, "clip")
	require.Equal(t, dir, res.ArtifactsDir)
	require.Equal(t, filepath.Join(dir, "clip.txt"), res.Transcript)
	require.FileExists(t, filepath.Join(dir, "clip.txt"))
	require.NoFileExists(t, filepath.Join(dir, "clip.16k.mono.wav"))
	require.NoFileExists(t, filepath.Join(dir, "clip.16k.mono.wav.txt"))
	require.Equal(t, filepath.Join(dir, "clip.16k.mono.wav.txt"), res.Renamed)
	require.True(t, res.Extracted)
	require.True(t, res.Transcribed)
	require.Equal(t, 2, fake.count())
	require.Len(t, ofType(events, EventWarning), 1)
	require.Len(t, ofType(events, EventCommand), 2)
}

func TestProcessOneUsesNextFreeSubdir(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(cfg.OutputDir, "clip"), 0o755))

	input := filepath.Join(t.TempDir(), "clip.wav")
	touch(t, input)

	r := newTestRunner(&fakeRunner{})
	plan, err := r.Prepare(cfg, []string{input})
	require.NoError(t, err)

	res := r.ProcessOne(context.Background(), plan, input, nil)
	require.NoError(t, res.Err)
	require.Equal(t, filepath.Join(cfg.OutputDir, "clip (2)"), res.ArtifactsDir)
}

func TestProcessOneDefaultsToInputDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.PerFileSubdir = false

	input := filepath.Join(t.TempDir(), "talk.m4a")
	touch(t, input)

	r := newTestRunner(&fakeRunner{})
	plan, err := r.Prepare(cfg, []string{input})
	require.NoError(t, err)

	res := r.ProcessOne(context.Background(), plan, input, nil)
	require.NoError(t, res.Err)
	require.Equal(t, filepath.Dir(input), res.ArtifactsDir)
	require.FileExists(t, filepath.Join(filepath.Dir(input), "talk.txt"))
}

func TestProcessOneSkipsExistingArtifacts(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()
	cfg.PerFileSubdir = false
	cfg.KeepAudio = true

	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)
	touch(t, filepath.Join(cfg.OutputDir, "clip.16k.mono.wav"))
	touch(t, filepath.Join(cfg.OutputDir, "clip.txt"))

	fake := &fakeRunner{}
	r := newTestRunner(fake)
	plan, err := r.Prepare(cfg, []string{input})
	require.NoError(t, err)

	res := r.ProcessOne(context.Background(), plan, input, nil)
	require.NoError(t, res.Err)
	require.Zero(t, fake.count())
	require.False(t, res.Extracted)
	require.False(t, res.Transcribed)
	require.FileExists(t, filepath.Join(cfg.OutputDir, "clip.16k.mono.wav"))
}

func TestProcessOneOverwriteReruns(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()
	cfg.PerFileSubdir = true
	cfg.Overwrite = true

	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)
	dir := filepath.Join(cfg.OutputDir, "clip")
	touch(t, filepath.Join(dir, "clip.16k.mono.wav"))
	touch(t, filepath.Join(dir, "clip.txt"))

	fake := &fakeRunner{transcribe: func(_ context.Context, argv []string) error {
		return os.WriteFile(filepath.Join(dir, "clip.txt"), []byte("fresh"), 0o644)
	}}
	r := newTestRunner(fake)
	plan, err := r.Prepare(cfg, []string{input})
	require.NoError(t, err)

	res := r.ProcessOne(context.Background(), plan, input, nil)
	require.NoError(t, res.Err)
	require.Equal(t, dir, res.ArtifactsDir)
	require.Equal(t, 2, fake.count())
	require.Empty(t, res.Renamed)

	data, err := os.ReadFile(res.Transcript)
	require.NoError(t, err)
	require.Equal(t, "fresh", string(data))
}

func TestProcessOnePicksNewestCandidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()
	cfg.PerFileSubdir = false

	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	stale := filepath.Join(cfg.OutputDir, "clip.old.txt")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	r := newTestRunner(&fakeRunner{})
	plan, err := r.Prepare(cfg, []string{input})
	require.NoError(t, err)

	res := r.ProcessOne(context.Background(), plan, input, nil)
	require.NoError(t, res.Err)

	data, err := os.ReadFile(res.Transcript)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.FileExists(t, stale)
}

func TestProcessOneMissingInput(t *testing.T) {
	cfg := testConfig(t)
	fake := &fakeRunner{}
	r := newTestRunner(fake)
	missing := filepath.Join(t.TempDir(), "nope.mp3")
	plan, err := r.Prepare(cfg, []string{missing})
	require.NoError(t, err)

	res := r.ProcessOne(context.Background(), plan, missing, nil)
	require.Error(t, res.Err)
	require.Contains(t, res.Err.Error(), "input not found")
	require.Zero(t, fake.count())
}

func TestProcessOneEngineFailureKeepsAudio(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()
	cfg.PerFileSubdir = false

	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	boom := &CommandError{Argv: []string{"whisper-cli"}, ExitCode: 1, Stderr: "bad model"}
	fake := &fakeRunner{transcribe: func(context.Context, []string) error { return boom }}
	r := newTestRunner(fake)
	plan, err := r.Prepare(cfg, []string{input})
	require.NoError(t, err)

	res := r.ProcessOne(context.Background(), plan, input, nil)
	var cmdErr *CommandError
	require.ErrorAs(t, res.Err, &cmdErr)
	require.Equal(t, 1, cmdErr.ExitCode)
	require.FileExists(t, filepath.Join(cfg.OutputDir, "clip.16k.mono.wav"))
}

func TestProcessOneExtractionWithoutOutput(t *testing.T) {
	cfg := testConfig(t)
	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	fake := &fakeRunner{extract: func(context.Context, []string) error { return nil }}
	r := newTestRunner(fake)
	plan, err := r.Prepare(cfg, []string{input})
	require.NoError(t, err)

	res := r.ProcessOne(context.Background(), plan, input, nil)
	require.ErrorContains(t, res.Err, "was not produced")
	require.Equal(t, 1, fake.count())
}

func TestExecuteMissingTranscriptContinues(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()

	inputs := t.TempDir()
	first := filepath.Join(inputs, "silent.mp3")
	second := filepath.Join(inputs, "speech.mp3")
	touch(t, first)
	touch(t, second)

	fake := &fakeRunner{transcribe: func(_ context.Context, argv []string) error {
		wav := audioArg(argv)
		if strings.Contains(filepath.Base(wav), "silent") {
			return nil
		}
		return os.WriteFile(wav+".txt", []byte("words"), 0o644)
	}}
	r := newTestRunner(fake)

	var events []Event
	summary, err := r.Execute(context.Background(), cfg, []string{first, second}, collect(&events))
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.False(t, summary.Cancelled)

	failed := ofType(events, EventFileFailed)
	require.Len(t, failed, 1)
	require.Equal(t, first, failed[0].File)
	require.ErrorIs(t, failed[0].Err, ErrMissingTranscript)

	done := ofType(events, EventFileDone)
	require.Len(t, done, 1)
	require.Equal(t, 2, done[0].Index)
	require.Equal(t, 2, done[0].Total)
	require.True(t, strings.HasPrefix(done[0].Message, "✅"))

	require.Equal(t, EventRunStarted, events[0].Type)
	last := events[len(events)-1]
	require.Equal(t, EventRunFinished, last.Type)
	require.Same(t, summary, last.Summary)
}

func TestExecuteSetupFailureRunsNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		look   func(string) (string, error)
		check  string
	}{
		{
			name:   "missing engine",
			mutate: func(c *config.Config) { c.WhisperBin = filepath.Join(t.TempDir(), "none") },
			check:  CheckEngine,
		},
		{
			name:   "missing model",
			mutate: func(c *config.Config) { c.ModelPath = filepath.Join(t.TempDir(), "none.bin") },
			check:  CheckModel,
		},
		{
			name:  "transcoder not on path",
			look:  func(string) (string, error) { return "", errors.New("not found") },
			check: CheckTranscode,
		},
		{
			name:   "bad extra args",
			mutate: func(c *config.Config) { c.ExtraArgs = `--prompt "unterminated` },
			check:  CheckExtraArgs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			input := filepath.Join(t.TempDir(), "clip.mp3")
			touch(t, input)

			fake := &fakeRunner{}
			opts := []Option{WithLookPath(func(n string) (string, error) { return n, nil })}
			if tt.look != nil {
				opts = append(opts, WithLookPath(tt.look))
			}
			r := NewRunner(fake, opts...)

			var events []Event
			summary, err := r.Execute(context.Background(), cfg, []string{input}, collect(&events))
			require.Nil(t, summary)

			var setupErr *SetupError
			require.ErrorAs(t, err, &setupErr)
			require.Equal(t, tt.check, setupErr.Check)
			require.Zero(t, fake.count())
			require.Len(t, events, 1)
			require.Equal(t, EventRunFailed, events[0].Type)
		})
	}
}

func TestExecuteNoFiles(t *testing.T) {
	r := newTestRunner(&fakeRunner{})
	_, err := r.Execute(context.Background(), testConfig(t), nil, nil)
	require.ErrorIs(t, err, ErrNoFiles)
}

func TestExecuteCreatesOutputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = filepath.Join(t.TempDir(), "nested", "out")
	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	r := newTestRunner(&fakeRunner{})
	summary, err := r.Execute(context.Background(), cfg, []string{input}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.DirExists(t, cfg.OutputDir)
}

func TestDryPrepareLeavesOutputDirAlone(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = filepath.Join(t.TempDir(), "nested", "out")
	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	r := newTestRunner(&fakeRunner{})
	plan, err := r.DryPrepare(cfg, []string{input})
	require.NoError(t, err)
	require.NotEmpty(t, plan.BaseArgs)
	require.NoDirExists(t, cfg.OutputDir)
}

func TestDryPrepareRejectsOutputUnderFile(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	touch(t, blocker)
	cfg.OutputDir = filepath.Join(blocker, "out")
	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	r := newTestRunner(&fakeRunner{})
	_, err := r.DryPrepare(cfg, []string{input})

	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	require.Equal(t, CheckOutputDir, setupErr.Check)
}

func TestExecuteCommandArguments(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()
	cfg.Language = "en"
	cfg.Params = params.List{{Enabled: true, Name: "--temperature", Value: "0.2"}}
	cfg.ExtraArgs = `--prompt "hello world"`

	input := filepath.Join(t.TempDir(), "my clip.mp3")
	touch(t, input)

	fake := &fakeRunner{}
	r := newTestRunner(fake)
	var events []Event
	_, err := r.Execute(context.Background(), cfg, []string{input}, collect(&events))
	require.NoError(t, err)
	require.Equal(t, 2, fake.count())

	wav := filepath.Join(cfg.OutputDir, "my clip", "my clip.16k.mono.wav")
	transcode := fake.calls[0]
	require.Equal(t, []string{"ffmpeg", "-y", "-i", input}, transcode[:4])
	require.Equal(t, wav, transcode[len(transcode)-1])

	engine := fake.calls[1]
	require.Equal(t, cfg.WhisperBin, engine[0])
	require.Contains(t, strings.Join(engine, " "), "-l en")
	require.Contains(t, engine, "hello world")
	require.Equal(t, "-f", engine[len(engine)-2])
	require.Equal(t, wav, engine[len(engine)-1])

	cmds := ofType(events, EventCommand)
	require.Len(t, cmds, 2)
	require.True(t, strings.HasPrefix(cmds[0].Message, "$ ffmpeg"))
	require.Contains(t, cmds[0].Message, "'"+input+"'")
}

func TestExecuteSnapshotsFiles(t *testing.T) {
	cfg := testConfig(t)
	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)
	files := []string{input}

	r := newTestRunner(&fakeRunner{})
	plan, err := r.Prepare(cfg, files)
	require.NoError(t, err)
	files[0] = "changed"
	require.Equal(t, input, plan.Files[0])
}

func TestExecuteCancellationSkipsRemaining(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()

	inputs := t.TempDir()
	var files []string
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		p := filepath.Join(inputs, name)
		touch(t, p)
		files = append(files, p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakeRunner{extract: func(_ context.Context, argv []string) error {
		cancel()
		return os.WriteFile(argv[len(argv)-1], []byte("RIFF"), 0o644)
	}}
	r := newTestRunner(fake)

	summary, err := r.Execute(ctx, cfg, files, nil)
	require.NoError(t, err)
	require.True(t, summary.Cancelled)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 2, summary.Skipped)
	require.ErrorIs(t, summary.Results[0].Err, context.Canceled)
}

func TestRunClosesChannel(t *testing.T) {
	cfg := testConfig(t)
	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	r := newTestRunner(&fakeRunner{})
	var last Event
	for e := range r.Run(context.Background(), cfg, []string{input}) {
		last = e
	}
	require.Equal(t, EventRunFinished, last.Type)
	require.Equal(t, 1, last.Summary.Succeeded)
}

func TestExecuteLogsThroughContextLogger(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()
	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	var buf bytes.Buffer
	l := logger.New(&logger.Config{Level: "debug", Format: "json"}, &buf).WithField("run_id", "r-1")
	ctx := logger.WithLogger(context.Background(), l)

	r := newTestRunner(&fakeRunner{})
	_, err := r.Execute(ctx, cfg, []string{input}, nil)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, `"run_id":"r-1"`)
	require.Contains(t, out, `"component":"pipeline"`)
	require.Contains(t, out, "Run finished")
}
