package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eternnoir/whispscribe/pkg/pipeline"
)

type testEnv struct {
	dir      string
	settings string
	external string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	return &testEnv{
		dir:      dir,
		settings: filepath.Join(dir, "settings.json"),
		external: filepath.Join(dir, "whisper-pipeline.conf"),
	}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	global := []string{
		"--settings", e.settings,
		"--pipeline-config", e.external,
		"--history-db", filepath.Join(e.dir, "history.db"),
		"--log-level", "error",
	}
	rootCmd.SetArgs(append(global, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestConfigSetGetUnset(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.external, []byte("LANG=fr\n"), 0o644))

	out, err := env.run(t, "config", "get", "lang")
	require.NoError(t, err)
	require.Equal(t, "fr\n", out)

	_, err = env.run(t, "config", "set", "lang", "en")
	require.NoError(t, err)
	out, err = env.run(t, "config", "get", "lang")
	require.NoError(t, err)
	require.Equal(t, "en\n", out)

	_, err = env.run(t, "config", "set", "KEEP_WAV", "1")
	require.NoError(t, err)
	out, err = env.run(t, "config", "get", "keep_wav")
	require.NoError(t, err)
	require.Equal(t, "true\n", out)

	_, err = env.run(t, "config", "unset", "lang")
	require.NoError(t, err)
	out, err = env.run(t, "config", "get", "lang")
	require.NoError(t, err)
	require.Equal(t, "fr\n", out)

	_, err = env.run(t, "config", "set", "threads", "lots")
	require.Error(t, err)
	_, err = env.run(t, "config", "set", "nope", "1")
	require.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "config", "path")
	require.NoError(t, err)
	require.Contains(t, out, env.settings)
	require.Contains(t, out, env.external)
}

func TestParamsCommands(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "params", "add", "--", "--temperature", "0.2")
	require.NoError(t, err)
	_, err = env.run(t, "params", "add", "--", "--flag")
	require.NoError(t, err)
	_, err = env.run(t, "params", "add", "--", "--temperature", "0.4")
	require.NoError(t, err)

	out, err := env.run(t, "params", "list")
	require.NoError(t, err)
	require.Contains(t, out, "args: --temperature 0.4 --flag")

	_, err = env.run(t, "params", "disable", "--", "--flag")
	require.NoError(t, err)
	out, err = env.run(t, "params", "list")
	require.NoError(t, err)
	require.Contains(t, out, "args: --temperature 0.4\n")

	_, err = env.run(t, "params", "remove", "1")
	require.NoError(t, err)
	out, err = env.run(t, "params", "list")
	require.NoError(t, err)
	require.NotContains(t, out, "--temperature")
	require.Contains(t, out, "--flag")

	_, err = env.run(t, "params", "remove", "--", "--flag")
	require.NoError(t, err)
	out, err = env.run(t, "params", "list")
	require.NoError(t, err)
	require.Contains(t, out, "No parameters.")

	_, err = env.run(t, "params", "enable", "--", "--missing")
	require.Error(t, err)
}

func TestTranscribeDryRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses an executable shell script")
	}
	env := newTestEnv(t)
	tools := filepath.Join(env.dir, "tools")
	require.NoError(t, os.MkdirAll(tools, 0o755))
	whisperBin := filepath.Join(tools, "whisper-cli")
	model := filepath.Join(tools, "model.bin")
	ffmpegBin := filepath.Join(tools, "ffmpeg")
	require.NoError(t, os.WriteFile(whisperBin, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(model, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(ffmpegBin, []byte("#!/bin/sh\n"), 0o755))

	input := filepath.Join(env.dir, "talk.mp3")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o644))

	outdir := filepath.Join(env.dir, "out")
	out, err := env.run(t, "transcribe", input, input, "--dry-run",
		"--set", "whisper_bin="+whisperBin,
		"--set", "model_path="+model,
		"--set", "ffmpeg_bin="+ffmpegBin,
		"--set", "lang=en",
		"--outdir", outdir,
	)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(out, "# "+input), "duplicate inputs are dropped")
	require.NoDirExists(t, outdir)

	wav := filepath.Join(outdir, "talk", "talk.16k.mono.wav")
	require.Contains(t, out, "\n"+ffmpegBin+" ")
	require.Contains(t, out, "-i "+input)
	require.Contains(t, out, whisperBin+" -m "+model+" -l en")
	require.Contains(t, out, "-f "+wav)
	require.NoFileExists(t, wav)
}

func TestResolveInputsDeduplicates(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp3")
	files, err := resolveInputs([]string{a, filepath.Join(dir, ".", "a.mp3"), filepath.Join(dir, "b.mp3")})
	require.NoError(t, err)
	require.Equal(t, []string{a, filepath.Join(dir, "b.mp3")}, files)
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, pipeline.Event{Type: pipeline.EventFileFailed, File: "/in/clip.mp3", Message: "boom", Err: errors.New("boom")})
	printEvent(&buf, pipeline.Event{Type: pipeline.EventWarning, Message: "renamed"})
	printEvent(&buf, pipeline.Event{
		Type:    pipeline.EventRunFinished,
		Message: "Done. 1 succeeded, 1 failed",
		Summary: &pipeline.Summary{Total: 2, Succeeded: 1, Failed: 1, Duration: 3 * time.Second},
	})

	out := buf.String()
	require.Contains(t, out, "❌ clip.mp3: boom")
	require.Contains(t, out, "⚠️  renamed")
	require.Contains(t, out, "Total: 2  Succeeded: 1  Failed: 1")
}
