package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkerIgnoresSecondStart(t *testing.T) {
	cfg := testConfig(t)
	input := filepath.Join(t.TempDir(), "clip.mp3")
	touch(t, input)

	release := make(chan struct{})
	fake := &fakeRunner{extract: func(_ context.Context, argv []string) error {
		<-release
		return os.WriteFile(argv[len(argv)-1], []byte("RIFF"), 0o644)
	}}
	w := NewWorker(newTestRunner(fake))

	events, ok := w.Start(context.Background(), cfg, []string{input})
	require.True(t, ok)
	require.True(t, w.Active())

	second, ok := w.Start(context.Background(), cfg, []string{input})
	require.False(t, ok)
	require.Nil(t, second)

	close(release)
	var last Event
	for e := range events {
		last = e
	}
	require.Equal(t, EventRunFinished, last.Type)
	require.Equal(t, 1, last.Summary.Succeeded)
	require.False(t, w.Active())
	require.Equal(t, 2, fake.count())

	again, ok := w.Start(context.Background(), cfg, []string{input})
	require.True(t, ok)
	for range again {
	}
}

func TestWorkerCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputDir = t.TempDir()
	inputs := t.TempDir()
	a := filepath.Join(inputs, "a.mp3")
	b := filepath.Join(inputs, "b.mp3")
	touch(t, a)
	touch(t, b)

	started := make(chan struct{})
	fake := &fakeRunner{extract: func(ctx context.Context, argv []string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	w := NewWorker(newTestRunner(fake))
	require.False(t, w.Cancel())

	events, ok := w.Start(context.Background(), cfg, []string{a, b})
	require.True(t, ok)
	<-started
	require.True(t, w.Cancel())

	var last Event
	for e := range events {
		last = e
	}
	require.True(t, last.Summary.Cancelled)
	require.Equal(t, 1, last.Summary.Failed)
	require.Equal(t, 1, last.Summary.Skipped)
	require.False(t, w.Active())
}
