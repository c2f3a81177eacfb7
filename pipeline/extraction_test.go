package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"paper-kb/providers"
	"paper-kb/providers/mock"
	"paper-kb/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchive struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (a *recordingArchive) ArchiveArtifact(ctx context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, path)
	return a.err
}

func TestArtifactPath(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		source string
		want   string
	}{
		{"top level", "/in", "/in/paper.pdf", filepath.Join("out", "paper.md")},
		{"subdirectory mirrored", "/in", "/in/a/b/paper.pdf", filepath.Join("out", "a", "b", "paper.md")},
		{"outside input dir", "/in", "/elsewhere/paper.pdf", filepath.Join("out", "paper.md")},
		{"no input dir", "", "/in/sub/paper.pdf", filepath.Join("out", "paper.md")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArtifactPath(tt.input, "out", tt.source))
		})
	}
}

func TestExtraction_SameNameInDifferentDirs(t *testing.T) {
	in := t.TempDir()
	for _, dir := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(in, dir), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(in, dir, "paper.pdf"), []byte("%PDF"), 0o644))
	}
	sources, err := ScanSources(in, 0)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	out := t.TempDir()
	ext := &mock.Extractor{}
	s := &ExtractionStage{Extractor: ext, InputDir: in, OutputDir: out, Logger: testutil.Logger(t)}

	first, err := s.Handle(context.Background(), 0, sources[0])
	require.NoError(t, err)
	second, err := s.Handle(context.Background(), 0, sources[1])
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "a", "paper.md"), first.Path)
	assert.Equal(t, filepath.Join(out, "b", "paper.md"), second.Path)
	assert.Equal(t, 2, ext.CallCount())
	assert.FileExists(t, first.Path)
	assert.FileExists(t, second.Path)

	// erneuter Lauf überspringt beide
	_, err = s.Handle(context.Background(), 0, sources[1])
	require.NoError(t, err)
	assert.Equal(t, 2, ext.CallCount())
}

func TestDeviceFor_RoundRobin(t *testing.T) {
	s := &ExtractionStage{Devices: []providers.Device{providers.GPUDevice(0), providers.GPUDevice(1)}}
	assert.Equal(t, "cuda:0", s.DeviceFor(0).Name)
	assert.Equal(t, "cuda:1", s.DeviceFor(1).Name)
	assert.Equal(t, "cuda:0", s.DeviceFor(2).Name)

	cpu := &ExtractionStage{}
	assert.Equal(t, providers.CPUDevice, cpu.DeviceFor(3))
}

func TestExtraction_SkipsExistingArtifact(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "paper.md"), []byte("# done"), 0o644))
	ext := &mock.Extractor{}
	s := &ExtractionStage{Extractor: ext, OutputDir: out, Logger: testutil.Logger(t)}

	a, err := s.Handle(context.Background(), 0, "/in/paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "paper.md"), a.Path)
	assert.Equal(t, "/in/paper.pdf", a.Source)
	assert.Zero(t, ext.CallCount())
}

func TestExtraction_ConvertsAndArchives(t *testing.T) {
	archive := &recordingArchive{err: errors.New("s3 down")}
	ext := &mock.Extractor{}
	s := &ExtractionStage{Extractor: ext, OutputDir: t.TempDir(), Archive: archive, Logger: testutil.Logger(t)}

	a, err := s.Handle(context.Background(), 0, "/in/fresh.pdf")
	require.NoError(t, err)
	assert.FileExists(t, a.Path)
	assert.Equal(t, []string{a.Path}, archive.paths)
	assert.Equal(t, []providers.Device{providers.CPUDevice}, ext.Devices())
}

func TestExtraction_WaitsThenFallsBackToLeastLoaded(t *testing.T) {
	monitor := &mock.DeviceMonitor{Devices: 2, FreeGB: map[int]float64{0: 1, 1: 8}}
	ext := &mock.Extractor{}
	s := &ExtractionStage{
		Extractor: ext,
		Monitor:   monitor,
		Devices:   []providers.Device{providers.GPUDevice(0), providers.GPUDevice(1)},
		OutputDir: t.TempDir(),
		MinFreeGB: 4,
		Wait:      30 * time.Millisecond,
		Poll:      5 * time.Millisecond,
		Logger:    testutil.Logger(t),
	}

	_, err := s.Handle(context.Background(), 0, "/in/a.pdf")
	require.NoError(t, err)
	_, err = s.Handle(context.Background(), 1, "/in/b.pdf")
	require.NoError(t, err)

	assert.Equal(t, []providers.Device{providers.GPUDevice(1), providers.GPUDevice(1)}, ext.Devices())
}

func TestExtraction_UsesAssignedDeviceOnceMemoryFrees(t *testing.T) {
	monitor := &mock.DeviceMonitor{Devices: 1, FreeGB: map[int]float64{0: 0}}
	ext := &mock.Extractor{}
	s := &ExtractionStage{
		Extractor: ext,
		Monitor:   monitor,
		Devices:   []providers.Device{providers.GPUDevice(0)},
		OutputDir: t.TempDir(),
		MinFreeGB: 4,
		Wait:      time.Second,
		Poll:      5 * time.Millisecond,
		Logger:    testutil.Logger(t),
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		monitor.SetFree(0, 16)
	}()

	_, err := s.Handle(context.Background(), 0, "/in/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []providers.Device{providers.GPUDevice(0)}, ext.Devices())
}
