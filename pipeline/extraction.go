package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paper-kb/providers"

	"go.uber.org/zap"
)

// Artifact ist das Ergebnis der Extraktion.
type Artifact struct {
	Source string
	Path   string
}

// ArtifactArchiver spiegelt erzeugte Artefakte in ein Archiv.
type ArtifactArchiver interface {
	ArchiveArtifact(ctx context.Context, path string) error
}

// ExtractionStage kapselt die Umwandlung Dokument -> Markdown mit
// Gerätezuteilung und Überspringen bereits erzeugter Artefakte.
type ExtractionStage struct {
	Extractor providers.Extractor
	Monitor   providers.DeviceMonitor
	Devices   []providers.Device
	// InputDir ist die Wurzel der Quellen; ihre Unterverzeichnisse werden unter OutputDir gespiegelt.
	InputDir  string
	OutputDir string
	MinFreeGB float64
	Wait      time.Duration
	Poll      time.Duration
	Archive   ArtifactArchiver
	Logger    *zap.Logger
}

// ArtifactPath liefert den Zielpfad des Markdown-Artefakts einer Quelldatei:
// <outputDir>/<Unterverzeichnis relativ zu inputDir>/<stem>.md. Quellen außerhalb
// von inputDir landen direkt in outputDir.
func ArtifactPath(inputDir, outputDir, source string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(outputDir, relativeDir(inputDir, source), stem+".md")
}

func relativeDir(inputDir, source string) string {
	if inputDir == "" {
		return ""
	}
	rel, err := filepath.Rel(inputDir, filepath.Dir(source))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}

// DeviceFor liefert das Gerät des Workers (Round Robin); ohne Beschleuniger die CPU.
func (s *ExtractionStage) DeviceFor(worker int) providers.Device {
	if len(s.Devices) == 0 {
		return providers.CPUDevice
	}
	return s.Devices[worker%len(s.Devices)]
}

// Handle implementiert den Stufen-Handler.
func (s *ExtractionStage) Handle(ctx context.Context, worker int, source string) (Artifact, error) {
	target := ArtifactPath(s.InputDir, s.OutputDir, source)
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		s.Logger.Debug("Artifact exists, skipping extraction", zap.String("artifact", target))
		return Artifact{Source: source, Path: target}, nil
	}

	device := s.selectDevice(ctx, s.DeviceFor(worker))
	path, err := s.Extractor.Convert(ctx, source, filepath.Dir(target), device)
	if err != nil {
		return Artifact{}, err
	}

	if s.Archive != nil {
		if err := s.Archive.ArchiveArtifact(ctx, path); err != nil {
			s.Logger.Warn("Archiving artifact failed", zap.String("artifact", path), zap.Error(err))
		}
	}
	return Artifact{Source: source, Path: path}, nil
}

// selectDevice wartet, bis das zugeteilte Gerät genug freien Speicher meldet.
// Nach Ablauf der Wartezeit wird das Gerät mit dem meisten freien Speicher genommen.
func (s *ExtractionStage) selectDevice(ctx context.Context, assigned providers.Device) providers.Device {
	if !assigned.IsGPU() || s.Monitor == nil {
		return assigned
	}
	deadline := time.Now().Add(s.Wait)
	for {
		free, err := s.Monitor.FreeMemoryGB(ctx, assigned.Index)
		if err != nil {
			s.Logger.Warn("GPU memory query failed", zap.String("device", assigned.Name), zap.Error(err))
			return assigned
		}
		if free >= s.MinFreeGB {
			return assigned
		}
		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return assigned
		case <-time.After(s.Poll):
		}
	}
	best := s.leastLoaded(ctx, assigned)
	s.Logger.Info("GPU wait expired, falling back",
		zap.String("assigned", assigned.Name), zap.String("device", best.Name))
	return best
}

func (s *ExtractionStage) leastLoaded(ctx context.Context, fallback providers.Device) providers.Device {
	best, bestFree := fallback, -1.0
	for _, d := range s.Devices {
		if !d.IsGPU() {
			continue
		}
		free, err := s.Monitor.FreeMemoryGB(ctx, d.Index)
		if err != nil {
			continue
		}
		if free > bestFree {
			best, bestFree = d, free
		}
	}
	return best
}
