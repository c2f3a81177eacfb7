// Package mock enthält Testdoubles für die externen Kollaborateure der Pipeline.
package mock

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"paper-kb/models"
	"paper-kb/providers"
)

// Extractor ist ein Testdouble für providers.Extractor. Ohne ConvertFunc
// schreibt er ein Markdown mit dem Dateinamen als Titelzeile.
type Extractor struct {
	ConvertFunc func(ctx context.Context, sourcePath, outputDir string, device providers.Device) (string, error)

	calls   atomic.Int64
	mu      sync.Mutex
	devices []providers.Device
}

func (m *Extractor) Convert(ctx context.Context, sourcePath, outputDir string, device providers.Device) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.devices = append(m.devices, device)
	m.mu.Unlock()

	if m.ConvertFunc != nil {
		return m.ConvertFunc(ctx, sourcePath, outputDir, device)
	}
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	target := filepath.Join(outputDir, stem+".md")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	return target, os.WriteFile(target, []byte("# "+stem+"\n"), 0o644)
}

// CallCount liefert die Anzahl der Aufrufe.
func (m *Extractor) CallCount() int { return int(m.calls.Load()) }

// Devices liefert die übergebenen Geräte in Aufrufreihenfolge.
func (m *Extractor) Devices() []providers.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]providers.Device(nil), m.devices...)
}

// Structurer ist ein Testdouble für providers.Structurer. Ohne StructureFunc
// liefert er einen Datensatz mit dem Dateistamm als Titel.
type Structurer struct {
	StructureFunc func(ctx context.Context, artifactPath string) (*models.StructuredRecord, error)

	calls atomic.Int64
}

func (m *Structurer) Structure(ctx context.Context, artifactPath string) (*models.StructuredRecord, error) {
	m.calls.Add(1)
	if m.StructureFunc != nil {
		return m.StructureFunc(ctx, artifactPath)
	}
	stem := strings.TrimSuffix(filepath.Base(artifactPath), filepath.Ext(artifactPath))
	return &models.StructuredRecord{Title: stem, Authors: []string{"Test Author"}}, nil
}

func (m *Structurer) CallCount() int { return int(m.calls.Load()) }

// DeviceMonitor liefert feste Werte für Gerätezahl und freien Speicher.
type DeviceMonitor struct {
	Devices int
	// FreeGB je Geräteindex; fehlende Einträge gelten als 0.
	FreeGB map[int]float64
	Err    error

	mu sync.Mutex
}

func (m *DeviceMonitor) Count(ctx context.Context) (int, error) {
	return m.Devices, m.Err
}

func (m *DeviceMonitor) FreeMemoryGB(ctx context.Context, index int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.FreeGB[index], nil
}

// SetFree ändert den freien Speicher eines Geräts.
func (m *DeviceMonitor) SetFree(index int, gb float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FreeGB == nil {
		m.FreeGB = make(map[int]float64)
	}
	m.FreeGB[index] = gb
}
