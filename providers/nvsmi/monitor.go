package nvsmi

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Monitor fragt nvidia-smi nach Gerätezahl und freiem Speicher.
type Monitor struct {
	Bin string
}

func NewMonitor() *Monitor {
	return &Monitor{Bin: "nvidia-smi"}
}

// Count liefert die Anzahl der GPUs; ohne nvidia-smi ist das Ergebnis 0.
func (m *Monitor) Count(ctx context.Context) (int, error) {
	values, err := m.query(ctx, "index", -1)
	if errors.Is(err, exec.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(values), nil
}

// FreeMemoryGB liefert den freien Speicher eines Geräts in GB.
func (m *Monitor) FreeMemoryGB(ctx context.Context, index int) (float64, error) {
	values, err := m.query(ctx, "memory.free", index)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("keine Speicherangabe für GPU %d", index)
	}
	mib, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return 0, fmt.Errorf("ungültige Speicherangabe %q: %w", values[0], err)
	}
	return mib / 1024, nil
}

func (m *Monitor) query(ctx context.Context, field string, index int) ([]string, error) {
	args := []string{"--query-gpu=" + field, "--format=csv,noheader,nounits"}
	if index >= 0 {
		args = append(args, "-i", strconv.Itoa(index))
	}
	out, err := exec.CommandContext(ctx, m.Bin, args...).Output()
	if err != nil {
		return nil, err
	}
	return ParseLines(string(out)), nil
}

// ParseLines zerlegt die CSV-Ausgabe in nicht-leere Werte.
func ParseLines(out string) []string {
	var values []string
	for _, line := range strings.Split(out, "\n") {
		if v := strings.TrimSpace(line); v != "" {
			values = append(values, v)
		}
	}
	return values
}
