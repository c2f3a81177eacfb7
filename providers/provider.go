package providers

import (
	"context"
	"fmt"

	"paper-kb/models"
)

// Device ist die Geräte-Zuteilung eines Extraktions-Workers.
type Device struct {
	// Index ist -1 für die CPU.
	Index int
	Name  string
}

// CPUDevice ist das gemeinsame Gerät, wenn kein Beschleuniger vorhanden ist.
var CPUDevice = Device{Index: -1, Name: "cpu"}

// GPUDevice liefert das Gerät mit dem gegebenen Index.
func GPUDevice(index int) Device {
	return Device{Index: index, Name: fmt.Sprintf("cuda:%d", index)}
}

func (d Device) IsGPU() bool { return d.Index >= 0 }

// Extractor ist das Interface, das jedes Dokument-zu-Text-Werkzeug implementieren muss.
type Extractor interface {
	// Convert wandelt sourcePath um und legt das Artefakt als <stem>.md direkt in outputDir ab.
	// Rückgabe ist der Pfad des Artefakts.
	Convert(ctx context.Context, sourcePath, outputDir string, device Device) (string, error)
}

// Structurer ist das Interface des Text-zu-Datensatz-Dienstes.
type Structurer interface {
	Structure(ctx context.Context, artifactPath string) (*models.StructuredRecord, error)
}

// DeviceMonitor liefert Anzahl und freien Speicher der Beschleuniger.
type DeviceMonitor interface {
	Count(ctx context.Context) (int, error)
	FreeMemoryGB(ctx context.Context, index int) (float64, error)
}
