package mineru

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"paper-kb/apperr"
	"paper-kb/providers"

	"go.uber.org/zap"
)

// Options steuern den Aufruf der MinerU-CLI.
type Options struct {
	Bin     string
	Backend string
	Method  string
	Lang    string
	TempDir string
}

// Extractor ruft die MinerU-CLI als Unterprozess auf und legt das Markdown
// als <outputDir>/<stem>.md ab.
type Extractor struct {
	Options Options
	Logger  *zap.Logger
}

func NewExtractor(opts Options, logger *zap.Logger) *Extractor {
	if opts.Backend == "" {
		opts.Backend = "pipeline"
	}
	if opts.Method == "" {
		opts.Method = "auto"
	}
	if opts.Lang == "" {
		opts.Lang = "en"
	}
	return &Extractor{Options: opts, Logger: logger}
}

// Args liefert die Kommandozeile für eine Quelldatei. Eine GPU ist über
// CUDA_VISIBLE_DEVICES die einzige sichtbare und heißt daher cuda:0.
func (e *Extractor) Args(sourcePath, workDir string, device providers.Device) []string {
	name := device.Name
	if device.IsGPU() {
		name = "cuda:0"
	}
	return []string{
		"-p", sourcePath,
		"-o", workDir,
		"-b", e.Options.Backend,
		"-d", name,
		"-m", e.Options.Method,
		"-l", e.Options.Lang,
	}
}

// Convert implementiert providers.Extractor.
func (e *Extractor) Convert(ctx context.Context, sourcePath, outputDir string, device providers.Device) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	workDir, err := os.MkdirTemp(e.Options.TempDir, "mineru_"+stem+"_")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	cmd := exec.CommandContext(ctx, e.Options.Bin, e.Args(sourcePath, workDir, device)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if device.IsGPU() {
		cmd.Env = append(os.Environ(), fmt.Sprintf("CUDA_VISIBLE_DEVICES=%d", device.Index))
	}

	log := e.Logger.With(zap.String("source", sourcePath), zap.String("device", device.Name))
	log.Debug("Starte MinerU")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", apperr.Transient("extraktion", ctx.Err())
		}
		return "", apperr.Transient("extraktion", fmt.Errorf("%w: %s", err, tail(stderr.String(), 400)))
	}

	md, err := findMarkdown(workDir, stem)
	if err != nil {
		return "", apperr.Transient("extraktion", err)
	}
	target := filepath.Join(outputDir, stem+".md")
	if err := moveFile(md, target); err != nil {
		return "", fmt.Errorf("fehler beim Verschieben des Artefakts: %w", err)
	}
	log.Info("Extraktion abgeschlossen", zap.String("artifact", target))
	return target, nil
}

// findMarkdown sucht das erzeugte Markdown; bevorzugt <stem>.md.
func findMarkdown(root, stem string) (string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", errors.New("kein Markdown erzeugt")
	}
	for _, f := range found {
		if filepath.Base(f) == stem+".md" {
			return f, nil
		}
	}
	return found[0], nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename scheitert über Dateisystemgrenzen hinweg.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
