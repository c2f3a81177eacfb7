package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paper-kb/apperr"
	"paper-kb/models"

	"go.uber.org/zap"
)

const userAgent = "paper-kb-structurer/1.0"

// CustomTransport fügt jeder Anfrage User-Agent und optional den API-Schlüssel hinzu.
type CustomTransport struct {
	Transport http.RoundTripper
	APIKey    string
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}
	return t.Transport.RoundTrip(req)
}

// Client implementiert das Structurer-Interface über einen HTTP-Dienst.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient erstellt einen neuen Client. Der Timeout pro Aufruf kommt aus dem Kontext.
func NewClient(url, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		URL: url,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &CustomTransport{
				Transport: http.DefaultTransport,
				APIKey:    apiKey,
			},
		},
		Logger: logger,
	}
}

// Structure liest das Markdown-Artefakt und lässt es vom Dienst strukturieren.
func (c *Client) Structure(ctx context.Context, artifactPath string) (*models.StructuredRecord, error) {
	text, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Lesen des Artefakts: %w", err)
	}

	body, err := json.Marshal(StructureRequest{
		SourceName: strings.TrimSuffix(filepath.Base(artifactPath), filepath.Ext(artifactPath)),
		Markdown:   string(text),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperr.Transient("strukturierung", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.Transient("strukturierung",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var out StructureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Transient("strukturierung", fmt.Errorf("ungültige Antwort: %w", err))
	}
	if out.Error != "" {
		return nil, apperr.Transient("strukturierung", fmt.Errorf("dienst meldet: %s", out.Error))
	}
	if out.Record == nil {
		return nil, apperr.Validation("dienst lieferte keinen Datensatz für %s", filepath.Base(artifactPath))
	}

	c.Logger.Debug("Datensatz strukturiert",
		zap.String("artifact", artifactPath),
		zap.Int("authors", len(out.Record.Authors)))
	return out.Record, nil
}
