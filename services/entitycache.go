package services

import "sync"

// EntityKind bezeichnet die Tabelle eines natürlichen Schlüssels.
type EntityKind string

const (
	KindVenue       EntityKind = "venue"
	KindCategory    EntityKind = "category"
	KindContributor EntityKind = "contributor"
	KindTag         EntityKind = "tag"
)

// CacheKey identifiziert eine Entität über Art, Geltungsbereich und natürlichen Schlüssel.
// Scope ist nur für Tags gesetzt (Kategorie-ID).
type CacheKey struct {
	Kind  EntityKind
	Scope uint
	Value string
}

// EntityCache bildet natürliche Schlüssel auf Surrogat-IDs ab. Einträge sind nur
// Hinweise: ein Fehltreffer führt immer zurück zur Datenbank.
type EntityCache struct {
	mu         sync.Mutex
	entries    map[CacheKey]uint
	maxEntries int
	resetEvery int
	processed  int
	resets     int
	onReset    func()
}

// NewEntityCache erstellt einen Cache, der bei maxEntries und nach resetEvery
// verarbeiteten Datensätzen vollständig geleert wird.
func NewEntityCache(maxEntries, resetEvery int) *EntityCache {
	return &EntityCache{
		entries:    make(map[CacheKey]uint),
		maxEntries: maxEntries,
		resetEvery: resetEvery,
	}
}

// OnReset registriert fn für jede Leerung. fn läuft unter dem Cache-Lock.
func (c *EntityCache) OnReset(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReset = fn
}

func (c *EntityCache) reset() {
	c.entries = make(map[CacheKey]uint)
	c.resets++
	if c.onReset != nil {
		c.onReset()
	}
}

func (c *EntityCache) Get(key CacheKey) (uint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[key]
	return id, ok
}

func (c *EntityCache) Put(key CacheKey, id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.reset()
	}
	c.entries[key] = id
}

// Tick zählt einen verarbeiteten Datensatz und leert den Cache bei Erreichen
// des Intervalls. Gibt true zurück, wenn geleert wurde.
func (c *EntityCache) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
	if c.resetEvery > 0 && c.processed%c.resetEvery == 0 {
		c.reset()
		return true
	}
	return false
}

func (c *EntityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *EntityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Resets liefert die Anzahl der bisherigen Leerungen.
func (c *EntityCache) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}
