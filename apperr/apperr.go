// Package apperr enthält die Fehlertaxonomie der Ingest-Pipeline und die
// Klassifizierung von Datenbankfehlern.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrTransientExternal markiert Timeouts und Fehler externer Werkzeuge (Extraktor, Strukturierer).
	ErrTransientExternal = errors.New("externer Dienst vorübergehend fehlgeschlagen")
	// ErrValidation markiert Datensätze, die die Validierung nicht bestehen (z.B. leerer Titel).
	ErrValidation = errors.New("validierung fehlgeschlagen")
	// ErrConstraintViolation markiert Verletzungen von Unique-, Check- oder Fremdschlüssel-Constraints.
	ErrConstraintViolation = errors.New("constraint verletzt")
	// ErrResourceExhausted markiert einen erschöpften Verbindungspool oder eine nicht erreichbare Datenbank.
	ErrResourceExhausted = errors.New("ressource erschöpft")
	// ErrFatalConfiguration markiert Konfigurationsfehler, die den Start verhindern.
	ErrFatalConfiguration = errors.New("fatale konfiguration")
)

var taxonomy = []error{
	ErrTransientExternal,
	ErrValidation,
	ErrConstraintViolation,
	ErrResourceExhausted,
	ErrFatalConfiguration,
}

// Validation erzeugt einen Validierungsfehler mit Beschreibung.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transient umhüllt einen Fehler eines externen Kollaborateurs.
func Transient(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransientExternal, op, err)
}

// Kind liefert die Taxonomie-Kategorie eines Fehlers oder nil.
func Kind(err error) error {
	for _, k := range taxonomy {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Label liefert einen kurzen Namen der Kategorie für Logs und Metriken.
func Label(err error) string {
	switch Kind(err) {
	case ErrTransientExternal:
		return "transient"
	case ErrValidation:
		return "validation"
	case ErrConstraintViolation:
		return "constraint"
	case ErrResourceExhausted:
		return "exhausted"
	case ErrFatalConfiguration:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyDB ordnet einen Datenbankfehler der Taxonomie zu. Bereits
// klassifizierte Fehler und nil werden unverändert zurückgegeben.
func ClassifyDB(err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case strings.HasPrefix(code, "23"):
			return fmt.Errorf("%w: %w", ErrConstraintViolation, err) // integrity_constraint_violation
		case strings.HasPrefix(code, "53"), strings.HasPrefix(code, "08"):
			return fmt.Errorf("%w: %w", ErrResourceExhausted, err) // insufficient_resources, connection_exception
		}
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint failed"),
		strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "violates"):
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	case strings.Contains(msg, "too many connections"),
		strings.Contains(msg, "too many clients"),
		strings.Contains(msg, "bad connection"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "sql: database is closed"):
		return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}
	return err
}
