package services

import (
	"fmt"
	"os"
	"strings"

	"paper-kb/models"

	"gopkg.in/yaml.v3"
)

// VenueBonus vergibt Punkte, wenn alle Begriffe aus AllOf und mindestens einer
// aus AnyOf im Venue-Namen vorkommen.
type VenueBonus struct {
	AllOf  []string `yaml:"all_of"`
	AnyOf  []string `yaml:"any_of"`
	Weight int      `yaml:"weight"`
}

// CategoryRule beschreibt die Signale eines Forschungsfelds.
type CategoryRule struct {
	Name         string       `yaml:"name"`
	VenueAliases []string     `yaml:"venue_aliases"`
	VenueBonuses []VenueBonus `yaml:"venue_bonuses"`
	Signals      []string     `yaml:"signals"`
}

// DefaultCategoryRules sind die eingebauten Regeln für die Feldzuordnung.
func DefaultCategoryRules() []CategoryRule {
	return []CategoryRule{
		{
			Name:         "Chemical Engineering",
			VenueAliases: []string{"chemical engineering", "chemical engineering journal", "cej"},
			VenueBonuses: []VenueBonus{{AllOf: []string{"chemical", "engineering"}, Weight: 2}},
			Signals:      []string{"chemical engineering", "chem eng", "reaction", "catalysis", "adsorption", "oxygen vacancy", "kinetics", "process"},
		},
		{
			Name:         "Marine Pollution",
			VenueAliases: []string{"marine pollution bulletin", "marine pollution"},
			VenueBonuses: []VenueBonus{{AllOf: []string{"marine"}, AnyOf: []string{"pollution", "bulletin"}, Weight: 2}},
			Signals:      []string{"marine pollution", "marine", "coastal", "ocean", "sea", "reef"},
		},
		{
			Name:         "Environmental Engineering",
			VenueAliases: []string{"water research", "journal of environmental"},
			VenueBonuses: []VenueBonus{{AnyOf: []string{"water", "environment", "environmental"}, Weight: 1}},
			Signals: []string{"wastewater", "water quality", "sewage", "hrt", "cod", "bod", "bioreactor", "activated sludge",
				"nitrification", "denitrification", "pollutant", "removal", "treatment"},
		},
		{
			Name:    "Materials Science",
			Signals: []string{"materials", "nanomaterial", "nanomaterials", "sensor", "graphene", "lignocellulose", "composite", "adsorbent"},
		},
	}
}

// LoadCategoryRules liest Regeln aus einer YAML-Datei (Liste von Regeln).
func LoadCategoryRules(path string) ([]CategoryRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Lesen der Kategorie-Regeln: %w", err)
	}
	var rules []CategoryRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("fehler beim Parsen der Kategorie-Regeln: %w", err)
	}
	for i, r := range rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("kategorie-regel %d ohne Namen", i)
		}
	}
	return rules, nil
}

// CategoryClassifier leitet das Forschungsfeld eines Datensatzes aus Venue,
// Schlagworten, Titel und Abstract ab.
type CategoryClassifier struct {
	rules []CategoryRule
}

func NewCategoryClassifier(rules []CategoryRule) *CategoryClassifier {
	if len(rules) == 0 {
		rules = DefaultCategoryRules()
	}
	return &CategoryClassifier{rules: rules}
}

// Infer liefert den Namen des Felds mit der höchsten Punktzahl oder "", wenn
// kein Signal trifft. Ein Venue-Alias entscheidet sofort; bei Gleichstand
// gewinnt die zuerst registrierte Regel.
func (cc *CategoryClassifier) Infer(rec *models.StructuredRecord) string {
	venue := ""
	if rec.Venue != nil {
		venue = wordText(*rec.Venue)
	}

	if venue != "" {
		for _, r := range cc.rules {
			for _, alias := range r.VenueAliases {
				if containsTerm(venue, alias) {
					return r.Name
				}
			}
		}
	}

	parts := []string{rec.Title}
	if rec.Abstract != nil {
		parts = append(parts, *rec.Abstract)
	}
	parts = append(parts, rec.Keywords...)
	if rec.Venue != nil {
		parts = append(parts, *rec.Venue)
	}
	content := wordText(strings.Join(parts, " "))

	best, bestScore := "", 0
	for _, r := range cc.rules {
		score := 0
		if venue != "" {
			for _, b := range r.VenueBonuses {
				if b.matches(venue) {
					score += b.Weight
				}
			}
		}
		for _, s := range r.Signals {
			if containsTerm(content, s) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = r.Name, score
		}
	}
	return best
}

func (b VenueBonus) matches(venue string) bool {
	for _, t := range b.AllOf {
		if !containsTerm(venue, t) {
			return false
		}
	}
	if len(b.AnyOf) == 0 {
		return len(b.AllOf) > 0
	}
	for _, t := range b.AnyOf {
		if containsTerm(venue, t) {
			return true
		}
	}
	return false
}

// wordText zerlegt Text in normalisierte Wörter, getrennt und umrahmt von Leerzeichen.
func wordText(s string) string {
	fields := strings.FieldsFunc(NormalizeName(s), func(r rune) bool {
		return !(r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 127)
	})
	return " " + strings.Join(fields, " ") + " "
}

func containsTerm(text, term string) bool {
	t := strings.TrimSpace(wordText(term))
	if t == "" {
		return false
	}
	return strings.Contains(text, " "+t+" ")
}
