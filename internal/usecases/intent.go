package usecases

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"showroom_bot/internal/repository"
)

//go:embed patterns.yaml
var patternsYAML []byte

const (
	IntentGreeting     = "greeting"
	IntentPrice        = "price"
	IntentPhoto        = "photo"
	IntentAvailability = "availability"
	IntentFinancing    = "financing"
	IntentTestDrive    = "test_drive"
	IntentTradeIn      = "trade_in"
	IntentLocation     = "location"
	IntentGeneral      = "general"
)

type patternFile struct {
	Intents []struct {
		Name     string   `yaml:"name"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"intents"`
	Brands        map[string][]string `yaml:"brands"`
	PhotoRequests []string            `yaml:"photo_requests"`
	PhotoClaims   []string            `yaml:"photo_claims"`
	ReferenceCode string              `yaml:"reference_code"`
}

// Patterns is the compiled form of patterns.yaml.
type Patterns struct {
	intents       []intentKeywords
	models        map[string]string // model -> brand
	modelTokens   map[string]bool   // models without separators, for code matching
	modelNames    []string
	brands        []string
	photoRequests []*regexp.Regexp
	photoClaims   []*regexp.Regexp
	referenceCode *regexp.Regexp
}

type intentKeywords struct {
	name     string
	keywords []string
}

// LoadPatterns compiles a pattern file.
func LoadPatterns(raw []byte) (*Patterns, error) {
	var f patternFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}

	p := &Patterns{models: map[string]string{}, modelTokens: map[string]bool{}}
	for _, in := range f.Intents {
		kws := make([]string, 0, len(in.Keywords))
		for _, k := range in.Keywords {
			kws = append(kws, strings.ToLower(k))
		}
		p.intents = append(p.intents, intentKeywords{name: in.Name, keywords: kws})
	}
	for brand, models := range f.Brands {
		p.brands = append(p.brands, brand)
		for _, m := range models {
			p.models[strings.ToLower(m)] = brand
			p.modelNames = append(p.modelNames, strings.ToLower(m))
			p.modelTokens[compactToken(m)] = true
		}
	}
	sort.Strings(p.brands)
	sort.Strings(p.modelNames)

	var err error
	if p.photoRequests, err = compileAll(f.PhotoRequests); err != nil {
		return nil, fmt.Errorf("photo_requests: %w", err)
	}
	if p.photoClaims, err = compileAll(f.PhotoClaims); err != nil {
		return nil, fmt.Errorf("photo_claims: %w", err)
	}
	if p.referenceCode, err = regexp.Compile(f.ReferenceCode); err != nil {
		return nil, fmt.Errorf("reference_code: %w", err)
	}
	return p, nil
}

// DefaultPatterns returns the embedded table. It panics on a malformed file since that is a build defect.
func DefaultPatterns() *Patterns {
	p, err := LoadPatterns(patternsYAML)
	if err != nil {
		panic(err)
	}
	return p
}

func compactToken(s string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.ToLower(s))
}

// IsModelName reports whether token names a known car model (L300, CX-30).
func (p *Patterns) IsModelName(token string) bool {
	return p.modelTokens[compactToken(token)]
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile("(?i)" + e)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", e, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Intent is the local, provider-free reading of a customer message.
type Intent struct {
	Name       string            `json:"name"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Words      int               `json:"words"`
}

// Budget returns the parsed budget entity, or 0.
func (i Intent) Budget() int64 {
	v, _ := strconv.ParseInt(i.Entities["budget"], 10, 64)
	return v
}

type IntentExtractor struct {
	patterns *Patterns
}

func NewIntentExtractor(p *Patterns) *IntentExtractor {
	return &IntentExtractor{patterns: p}
}

var (
	budgetPattern = regexp.MustCompile(`(?i)(?:rp\.?\s*)?(\d+(?:[.,]\d+)*)\s*(juta|jt|miliar|m|ribu|rb)\b`)
	plainRupiah   = regexp.MustCompile(`(?i)(?:rp\.?\s*)?\b(\d{1,3}(?:\.\d{3}){2,})\b`)
	yearPattern   = regexp.MustCompile(`\b(19[89]\d|20[0-4]\d)\b`)
)

// padded lowercases text and surrounds every word with single spaces so keywords match on word boundaries.
func padded(text string) string {
	return " " + strings.Join(strings.Fields(strings.ToLower(text)), " ") + " "
}

func (e *IntentExtractor) Extract(text string) Intent {
	norm := padded(strings.NewReplacer("?", " ", "!", " ", ",", " ").Replace(text))
	words := len(strings.Fields(norm))

	best, bestScore, total := IntentGeneral, 0, 0
	for _, in := range e.patterns.intents {
		score := 0
		for _, kw := range in.keywords {
			if strings.Contains(norm, " "+kw+" ") {
				score++
			}
		}
		total += score
		if score > bestScore {
			best, bestScore = in.name, score
		}
	}

	intent := Intent{Name: best, Entities: map[string]string{}, Words: words}
	switch {
	case bestScore == 0:
		intent.Confidence = 0.3
	default:
		intent.Confidence = 0.5 + 0.45*float64(bestScore)/float64(total)
	}

	for _, model := range e.patterns.modelNames {
		if strings.Contains(norm, " "+model+" ") {
			intent.Entities["model"] = model
			intent.Entities["brand"] = e.patterns.models[model]
			break
		}
	}
	if _, ok := intent.Entities["brand"]; !ok {
		for _, brand := range e.patterns.brands {
			if strings.Contains(norm, " "+brand+" ") {
				intent.Entities["brand"] = brand
				break
			}
		}
	}
	if budget := ParseBudget(text); budget > 0 {
		intent.Entities["budget"] = strconv.FormatInt(budget, 10)
	}
	if m := yearPattern.FindString(text); m != "" {
		intent.Entities["year"] = m
	}
	return intent
}

// ParseBudget finds an IDR amount such as "150 juta", "150jt", "1,2 M" or "150.000.000".
func ParseBudget(text string) int64 {
	if m := budgetPattern.FindStringSubmatch(text); m != nil {
		if v, err := repository.ParseRupiah(m[1] + " " + m[2]); err == nil {
			return v
		}
	}
	if m := plainRupiah.FindStringSubmatch(text); m != nil {
		if v, err := repository.ParseRupiah(m[1]); err == nil {
			return v
		}
	}
	return 0
}
