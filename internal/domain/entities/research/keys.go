// Package research defines the entities of the shared report cache: cache keys,
// cached entries, viewer records, quota accounts and resolution results.
package research

import (
	"fmt"
	"strings"
)

// ArtifactKind distinguishes single-subject reports from comparisons.
type ArtifactKind string

const (
	KindReport     ArtifactKind = "report"
	KindComparison ArtifactKind = "comparison"
)

// Supported report languages. Anything else falls back to DefaultLanguage.
const (
	LanguageEnglish  = "en"
	LanguageHindi    = "hi"
	LanguageGujarati = "gu"
	LanguageKannada  = "kn"

	DefaultLanguage = LanguageEnglish
)

const keySeparator = "|"

var supportedLanguages = map[string]bool{
	LanguageEnglish:  true,
	LanguageHindi:    true,
	LanguageGujarati: true,
	LanguageKannada:  true,
}

// CacheKey identifies one cacheable artifact. For comparisons the two subject
// ids are stored in sorted order, so A-vs-B and B-vs-A share an entry.
type CacheKey struct {
	Kind           ArtifactKind `json:"kind"`
	SubjectID      string       `json:"subjectId"`
	SubjectVariant string       `json:"subjectVariant,omitempty"`
	Language       string       `json:"language"`
}

// NewReportKey builds the key for a single-subject report.
func NewReportKey(subjectID, language string) (CacheKey, error) {
	subject := NormalizeSubject(subjectID)
	if subject == "" {
		return CacheKey{}, fmt.Errorf("%w: subject is required", ErrInvalidKey)
	}
	key := CacheKey{
		Kind:      KindReport,
		SubjectID: subject,
		Language:  NormalizeLanguage(language),
	}
	if err := key.Validate(); err != nil {
		return CacheKey{}, err
	}
	return key, nil
}

// NewComparisonKey builds the canonical key for a two-subject comparison.
func NewComparisonKey(subjectA, subjectB, language string) (CacheKey, error) {
	a := NormalizeSubject(subjectA)
	b := NormalizeSubject(subjectB)
	if a == "" || b == "" {
		return CacheKey{}, fmt.Errorf("%w: both subjects are required", ErrInvalidKey)
	}
	if a == b {
		return CacheKey{}, fmt.Errorf("%w: cannot compare a stock with itself", ErrInvalidKey)
	}
	if b < a {
		a, b = b, a
	}
	key := CacheKey{
		Kind:           KindComparison,
		SubjectID:      a,
		SubjectVariant: b,
		Language:       NormalizeLanguage(language),
	}
	if err := key.Validate(); err != nil {
		return CacheKey{}, err
	}
	return key, nil
}

// SubjectFor joins an exchange and a symbol into a subject id ("NSE:TCS").
// An empty exchange yields the bare symbol.
func SubjectFor(exchange, symbol string) string {
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ""
	}
	if exchange == "" {
		return symbol
	}
	return exchange + ":" + symbol
}

// NormalizeSubject trims and upper-cases a subject id.
func NormalizeSubject(subject string) string {
	return strings.ToUpper(strings.TrimSpace(subject))
}

// NormalizeLanguage lower-cases the language and maps unsupported values to
// DefaultLanguage.
func NormalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if supportedLanguages[language] {
		return language
	}
	return DefaultLanguage
}

// Validate reports whether the key is well formed.
func (k CacheKey) Validate() error {
	switch k.Kind {
	case KindReport:
		if k.SubjectVariant != "" {
			return fmt.Errorf("%w: report keys carry no variant", ErrInvalidKey)
		}
	case KindComparison:
		if k.SubjectVariant == "" {
			return fmt.Errorf("%w: comparison keys need two subjects", ErrInvalidKey)
		}
		if k.SubjectVariant <= k.SubjectID {
			return fmt.Errorf("%w: comparison subjects are not canonical", ErrInvalidKey)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, k.Kind)
	}
	for _, subject := range []string{k.SubjectID, k.SubjectVariant} {
		if strings.Contains(subject, keySeparator) || subject != NormalizeSubject(subject) {
			return fmt.Errorf("%w: subject %q", ErrInvalidKey, subject)
		}
	}
	if k.SubjectID == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidKey)
	}
	if !supportedLanguages[k.Language] {
		return fmt.Errorf("%w: language %q", ErrInvalidKey, k.Language)
	}
	return nil
}

// String returns the storage form of the key, e.g. "report|NSE:TCS||en".
func (k CacheKey) String() string {
	return strings.Join([]string{string(k.Kind), k.SubjectID, k.SubjectVariant, k.Language}, keySeparator)
}

// ParseCacheKey reverses CacheKey.String.
func ParseCacheKey(s string) (CacheKey, error) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 4 {
		return CacheKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	key := CacheKey{
		Kind:           ArtifactKind(parts[0]),
		SubjectID:      parts[1],
		SubjectVariant: parts[2],
		Language:       parts[3],
	}
	if err := key.Validate(); err != nil {
		return CacheKey{}, err
	}
	return key, nil
}
