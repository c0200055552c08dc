package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"mlplayground/ml"
)

// CleaningRule inspects one record. A non-nil error rejects the record unless
// it is a *Warning; a returned record replaces the input.
type CleaningRule interface {
	Apply(*ml.Record) (*ml.Record, error)
	Name() string
}

// batchRule is implemented by rules that keep state across one batch.
type batchRule interface {
	Reset()
}

// Warning flags a record without rejecting it.
type Warning struct {
	Message string
}

func (w *Warning) Error() string { return w.Message }

// QualityIssue describes one rule failure.
type QualityIssue struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"` // low, high
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RecordID  string    `json:"record_id"`
	Index     int       `json:"index"`
}

// RecordCleaner validates batches before they reach the encoder.
type RecordCleaner struct {
	rules      []CleaningRule
	issues     []QualityIssue
	issuesLock sync.RWMutex

	stats     CleaningStats
	statsLock sync.RWMutex

	maxIssues int
	logger    *zap.Logger
}

// DefaultMaxIssues bounds the issue log; older issues are dropped first.
const DefaultMaxIssues = 1000

type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Warnings       int64            `json:"warnings"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// NewRecordCleaner installs the default rules for the encoder's vocabularies.
func NewRecordCleaner(enc *ml.Encoder, logger *zap.Logger) *RecordCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &RecordCleaner{
		stats:     CleaningStats{Issues: make(map[string]int64)},
		maxIssues: DefaultMaxIssues,
		logger:    logger,
	}

	cleaner.AddRule(NewUnicodeNormalizationRule())
	cleaner.AddRule(NewIdentifierRule())
	cleaner.AddRule(NewNumericValidationRule())
	cleaner.AddRule(NewVocabularyRule(enc))
	cleaner.AddRule(NewDuplicateDetectionRule())

	return cleaner
}

func (rc *RecordCleaner) AddRule(rule CleaningRule) {
	rc.rules = append(rc.rules, rule)
	rc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns the records that passed every rule, in input order, together
// with all issues raised. Warnings do not reject.
func (rc *RecordCleaner) Clean(records []ml.Record) ([]ml.Record, []QualityIssue) {
	cleaned := make([]ml.Record, 0, len(records))
	var issues []QualityIssue

	rc.statsLock.Lock()
	defer rc.statsLock.Unlock()

	for _, rule := range rc.rules {
		if r, ok := rule.(batchRule); ok {
			r.Reset()
		}
	}

	for i := range records {
		rc.stats.TotalProcessed++

		original := records[i]
		record := &records[i]
		rejected := false
		var recordIssues []QualityIssue

		for _, rule := range rc.rules {
			next, err := rule.Apply(record)
			if err != nil {
				issue := QualityIssue{
					Type:      rule.Name(),
					Severity:  "high",
					Message:   err.Error(),
					Timestamp: time.Now(),
					RecordID:  record.ID,
					Index:     i,
				}
				var warning *Warning
				if errors.As(err, &warning) {
					issue.Severity = "low"
					rc.stats.Warnings++
				} else {
					rejected = true
				}
				recordIssues = append(recordIssues, issue)
				rc.stats.Issues[rule.Name()]++
				if rejected {
					break
				}
				continue
			}
			if next != nil {
				record = next
			}
		}

		issues = append(issues, recordIssues...)
		if rejected {
			rc.stats.Rejected++
			continue
		}
		if *record != original {
			rc.stats.Corrected++
		}
		rc.stats.Passed++
		cleaned = append(cleaned, *record)
	}

	if len(issues) > 0 {
		rc.issuesLock.Lock()
		rc.issues = append(rc.issues, issues...)
		if over := len(rc.issues) - rc.maxIssues; over > 0 {
			rc.issues = append(rc.issues[:0], rc.issues[over:]...)
		}
		rc.issuesLock.Unlock()
		rc.logger.Info("records failed validation",
			zap.Int("records", len(records)),
			zap.Int("passed", len(cleaned)),
			zap.Int("issues", len(issues)))
	}
	rc.stats.LastClean = time.Now()

	return cleaned, issues
}

// Rejections filters issues down to the ones that rejected a record.
func Rejections(issues []QualityIssue) []QualityIssue {
	var out []QualityIssue
	for _, issue := range issues {
		if issue.Severity == "high" {
			out = append(out, issue)
		}
	}
	return out
}

func (rc *RecordCleaner) GetStats() CleaningStats {
	rc.statsLock.RLock()
	defer rc.statsLock.RUnlock()

	stats := rc.stats
	stats.Issues = make(map[string]int64, len(rc.stats.Issues))
	for k, v := range rc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues returns up to limit of the most recent issues.
func (rc *RecordCleaner) GetIssues(limit int) []QualityIssue {
	rc.issuesLock.RLock()
	defer rc.issuesLock.RUnlock()

	if limit <= 0 || limit > len(rc.issues) {
		limit = len(rc.issues)
	}

	issues := make([]QualityIssue, limit)
	copy(issues, rc.issues[len(rc.issues)-limit:])
	return issues
}

func (rc *RecordCleaner) ClearIssues() {
	rc.issuesLock.Lock()
	defer rc.issuesLock.Unlock()

	rc.issues = nil
}

// ============ rules ============

// UnicodeNormalizationRule rewrites text fields to NFC so "São Paulo" typed
// with a combining tilde still matches the vocabulary entry.
type UnicodeNormalizationRule struct{}

func NewUnicodeNormalizationRule() *UnicodeNormalizationRule {
	return &UnicodeNormalizationRule{}
}

func (r *UnicodeNormalizationRule) Name() string {
	return "unicode_normalization"
}

func (r *UnicodeNormalizationRule) Apply(record *ml.Record) (*ml.Record, error) {
	if norm.NFC.IsNormalString(record.ID) &&
		norm.NFC.IsNormalString(record.CategoryA) &&
		norm.NFC.IsNormalString(record.CategoryB) {
		return record, nil
	}
	out := *record
	out.ID = norm.NFC.String(record.ID)
	out.CategoryA = norm.NFC.String(record.CategoryA)
	out.CategoryB = norm.NFC.String(record.CategoryB)
	return &out, nil
}

type IdentifierRule struct{}

func NewIdentifierRule() *IdentifierRule {
	return &IdentifierRule{}
}

func (r *IdentifierRule) Name() string {
	return "identifier_validation"
}

func (r *IdentifierRule) Apply(record *ml.Record) (*ml.Record, error) {
	if record.ID == "" {
		return nil, &Warning{Message: "identifier is empty"}
	}
	return record, nil
}

// NumericValidationRule rejects values the encoder would turn into NaN or
// that fall outside the domain.
type NumericValidationRule struct {
	MinValue float64
	MaxValue float64
}

func NewNumericValidationRule() *NumericValidationRule {
	return &NumericValidationRule{
		MinValue: 0,
		MaxValue: 1e9,
	}
}

func (r *NumericValidationRule) Name() string {
	return "numeric_validation"
}

func (r *NumericValidationRule) Apply(record *ml.Record) (*ml.Record, error) {
	if math.IsNaN(record.Numeric) || math.IsInf(record.Numeric, 0) {
		return nil, fmt.Errorf("numeric value %v is not finite", record.Numeric)
	}
	if record.Numeric < r.MinValue || record.Numeric > r.MaxValue {
		return nil, fmt.Errorf("numeric value %v out of range [%v, %v]", record.Numeric, r.MinValue, r.MaxValue)
	}
	return record, nil
}

// VocabularyRule warns about categorical values the encoder will turn into
// an all-zero block.
type VocabularyRule struct {
	a *ml.Vocabulary
	b *ml.Vocabulary
}

func NewVocabularyRule(enc *ml.Encoder) *VocabularyRule {
	return &VocabularyRule{a: enc.VocabularyA(), b: enc.VocabularyB()}
}

func (r *VocabularyRule) Name() string {
	return "vocabulary_check"
}

func (r *VocabularyRule) Apply(record *ml.Record) (*ml.Record, error) {
	switch {
	case !r.a.Contains(record.CategoryA) && !r.b.Contains(record.CategoryB):
		return nil, &Warning{Message: fmt.Sprintf("unknown values %q and %q encode to zeros", record.CategoryA, record.CategoryB)}
	case !r.a.Contains(record.CategoryA):
		return nil, &Warning{Message: fmt.Sprintf("unknown value %q encodes to zeros", record.CategoryA)}
	case !r.b.Contains(record.CategoryB):
		return nil, &Warning{Message: fmt.Sprintf("unknown value %q encodes to zeros", record.CategoryB)}
	}
	return record, nil
}

// DuplicateDetectionRule rejects a repeated identifier within one batch.
// Records without an identifier are not compared.
type DuplicateDetectionRule struct {
	seenMap map[string]struct{}
	mu      sync.Mutex
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{
		seenMap: make(map[string]struct{}),
	}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seenMap = make(map[string]struct{})
}

func (r *DuplicateDetectionRule) Apply(record *ml.Record) (*ml.Record, error) {
	if record.ID == "" {
		return record, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.seenMap[record.ID]; exists {
		return nil, fmt.Errorf("duplicate record: %s", record.ID)
	}

	r.seenMap[record.ID] = struct{}{}
	return record, nil
}
