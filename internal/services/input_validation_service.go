package services

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/models"
)

// Detection families
const (
	FamilySQLInjection  = "sql_injection"
	FamilyXSS           = "xss"
	FamilyPathTraversal = "path_traversal"
)

const DefaultMaxInputLength = 10000

type patternFamily struct {
	name     string
	label    string
	patterns []*regexp.Regexp
}

var inputFamilies = []patternFamily{
	{
		name:  FamilySQLInjection,
		label: "SQL injection",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|UNION)\b`),
			regexp.MustCompile(`(?i)\b(OR|AND)\s+\d+\s*=\s*\d+`),
			regexp.MustCompile(`(?i)\b(OR|AND)\s+['"]?\w+['"]?\s*=\s*['"]?\w+['"]?`),
			regexp.MustCompile(`(--|#|/\*|\*/)`),
			regexp.MustCompile(`(?i)\bxp_\w+`),
			regexp.MustCompile(`(?i)\bsp_\w+`),
		},
	},
	{
		name:  FamilyXSS,
		label: "XSS",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<script[^>]*>`),
			regexp.MustCompile(`(?i)javascript:`),
			regexp.MustCompile(`(?i)\bon\w+\s*=`),
			regexp.MustCompile(`(?i)<iframe[^>]*>`),
			regexp.MustCompile(`(?i)<object[^>]*>`),
			regexp.MustCompile(`(?i)<embed[^>]*>`),
		},
	},
	{
		name:  FamilyPathTraversal,
		label: "path traversal",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(\.\.|%2e%2e)(/|\\|%2f|%5c)`),
		},
	},
}

// InputIssue is one detection. It never carries the offending value.
type InputIssue struct {
	Path    string `json:"path"`
	Family  string `json:"family"`
	Message string `json:"message"`
}

// InputResult is the verdict for one string value.
type InputResult struct {
	Valid     bool
	Issues    []InputIssue
	Sanitized string
}

// StructureResult aggregates the verdicts for every string leaf of a
// nested value. Sanitized mirrors the input shape.
type StructureResult struct {
	Valid     bool
	Issues    []InputIssue
	Sanitized any
}

// InputValidatorConfig holds the sanitizer limit and the leaf field names
// that are never screened (e.g. passwords, which are hashed, not rendered).
type InputValidatorConfig struct {
	MaxLength    int
	ExemptFields []string
}

// InputValidator flags injection, XSS and traversal payloads. It decides
// nothing: callers choose whether to reject.
type InputValidator struct {
	maxLength int
	exempt    map[string]bool
	events    EventRecorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewInputValidator(config InputValidatorConfig, events EventRecorder, m *metrics.Metrics, logger *slog.Logger) *InputValidator {
	if config.MaxLength <= 0 {
		config.MaxLength = DefaultMaxInputLength
	}
	exempt := make(map[string]bool, len(config.ExemptFields))
	for _, f := range config.ExemptFields {
		exempt[f] = true
	}
	return &InputValidator{
		maxLength: config.MaxLength,
		exempt:    exempt,
		events:    events,
		metrics:   m,
		logger:    logger,
	}
}

// ValidateInput screens value against every family on the raw input and
// returns a sanitized copy alongside the verdict.
func (v *InputValidator) ValidateInput(value, fieldName string) InputResult {
	issues := detect(value, fieldName)
	return InputResult{
		Valid:     len(issues) == 0,
		Issues:    issues,
		Sanitized: v.Sanitize(value),
	}
}

func detect(value, path string) []InputIssue {
	var issues []InputIssue
	for _, family := range inputFamilies {
		for _, p := range family.patterns {
			if p.MatchString(value) {
				issues = append(issues, InputIssue{
					Path:    path,
					Family:  family.name,
					Message: fmt.Sprintf("%s contains potential %s", path, family.label),
				})
				break
			}
		}
	}
	return issues
}

// Sanitize strips NUL and control characters other than newline and tab,
// then truncates to the configured number of characters.
func (v *InputValidator) Sanitize(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	n := 0
	for _, r := range value {
		if n >= v.maxLength {
			break
		}
		if r < 32 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// ValidateStructure walks maps and slices, screening every string leaf.
// Issue paths are dotted for map keys and indexed for slices, relative to
// root (e.g. "address.street", "items[2].notes").
func (v *InputValidator) ValidateStructure(data any, root string) StructureResult {
	var issues []InputIssue
	sanitized := v.walk(data, root, &issues)
	return StructureResult{
		Valid:     len(issues) == 0,
		Issues:    issues,
		Sanitized: sanitized,
	}
}

func (v *InputValidator) walk(node any, path string, issues *[]InputIssue) any {
	switch val := node.(type) {
	case string:
		*issues = append(*issues, detect(val, path)...)
		return v.Sanitize(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(val))
		for _, k := range keys {
			if v.exempt[k] {
				out[k] = val[k]
				continue
			}
			out[k] = v.walk(val[k], joinPath(path, k), issues)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = v.walk(item, path+"["+strconv.Itoa(i)+"]", issues)
		}
		return out
	default:
		return v.walkValue(reflect.ValueOf(node), node, path, issues)
	}
}

// walkValue covers typed containers such as map[string]string, []string
// and []map[string]any. Byte slices are data, not text, and pass through.
func (v *InputValidator) walkValue(rv reflect.Value, node any, path string, issues *[]InputIssue) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return node
		}
		return v.walk(rv.Elem().Interface(), path, issues)
	case reflect.String:
		return v.walk(rv.String(), path, issues)
	case reflect.Map:
		generic := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			generic[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return v.walk(generic, path, issues)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return node
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return node
		}
		generic := make([]any, rv.Len())
		for i := range generic {
			generic[i] = rv.Index(i).Interface()
		}
		return v.walk(generic, path, issues)
	default:
		return node
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// ReportViolation records a high-severity data_breach_attempt event naming
// the offending paths and families.
func (v *InputValidator) ReportViolation(ctx context.Context, issues []InputIssue, info RequestInfo) error {
	if len(issues) == 0 {
		return nil
	}

	paths := make([]string, 0, len(issues))
	families := make([]string, 0, len(issues))
	for _, issue := range issues {
		v.metrics.InputViolation(issue.Family)
		paths = append(paths, issue.Path)
		families = append(families, issue.Family)
	}

	v.logger.WarnContext(ctx, "malicious input detected",
		slog.Any("paths", paths),
		slog.Any("families", families),
	)

	return v.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      info.UserID,
		EventType:   models.EventDataBreachAttempt,
		Severity:    models.SeverityHigh,
		Description: "Malicious input detected",
		IPAddress:   info.IPAddress,
		UserAgent:   info.UserAgent,
		Metadata: models.EventMetadata{
			"paths":    paths,
			"families": families,
		},
	})
}
