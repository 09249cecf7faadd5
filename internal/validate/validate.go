// Package validate runs the ordered, stop-at-first-failure checks every
// queued observation must pass before it reaches the scorer.
//
// The struct-tag schema check is grounded in kubernaut's use of
// go-playground/validator for API payload validation; the
// injection/credential scan that follows it is spec-specific and has no
// struct-tag representation, so it runs as a second, hand-written pass
// over the same observation.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/waynevaughan/cortex/internal/observation"
	"github.com/waynevaughan/cortex/internal/quarantine"
	"github.com/waynevaughan/cortex/internal/record"
	"github.com/waynevaughan/cortex/internal/taxonomy"
)

// Result is the outcome of Check: either valid, or rejected with a
// closed reason and a human-readable detail.
type Result struct {
	Valid  bool
	Reason quarantine.Reason
	Detail string
}

var validISO8601 = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d{1,3})?(Z|[+-]\d{2}:\d{2})$`)
var validSessionID = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// injectionSubstrings are case-insensitive substring matches; the first
// hit rejects the observation.
var injectionSubstrings = []string{
	"ignore previous",
	"disregard",
	"you are now",
	"execute",
	"eval(",
	"exec(",
}

var fencedCodeBlock = regexp.MustCompile("```")

// credentialPatterns are compiled once at package init; a constant
// pattern set compiling successfully here is an invariant of the
// program, so a failure would only ever indicate a programming error.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`xoxb-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`),
	regexp.MustCompile(`mongodb(\+srv)?://[^\s]+`),
	regexp.MustCompile(`postgres(ql)?://[^\s]+`),
}

var structValidator = validator.New()

// schema is the struct-tag target for go-playground/validator's
// required-field check (spec §4.6 step 1).
type schema struct {
	Timestamp   string `validate:"required"`
	Bucket      string `validate:"required"`
	Type        string `validate:"required"`
	Body        string `validate:"required"`
	Attribution string `validate:"required"`
	SessionID   string `validate:"required"`
}

// Check runs the full ordered validation sequence against obs.
func Check(obs *observation.Observation, tbl *taxonomy.Table) Result {
	s := schema{
		Timestamp:   obs.Timestamp,
		Bucket:      string(obs.Bucket),
		Type:        obs.Type,
		Body:        obs.Body,
		Attribution: obs.Attribution,
		SessionID:   obs.SessionID,
	}
	if err := structValidator.Struct(s); err != nil {
		return reject(quarantine.ReasonValidationFailed, "missing required field: "+err.Error())
	}

	if obs.Bucket != observation.BucketAmbient && obs.Bucket != observation.BucketExplicit {
		return reject(quarantine.ReasonValidationFailed, fmt.Sprintf("bucket %q is not ambient or explicit", obs.Bucket))
	}

	if obs.Type == "observation" || !tbl.Known(record.Kind(obs.Type)) {
		return reject(quarantine.ReasonValidationFailed, fmt.Sprintf("type %q is not a known taxonomy kind", obs.Type))
	}

	if n := len([]rune(obs.Body)); n < 1 || n > 500 {
		return reject(quarantine.ReasonValidationFailed, fmt.Sprintf("body length %d out of range [1,500]", n))
	}
	if n := len([]rune(obs.Context)); n > 1000 {
		return reject(quarantine.ReasonValidationFailed, fmt.Sprintf("context length %d exceeds 1000", n))
	}
	if n := len([]rune(obs.SourceQuote)); n > 500 {
		return reject(quarantine.ReasonValidationFailed, fmt.Sprintf("source_quote length %d exceeds 500", n))
	}

	if !validISO8601.MatchString(obs.Timestamp) {
		return reject(quarantine.ReasonValidationFailed, fmt.Sprintf("timestamp %q is not strict ISO-8601", obs.Timestamp))
	}
	if _, err := time.Parse(time.RFC3339, normalizeFractional(obs.Timestamp)); err != nil {
		return reject(quarantine.ReasonValidationFailed, "timestamp does not parse: "+err.Error())
	}

	if obs.SessionID != "cli" && !validSessionID.MatchString(obs.SessionID) {
		return reject(quarantine.ReasonValidationFailed, fmt.Sprintf("session_id %q is not 8-4-4-4-12 hex or \"cli\"", obs.SessionID))
	}

	if obs.Confidence != nil && (*obs.Confidence < 0 || *obs.Confidence > 1) {
		return reject(quarantine.ReasonValidationFailed, "confidence out of range [0,1]")
	}
	if obs.Importance != nil && (*obs.Importance < 0 || *obs.Importance > 1) {
		return reject(quarantine.ReasonValidationFailed, "importance out of range [0,1]")
	}

	if reason, detail, hit := securityScan(obs.SecurityScanText()); hit {
		return reject(reason, detail)
	}

	return Result{Valid: true}
}

func reject(reason quarantine.Reason, detail string) Result {
	return Result{Valid: false, Reason: reason, Detail: detail}
}

func normalizeFractional(ts string) string {
	// Right-pads any fractional-seconds field with zeros to nine digits
	// (nanosecond width) before the timestamp is parsed.
	idx := strings.IndexByte(ts, '.')
	if idx == -1 {
		return ts
	}
	end := idx + 1
	for end < len(ts) && ts[end] >= '0' && ts[end] <= '9' {
		end++
	}
	frac := ts[idx+1 : end]
	for len(frac) < 9 {
		frac += "0"
	}
	return ts[:idx+1] + frac + ts[end:]
}

func securityScan(text string) (quarantine.Reason, string, bool) {
	lower := strings.ToLower(text)
	for _, pattern := range injectionSubstrings {
		if strings.Contains(lower, pattern) {
			return quarantine.ReasonInjectionDetected, "matched injection pattern: " + pattern, true
		}
	}
	if fencedCodeBlock.MatchString(text) {
		return quarantine.ReasonInjectionDetected, "matched fenced code block", true
	}
	for _, re := range credentialPatterns {
		if re.MatchString(text) {
			return quarantine.ReasonCredentialDetected, "matched credential pattern: " + re.String(), true
		}
	}
	return "", "", false
}
