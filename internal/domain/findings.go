package domain

import "fmt"

// Severity classifies a validation finding. Only error-severity findings
// make a document invalid; warnings are advisory and never block
// resolution.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one validation problem, located by a dotted field path.
type Finding struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Field, f.Message)
}

// Result is a batch of findings from one validation pass. The validator
// never fails fast: every problem in the document is reported at once.
type Result struct {
	Valid    bool      `json:"valid"`
	Findings []Finding `json:"findings"`
}

// Errors returns only the error-severity findings.
func (r Result) Errors() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

// Warnings returns only the warning-severity findings.
func (r Result) Warnings() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityWarning {
			out = append(out, f)
		}
	}
	return out
}

// Collector accumulates findings during a validation pass.
type Collector struct {
	findings []Finding
}

// Errorf records an error-severity finding at field.
func (c *Collector) Errorf(field, format string, args ...any) {
	c.findings = append(c.findings, Finding{
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	})
}

// Warnf records a warning-severity finding at field.
func (c *Collector) Warnf(field, format string, args ...any) {
	c.findings = append(c.findings, Finding{
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityWarning,
	})
}

// Result finalizes the pass. Valid is true when no error-severity finding
// was recorded.
func (c *Collector) Result() Result {
	valid := true
	for _, f := range c.findings {
		if f.Severity == SeverityError {
			valid = false
			break
		}
	}
	return Result{Valid: valid, Findings: c.findings}
}
