// Package core defines the threat pattern families.
package core

import "regexp"

// ThreatType identifies a pattern family.
type ThreatType string

const (
	ThreatSQLInjection     ThreatType = "sql_injection"
	ThreatXSS              ThreatType = "xss"
	ThreatPathTraversal    ThreatType = "path_traversal"
	ThreatCommandInjection ThreatType = "command_injection"
	ThreatLDAPInjection    ThreatType = "ldap_injection"
	ThreatNoSQLInjection   ThreatType = "nosql_injection"
)

// Severity ranks a finding.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the severity label.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// PatternFamily is a set of regexes sharing a threat type and severity.
// Severity is data, not code: custom families may rank lower than the
// defaults and still reach every risk classifier branch.
type PatternFamily struct {
	Type        ThreatType
	Severity    Severity
	Description string
	ScanPath    bool
	Patterns    []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+expr))
	}
	return patterns
}

// DefaultPatternFamilies returns the built-in six families.
func DefaultPatternFamilies() []PatternFamily {
	return []PatternFamily{
		{
			Type:        ThreatSQLInjection,
			Severity:    SeverityHigh,
			Description: "SQL injection attempt",
			Patterns: compileAll(
				`(\b(union|select|insert|update|delete|drop|alter|create|exec|execute)\b.{0,40}\b(from|into|table|database|where)\b)`,
				`('|")\s*(or|and)\s+`,
				`\b(or|and)\s+\d+\s*=\s*\d+`,
				`'\s*(or|and)\s*'[^']*'\s*=\s*'`,
				`\b(or|and)\b[^=]{0,20}=`,
				`;\s*(drop|delete|truncate|update)\b`,
				`\b(sleep|benchmark|waitfor)\s*\(`,
				`--[^\r\n]*$`,
				`/\*.*\*/`,
			),
		},
		{
			Type:        ThreatXSS,
			Severity:    SeverityHigh,
			Description: "cross-site scripting attempt",
			Patterns: compileAll(
				`<\s*script[^>]*>`,
				`<\s*/\s*script\s*>`,
				`javascript\s*:`,
				`\bon(load|error|click|mouseover|focus|submit)\s*=`,
				`<\s*(iframe|object|embed|applet)[^>]*>`,
				`document\s*\.\s*(cookie|write|location)`,
				`eval\s*\(`,
				`expression\s*\(`,
			),
		},
		{
			Type:        ThreatPathTraversal,
			Severity:    SeverityHigh,
			Description: "path traversal attempt",
			ScanPath:    true,
			Patterns: compileAll(
				`\.\./`,
				`\.\.\\`,
				`%2e%2e[/\\]`,
				`%2e%2e%2f`,
				`/etc/(passwd|shadow|hosts)`,
				`\\windows\\system32`,
				`%00`,
			),
		},
		{
			Type:        ThreatCommandInjection,
			Severity:    SeverityCritical,
			Description: "command injection attempt",
			Patterns: compileAll(
				`;\s*(rm|cat|ls|wget|curl|chmod|chown|nc|bash|sh)\b`,
				`\|\s*(rm|cat|ls|wget|curl|nc|bash|sh)\b`,
				"`[^`]*`",
				`\$\([^)]*\)`,
				`&&\s*(rm|cat|wget|curl)\b`,
				`\b(rm\s+-rf|mkfifo|/dev/tcp/)`,
			),
		},
		{
			Type:        ThreatLDAPInjection,
			Severity:    SeverityHigh,
			Description: "LDAP injection attempt",
			Patterns: compileAll(
				`\(\s*[&|]\s*\(`,
				`\(\w+=\*\)`,
				`\*\s*\)\s*\(\s*\w+\s*=`,
				`\)\s*\(\s*\|`,
			),
		},
		{
			Type:        ThreatNoSQLInjection,
			Severity:    SeverityHigh,
			Description: "NoSQL injection attempt",
			Patterns: compileAll(
				`\$where\b`,
				`\$(ne|gt|gte|lt|lte|in|nin|regex|exists)\b`,
				`\{\s*"\$`,
				`mapreduce|group\s*\(`,
			),
		},
	}
}
