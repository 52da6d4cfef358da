// Package core provides request threat scanning.
package core

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// maxFindingValueLen caps the matched value carried in a finding.
const maxFindingValueLen = 100

const defaultMaxInspectBytes = 64 << 10

// Finding is a single matched threat, scoped to one request.
type Finding struct {
	Type        ThreatType `json:"type"`
	Parameter   string     `json:"parameter"`
	Value       string     `json:"value"`
	Severity    Severity   `json:"-"`
	RiskLabel   string     `json:"severity"`
	Description string     `json:"description"`
}

// ScanReport aggregates findings for one request.
type ScanReport struct {
	Findings  []Finding
	RiskLevel Severity
	Block     bool
	Headers   map[string]string
}

// ThreatScanner runs the pattern families against query parameters, form
// fields, and the URL path. Instances are immutable after construction.
type ThreatScanner struct {
	families        []PatternFamily
	maxInspectBytes int64
	logger          *zap.Logger
}

// ThreatScannerOptions configures a scanner.
type ThreatScannerOptions struct {
	Families        []PatternFamily
	MaxInspectBytes int64
	Logger          *zap.Logger
}

// NewThreatScanner constructs a scanner. Nil families use the defaults.
func NewThreatScanner(opts ThreatScannerOptions) *ThreatScanner {
	if opts.Families == nil {
		opts.Families = DefaultPatternFamilies()
	}
	if opts.MaxInspectBytes <= 0 {
		opts.MaxInspectBytes = defaultMaxInspectBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ThreatScanner{
		families:        opts.Families,
		maxInspectBytes: opts.MaxInspectBytes,
		logger:          opts.Logger,
	}
}

// Scan inspects a request and classifies the findings. Scan never blocks
// on internal failure; unreadable inputs are skipped and logged.
func (s *ThreatScanner) Scan(r *http.Request) ScanReport {
	report := ScanReport{}
	if s == nil || r == nil {
		report.Headers = securityHeaders(report)
		return report
	}

	if r.URL != nil {
		for name, values := range r.URL.Query() {
			for _, value := range values {
				report.Findings = append(report.Findings, s.scanValue(name, value, false)...)
			}
		}
		report.Findings = append(report.Findings, s.scanValue("url_path", r.URL.Path, true)...)
	}
	for name, values := range s.formFields(r) {
		for _, value := range values {
			report.Findings = append(report.Findings, s.scanValue(name, value, false)...)
		}
	}

	report.RiskLevel = classifyRisk(report.Findings)
	report.Block = shouldBlock(report.Findings)
	report.Headers = securityHeaders(report)
	s.logFindings(r, report)
	return report
}

// scanValue matches one parameter value against every family, producing
// one finding per matching pattern. pathOnly restricts matching to
// families that scan the URL path.
func (s *ThreatScanner) scanValue(name, value string, pathOnly bool) []Finding {
	if value == "" {
		return nil
	}
	var findings []Finding
	for _, family := range s.families {
		if pathOnly && !family.ScanPath {
			continue
		}
		for _, pattern := range family.Patterns {
			if !pattern.MatchString(value) {
				continue
			}
			findings = append(findings, Finding{
				Type:        family.Type,
				Parameter:   name,
				Value:       truncateValue(value),
				Severity:    family.Severity,
				RiskLabel:   family.Severity.String(),
				Description: family.Description,
			})
		}
	}
	return findings
}

// formFields returns POST body fields for form-encoded requests, restoring
// the body for downstream handlers.
func (s *ThreatScanner) formFields(r *http.Request) url.Values {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return nil
	}
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return nil
	}
	if r.ContentLength > s.maxInspectBytes {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxInspectBytes))
	if err != nil {
		s.logger.Error("form inspection failed open", zap.Error(err))
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	fields, err := url.ParseQuery(string(body))
	if err != nil {
		return nil
	}
	return fields
}

func (s *ThreatScanner) logFindings(r *http.Request, report ScanReport) {
	if s.logger == nil {
		return
	}
	for _, finding := range report.Findings {
		s.logger.Warn("threat detected",
			zap.String("type", string(finding.Type)),
			zap.String("parameter", finding.Parameter),
			zap.String("severity", finding.Severity.String()),
			zap.String("client_ip", clientIP(r)),
			zap.String("user_agent", r.UserAgent()))
	}
}

// classifyRisk maps the finding multiset to a request risk level.
func classifyRisk(findings []Finding) Severity {
	var high, medium int
	for _, finding := range findings {
		switch finding.Severity {
		case SeverityCritical:
			return SeverityCritical
		case SeverityHigh:
			high++
		case SeverityMedium:
			medium++
		}
	}
	switch {
	case high > 2:
		return SeverityHigh
	case high > 0 || medium > 3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// shouldBlock blocks on any critical finding or more than two high findings.
func shouldBlock(findings []Finding) bool {
	var high int
	for _, finding := range findings {
		if finding.Severity == SeverityCritical {
			return true
		}
		if finding.Severity == SeverityHigh {
			high++
		}
	}
	return high > 2
}

func securityHeaders(report ScanReport) map[string]string {
	headers := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "1; mode=block",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}
	for _, finding := range report.Findings {
		switch finding.Type {
		case ThreatXSS:
			headers["Content-Security-Policy"] = "default-src 'self'"
		case ThreatSQLInjection:
			headers["X-SQL-Injection-Protection"] = "active"
		}
	}
	return headers
}

func truncateValue(value string) string {
	if len(value) <= maxFindingValueLen {
		return value
	}
	return value[:maxFindingValueLen]
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
