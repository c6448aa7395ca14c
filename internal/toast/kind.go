package toast

import "strings"

// Kind is the semantic category of a toast. It drives styling and the
// default lifetime.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
	KindAlert   Kind = "alert"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindSuccess, KindError, KindWarning, KindInfo, KindAlert}

// ParseKind maps a loosely formatted kind name to a Kind.
// Unknown names fall back to KindInfo.
func ParseKind(s string) Kind {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSuccess, KindError, KindWarning, KindInfo, KindAlert:
		return k
	case "warn":
		return KindWarning
	case "err", "failure":
		return KindError
	default:
		return KindInfo
	}
}

// Severity classifies alert toasts. It mirrors the severity of the
// upstream security event and only affects styling and lifetime.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity maps a loosely formatted severity to a Severity.
// Unknown values fall back to SeverityLow.
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return sev
	case "crit":
		return SeverityCritical
	case "med", "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Title returns the heading used for alerts that arrive without one.
func (s Severity) Title() string {
	switch s {
	case SeverityCritical:
		return "Critical alert"
	case SeverityHigh:
		return "High alert"
	case SeverityMedium:
		return "Medium alert"
	default:
		return "Low alert"
	}
}
