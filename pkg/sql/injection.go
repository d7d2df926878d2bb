package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a literal that libinjection flagged.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Literal     string // The literal that was checked
}

// CheckLiteralForInjection runs libinjection over the contents of one string
// literal. Returns nil when the literal is clean.
//
// Example:
//
//	CheckLiteralForInjection("Downtown")               // nil
//	CheckLiteralForInjection("x' OR '1'='1")           // IsSQLi == true
func CheckLiteralForInjection(literal string) *InjectionCheckResult {
	if literal == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(literal)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Literal:     literal,
		}
	}

	return nil
}

// CheckLiteralsForInjection returns the first flagged literal, or nil.
func CheckLiteralsForInjection(literals []string) *InjectionCheckResult {
	for _, lit := range literals {
		if result := CheckLiteralForInjection(lit); result != nil {
			return result
		}
	}
	return nil
}
