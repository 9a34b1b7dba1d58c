// Package commgate decides whether incoming calls and SMS are admitted
// based on the allowed-contact set.
package commgate

import (
	"strings"

	"go.uber.org/zap"
)

// Decision is the outcome of screening one incoming number.
type Decision int

const (
	Accept Decision = iota
	Reject
)

func (d Decision) String() string {
	if d == Reject {
		return "reject"
	}
	return "accept"
}

// AllowedNumberSource provides a snapshot of the allowed phone numbers.
type AllowedNumberSource interface {
	AllowedNumbers() []string
}

// Gate screens incoming calls and SMS. It is invoked synchronously from
// the OS intercept callback, so decisions must be cheap; on any internal
// fault it fails open to Accept so a transient error never blocks a
// legitimate contact.
type Gate struct {
	source AllowedNumberSource
	logger *zap.Logger
}

// NewGate creates a gate reading the allowed set from source.
func NewGate(source AllowedNumberSource, logger *zap.Logger) *Gate {
	return &Gate{source: source, logger: logger}
}

// ScreenCall decides whether to admit an incoming call.
func (g *Gate) ScreenCall(number string) Decision {
	return g.screen("call", number)
}

// ScreenSMS decides whether to admit an incoming SMS.
func (g *Gate) ScreenSMS(number string) Decision {
	return g.screen("sms", number)
}

func (g *Gate) screen(kind, number string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("gate fault, failing open",
				zap.String("kind", kind),
				zap.Any("panic", r))
			d = Accept
		}
	}()

	// Snapshot taken at call start; not re-read mid-decision.
	allowed := g.source.AllowedNumbers()
	d = Decide(number, allowed)

	if d == Reject {
		g.logger.Info("blocked incoming communication",
			zap.String("kind", kind),
			zap.String("number", number))
	}
	return d
}

// significantDigits is the length of the shared digit suffix that
// identifies the same subscriber when both sides carry differing
// country-code or trunk prefixes.
const significantDigits = 7

// Decide matches an incoming number against the allowed set. Both sides
// are normalized to digits only; a match is either a mutual suffix (one
// normalized string being a suffix of the other) or a shared suffix
// covering the subscriber number, so "+1-555-1234" still matches an
// incoming "9995551234" whose prefix differs from the stored country
// code. An incoming number that yields no digits fails open to Accept.
func Decide(incoming string, allowed []string) Decision {
	in := normalize(incoming)
	if in == "" {
		return Accept
	}

	for _, a := range allowed {
		n := normalize(a)
		if n == "" {
			continue
		}
		if matches(in, n) {
			return Accept
		}
	}
	return Reject
}

func matches(in, allowed string) bool {
	if strings.HasSuffix(in, allowed) || strings.HasSuffix(allowed, in) {
		return true
	}
	return commonSuffixLen(in, allowed) >= significantDigits
}

func commonSuffixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}

// normalize strips everything but digits.
func normalize(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
