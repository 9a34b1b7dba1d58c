package commgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDecide(t *testing.T) {
	allowed := []string{"+1-555-1234"}

	tests := []struct {
		name     string
		incoming string
		want     Decision
	}{
		{"exact digits match", "5551234", Accept},
		{"incoming carries extra prefix", "9995551234", Accept},
		{"allowed carries extra prefix", "555-1234", Accept},
		{"no suffix relation", "5559999", Reject},
		{"formatted incoming", "+1 (555) 1234", Accept},
		{"empty incoming fails open", "", Accept},
		{"non-digit incoming fails open", "anonymous", Accept},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.incoming, allowed))
		})
	}
}

// TestDecide_DifferingPrefixes verifies a stored country code never hides
// a contact from an incoming number carrying a different prefix
func TestDecide_DifferingPrefixes(t *testing.T) {
	allowed := []string{"+1-555-1234"}

	// Neither side is a suffix of the other, but the subscriber number
	// is shared in full.
	assert.Equal(t, Accept, Decide("9995551234", allowed))
	assert.Equal(t, Accept, Decide("00445551234", allowed))

	// A short shared tail is not a match.
	assert.Equal(t, Reject, Decide("8881234", allowed))
}

func TestDecide_EmptyAllowedSetRejects(t *testing.T) {
	assert.Equal(t, Reject, Decide("5551234", nil))
	assert.Equal(t, Reject, Decide("5551234", []string{}))
}

func TestDecide_SkipsUnparseableAllowedEntries(t *testing.T) {
	allowed := []string{"---", "5551234"}
	assert.Equal(t, Accept, Decide("15551234", allowed))
}

type staticSource struct {
	numbers []string
}

func (s *staticSource) AllowedNumbers() []string {
	return s.numbers
}

type panickingSource struct{}

func (p *panickingSource) AllowedNumbers() []string {
	panic("source fault")
}

func TestGate_ScreenCall(t *testing.T) {
	gate := NewGate(&staticSource{numbers: []string{"+1-555-1234"}}, zap.NewNop())

	assert.Equal(t, Accept, gate.ScreenCall("5551234"))
	assert.Equal(t, Reject, gate.ScreenCall("5559999"))
}

func TestGate_ScreenSMS(t *testing.T) {
	gate := NewGate(&staticSource{numbers: []string{"0400123456"}}, zap.NewNop())

	assert.Equal(t, Accept, gate.ScreenSMS("+61400123456"))
	assert.Equal(t, Reject, gate.ScreenSMS("+61499999999"))
}

// TestGate_FailsOpenOnPanic verifies an internal fault yields Accept
func TestGate_FailsOpenOnPanic(t *testing.T) {
	gate := NewGate(&panickingSource{}, zap.NewNop())

	assert.Equal(t, Accept, gate.ScreenCall("5559999"))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "accept", Accept.String())
	assert.Equal(t, "reject", Reject.String())
}
