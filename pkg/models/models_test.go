package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_CanTransition_HappyPath(t *testing.T) {
	steps := []struct{ from, to QuoteStatus }{
		{QuotePending, QuoteQuoted},
		{QuoteQuoted, QuoteAccepted},
		{QuoteAccepted, QuotePaid},
		{QuotePaid, QuoteScheduled},
		{QuoteScheduled, QuoteCompleted},
	}
	for _, s := range steps {
		require.True(t, CanTransition(s.from, s.to), "%s -> %s should be legal", s.from, s.to)
	}
}

func Test_CanTransition_RejectsIllegalMoves(t *testing.T) {
	bad := []struct{ from, to QuoteStatus }{
		{QuotePending, QuotePaid},      // can't pay an unpriced quote
		{QuotePending, QuoteAccepted},  // nothing to accept yet
		{QuotePaid, QuoteDeclined},     // paid money is not walked away from
		{QuoteCompleted, QuoteQuoted},  // terminal
		{QuoteDeclined, QuoteAccepted}, // terminal
		{QuoteRejected, QuoteQuoted},   // terminal
		{QuoteScheduled, QuotePaid},    // no going backwards
	}
	for _, s := range bad {
		require.False(t, CanTransition(s.from, s.to), "%s -> %s must be illegal", s.from, s.to)
	}
}

func Test_CanTransition_DeclinePaths(t *testing.T) {
	// The customer can walk away while quoted or accepted-but-unpaid.
	require.True(t, CanTransition(QuoteQuoted, QuoteDeclined))
	require.True(t, CanTransition(QuoteAccepted, QuoteDeclined))
	// The admin can reject a pending or quoted request.
	require.True(t, CanTransition(QuotePending, QuoteRejected))
	require.True(t, CanTransition(QuoteQuoted, QuoteRejected))
	// But neither applies once money changed hands.
	require.False(t, CanTransition(QuotePaid, QuoteRejected))
}
