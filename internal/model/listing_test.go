package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_LinkBecomesIdentifier(t *testing.T) {
	l, err := NewBuilder("wbm").
		Link("https://www.wbm.de/wohnungen/angebot/123").
		Address("Teststr. 1, 10115 Berlin").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "https://www.wbm.de/wohnungen/angebot/123", l.Identifier)
	assert.Equal(t, "https://www.wbm.de/wohnungen/angebot/123", l.URL())
}

func TestBuilder_FingerprintFallback(t *testing.T) {
	build := func() Listing {
		l, err := NewBuilder("inberlinwohnen").
			Address("Müllerstr. 12, 13353 Berlin").
			SQM("54.3").
			PriceCold("612.40").
			Rooms("2").
			Build()
		require.NoError(t, err)
		return l
	}

	first := build()
	second := build()

	// Identical normalized content must yield the identical identifier.
	assert.Equal(t, first.Identifier, second.Identifier)
	assert.Len(t, first.Identifier, 16)
	assert.Equal(t, NA, first.URL())
}

func TestBuilder_FingerprintChangesWithContent(t *testing.T) {
	a, err := NewBuilder("x").Address("Straße A").SQM("50").Build()
	require.NoError(t, err)
	b, err := NewBuilder("x").Address("Straße B").SQM("50").Build()
	require.NoError(t, err)
	assert.NotEqual(t, a.Identifier, b.Identifier)
}

func TestBuilder_NoDerivableIdentifier(t *testing.T) {
	_, err := NewBuilder("empty").Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no derivable identifier")
}

func TestBuilder_EmptyFieldsBecomeSentinel(t *testing.T) {
	l, err := NewBuilder("x").Link("https://example.org/1").Address("  ").Build()
	require.NoError(t, err)
	assert.Equal(t, NA, l.Address)
	assert.Equal(t, NA, l.PriceTotal)
	assert.Equal(t, NA, l.Rooms)
}

func TestFingerprint_NFCStability(t *testing.T) {
	// "\u00fc" precomposed vs. "u" + combining diaeresis.
	precomposed := Fingerprint("M\u00fcllerstr. 1", "50", "600", "700", "2", false)
	decomposed := Fingerprint("Mu\u0308llerstr. 1", "50", "600", "700", "2", false)
	assert.Equal(t, precomposed, decomposed)
}
