package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	inst, err := r.Register(Spec{
		ID:      "rsi-btc",
		Kind:    KindRSIPullback,
		Symbols: []string{"BTC", "ETH"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rsi-btc", inst.ID)
	assert.True(t, inst.Active)

	got, ok := r.Get("rsi-btc")
	require.True(t, ok)
	assert.Equal(t, inst, got)

	assert.Len(t, r.ForSymbol("BTC"), 1)
	assert.Len(t, r.ForSymbol("ETH"), 1)
	assert.Empty(t, r.ForSymbol("SOL"))
}

func TestRegistry_DefaultsFilledWhenParamsOmitted(t *testing.T) {
	r := NewRegistry()

	inst, err := r.Register(Spec{ID: "q-1", Kind: KindQuantumOscillator, Symbols: []string{"BTC"}})
	require.NoError(t, err)

	assert.Equal(t, DefaultQuantumOscillatorParams(), inst.Params)
}

func TestRegistry_RejectsInvalidSpec(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Spec{Kind: KindRSIPullback})

	require.Error(t, err)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 2) // missing id and symbols
}

func TestRegistry_RejectsUnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Spec{ID: "x", Kind: "martingale", Symbols: []string{"BTC"}})

	assert.Error(t, err)
}

func TestRegistry_ReplaceExisting(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Spec{ID: "s", Kind: KindRSIPullback, Symbols: []string{"BTC"}})
	require.NoError(t, err)
	_, err = r.Register(Spec{ID: "s", Kind: KindBollingerBreakout, Symbols: []string{"ETH"}})
	require.NoError(t, err)

	inst, ok := r.Get("s")
	require.True(t, ok)
	assert.Equal(t, KindBollingerBreakout, inst.Kind)
	assert.Empty(t, r.ForSymbol("BTC"), "old symbol binding must be removed")
	assert.Len(t, r.ForSymbol("ETH"), 1)
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Spec{ID: "s", Kind: KindRSIPullback, Symbols: []string{"BTC"}})
	require.NoError(t, err)

	r.Unregister("s")
	r.Unregister("never-existed")

	_, ok := r.Get("s")
	assert.False(t, ok)
	assert.Empty(t, r.ForSymbol("BTC"))
}

func TestRegistry_InactiveExcludedFromLookups(t *testing.T) {
	r := NewRegistry()
	inactive := false

	_, err := r.Register(Spec{ID: "s", Kind: KindRSIPullback, Symbols: []string{"BTC"}, Active: &inactive})
	require.NoError(t, err)

	assert.Empty(t, r.ForSymbol("BTC"))
	assert.Empty(t, r.Symbols())
	assert.Zero(t, r.MaxLookback("BTC"))
}

func TestRegistry_MaxLookback(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Spec{ID: "a", Kind: KindRSIPullback, Symbols: []string{"BTC"}})
	require.NoError(t, err)
	_, err = r.Register(Spec{ID: "b", Kind: KindQuantumOscillator, Symbols: []string{"BTC"}})
	require.NoError(t, err)

	want := DefaultQuantumOscillatorParams().MinWindow()
	assert.Equal(t, want, r.MaxLookback("BTC"))
}

func TestImportExport_RoundTrip(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(Spec{
		ID:          "rsi-btc",
		Name:        "RSI pullback BTC",
		Kind:        KindRSIPullback,
		Symbols:     []string{"BTC"},
		RSIPullback: &RSIPullbackParams{Lookback: 5},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, r.ExportFile(path))

	fresh := NewRegistry()
	n, err := fresh.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inst, ok := fresh.Get("rsi-btc")
	require.True(t, ok)
	assert.Equal(t, KindRSIPullback, inst.Kind)
	assert.Equal(t, 5, inst.Params.(RSIPullbackParams).Lookback)
}

func TestLoadFile_RejectsUnsupportedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	writeTestFile(t, path, "schema_version: \"2.0.0\"\nstrategies: []\n")

	r := NewRegistry()
	_, err := r.LoadFile(path)

	assert.ErrorContains(t, err, "unsupported schema_version")
}

func TestLoadFile_SkipsInvalidSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	writeTestFile(t, path, `schema_version: "1.0.0"
strategies:
  - id: good
    kind: rsi_pullback
    symbols: [BTC]
  - id: ""
    kind: rsi_pullback
    symbols: [BTC]
`)

	r := NewRegistry()
	n, err := r.LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
