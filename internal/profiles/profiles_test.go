package profiles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/po-extractor/internal/common"
)

func TestBuiltinLookup(t *testing.T) {
	reg := Builtin()
	assert.Equal(t, []string{"C", "N", "B", "G", "BA", "COM", "DEFAULT"}, reg.Codes())

	p, err := reg.Lookup("ba")
	require.NoError(t, err)
	assert.Equal(t, "BA", p.Code)
	require.NotNil(t, p.SoldTo)
	assert.Equal(t, "basp_567", p.SoldTo.Value)
	require.Len(t, p.ShipTo, 3)
	assert.Equal(t, "bash_1", p.ShipTo[0].Code)
	assert.Equal(t, "MAGA3", p.ShipTo[2].Address)

	b, err := reg.Lookup(" B ")
	require.NoError(t, err)
	addr, ok := b.ShipToAddress("bsh_2")
	assert.True(t, ok)
	assert.Equal(t, "MAGA2", addr)

	def, err := reg.Lookup(DefaultCode)
	require.NoError(t, err)
	assert.True(t, def.NormalizeOnly)
	assert.Nil(t, def.SoldTo)
}

func TestLookupUnknownCustomer(t *testing.T) {
	for _, code := range []string{"XYZ", "", "B A", "BAX"} {
		_, err := Builtin().Lookup(code)
		require.Error(t, err, code)
		assert.ErrorIs(t, err, common.ErrUnrecognizedCustomer)
		assert.Equal(t, common.CodeUnrecognizedCustomer, common.ErrorCode(err))
	}
}

func TestProfileOverrides(t *testing.T) {
	p, err := Builtin().Lookup("G")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Precision(3))
	assert.InDelta(t, 0.3, p.Threshold(0.3), 1e-9)

	zero, threshold := 0, 0.2
	p2 := &Profile{Code: "x", QuantityPrecision: &zero, MatchThreshold: &threshold}
	assert.Equal(t, 0, p2.Precision(3))
	assert.InDelta(t, 0.2, p2.Threshold(0.3), 1e-9)
}

func TestSelectPages(t *testing.T) {
	tests := []struct {
		policy PagePolicy
		total  int
		want   []int
	}{
		{PagesAll, 3, []int{0, 1, 2}},
		{PagesFirstTwo, 5, []int{0, 1}},
		{PagesFirstTwo, 1, []int{0}},
		{PagesAllButLast, 3, []int{0, 1}},
		{PagesAllButLast, 1, []int{0}},
		{PagesAllButLast, 0, []int{}},
	}
	for _, tt := range tests {
		p := &Profile{Pages: tt.policy}
		assert.Equal(t, tt.want, p.SelectPages(tt.total), "%s/%d", tt.policy, tt.total)
	}
}

func TestRegistryIsolatedFromCaller(t *testing.T) {
	src := &Profile{Code: "zz", ShipTo: maga("z_", 1)}
	reg, err := NewRegistry(src)
	require.NoError(t, err)
	src.ShipTo[0].Address = "changed"

	p, err := reg.Lookup("ZZ")
	require.NoError(t, err)
	assert.Equal(t, "MAGA1", p.ShipTo[0].Address)
	assert.Equal(t, PagesAllButLast, p.Pages)
}

func TestNewRegistryValidation(t *testing.T) {
	bad := -1
	tooHigh := 1.5
	cases := map[string]*Profile{
		"missing code":   {},
		"dup ship-to":    {Code: "x", ShipTo: append(maga("a_", 1), maga("a_", 1)...)},
		"neg precision":  {Code: "x", QuantityPrecision: &bad},
		"bad threshold":  {Code: "x", MatchThreshold: &tooHigh},
		"bad pages":      {Code: "x", Pages: "odd"},
		"partial soldto": {Code: "x", SoldTo: &SoldTo{Key: "k"}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(p)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

const overlayTOML = `
[[customer]]
code = "b"
label = "Customer B (west)"
sold_to = "bsp_999"
quantity_precision = 0
match_threshold = 0.2
ship_to = [
  { code = "bsh_9", address = "West Dock, 9 Harbor Rd" },
]

[[customer]]
code = "ACME"
label = "Acme"
sold_to_key = "sold_to"
sold_to = "acme_1"
pages = "all"
ship_to = [
  { code = "acme_1", address = "Acme Plant 1" },
  { code = "acme_2", address = "Acme Plant 2" },
]
`

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.toml")
	require.NoError(t, os.WriteFile(path, []byte(overlayTOML), 0o600))

	reg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "N", "B", "G", "BA", "COM", "DEFAULT", "ACME"}, reg.Codes())

	b, err := reg.Lookup("B")
	require.NoError(t, err)
	assert.Equal(t, "bsp_999", b.SoldTo.Value)
	assert.Equal(t, "sold_to_num", b.SoldTo.Key)
	assert.Equal(t, 0, b.Precision(3))
	assert.InDelta(t, 0.2, b.Threshold(0.3), 1e-9)
	require.Len(t, b.ShipTo, 1)

	acme, err := reg.Lookup("acme")
	require.NoError(t, err)
	assert.Equal(t, "sold_to", acme.SoldTo.Key)
	assert.Equal(t, PagesAll, acme.Pages)

	// builtin registry is untouched
	orig, err := Builtin().Lookup("B")
	require.NoError(t, err)
	assert.Equal(t, "bsp_222", orig.SoldTo.Value)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("[[customer]]\ncode = \"x\"\ncolour = \"red\"\n"))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestLoadEmptyPath(t *testing.T) {
	reg, err := Load("", nil)
	require.NoError(t, err)
	assert.Len(t, reg.Codes(), 7)
}
