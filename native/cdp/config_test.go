package cdp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	cdperrors "cdpvault/core/errors"
	nativecommon "cdpvault/native/common"
)

func TestLoadGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	if err := os.WriteFile(path, []byte(testGenesis), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	gen, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(gen.Ilks) != 1 || gen.Ilks[0].Name != gold || gen.Ilks[0].Calc.Tau != 3600 {
		t.Fatalf("unexpected genesis %+v", gen)
	}
	if common.HexToAddress(gen.Vow.Sink) != sink {
		t.Fatalf("unexpected sink %s", gen.Vow.Sink)
	}
	if _, err := LoadGenesis(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestGenesisRejectsUnknownKey(t *testing.T) {
	_, err := ParseGenesis(`Governor = "0x00000000000000000000000000000000000000a1"` + "\nColor = \"red\"\n")
	if !errors.Is(err, cdperrors.ErrUnrecognizedParam) {
		t.Fatalf("expected ErrUnrecognizedParam, got %v", err)
	}
}

func TestGenesisValidation(t *testing.T) {
	cases := map[string]string{
		"unknown key":  `Governor = "0x00000000000000000000000000000000000000a1"` + "\nColor = \"red\"\n",
		"bad governor": `Governor = "alice"`,
		"bad amount":   `Governor = "0x00000000000000000000000000000000000000a1"` + "\nLine = \"1.5x\"\n",
		"duplicate ilk": `Governor = "0x00000000000000000000000000000000000000a1"
[[ilk]]
Name = "A"
[[ilk]]
Name = "A"
`,
		"curve without cut": `Governor = "0x00000000000000000000000000000000000000a1"
[[ilk]]
Name = "A"
[ilk.calc]
Kind = "stairstep"
`,
	}
	for name, content := range cases {
		if _, err := ParseGenesis(content); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestGenesisRejectsParamsForeignToCurve(t *testing.T) {
	const head = `Governor = "0x00000000000000000000000000000000000000a1"
[[ilk]]
Name = "A"
[ilk.calc]
`
	cases := map[string]string{
		"linear cut":       "Kind = \"linear\"\nTau = 100\nCut = \"0.99\"\n",
		"linear step":      "Kind = \"linear\"\nTau = 100\nStep = 90\n",
		"stairstep tau":    "Kind = \"stairstep\"\nCut = \"0.99\"\nStep = 90\nTau = 100\n",
		"exponential step": "Kind = \"exponential\"\nCut = \"0.99\"\nStep = 90\n",
	}
	for name, calc := range cases {
		if _, err := ParseGenesis(head + calc); !errors.Is(err, cdperrors.ErrUnrecognizedParam) {
			t.Fatalf("%s: expected ErrUnrecognizedParam, got %v", name, err)
		}
	}

	gen, err := ParseGenesis(head + "Kind = \"stairstep\"\nCut = \"0.99\"\nStep = 90\n")
	if err != nil {
		t.Fatalf("stairstep: %v", err)
	}
	if _, err := Deploy(gen, nativecommon.NewManualClock(1)); err != nil {
		t.Fatalf("validated genesis must deploy: %v", err)
	}
}
