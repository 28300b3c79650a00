package cdp

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp/abacus"
	"cdpvault/native/cdp/fixed"
)

// Genesis describes the initial deployment: the governor, global limits and
// the collateral types with their risk and auction parameters. Amounts are
// decimal strings in their natural unit (wad, ray or rad).
type Genesis struct {
	Governor string      `toml:"Governor"`
	Line     string      `toml:"Line"` // [rad]
	Par      string      `toml:"Par"`  // [ray]
	Base     string      `toml:"Base"` // [ray]
	Hole     string      `toml:"Hole"` // [rad]
	Vow      VowConfig   `toml:"vow"`
	Ilks     []IlkConfig `toml:"ilk"`
}

type VowConfig struct {
	Wait uint64 `toml:"Wait"`
	Bump string `toml:"Bump"` // [rad]
	Hump string `toml:"Hump"` // [rad]
	Sink string `toml:"Sink"`
}

type IlkConfig struct {
	Name        string     `toml:"Name"`
	Line        string     `toml:"Line"`  // [rad]
	Dust        string     `toml:"Dust"`  // [rad]
	Mat         string     `toml:"Mat"`   // [ray]
	Duty        string     `toml:"Duty"`  // [ray]
	Chop        string     `toml:"Chop"`  // [wad]
	Hole        string     `toml:"Hole"`  // [rad]
	Buf         string     `toml:"Buf"`   // [ray]
	Tail        uint64     `toml:"Tail"`  // seconds
	Cusp        string     `toml:"Cusp"`  // [ray]
	Chip        string     `toml:"Chip"`  // [wad]
	Tip         string     `toml:"Tip"`   // [rad]
	Price       string     `toml:"Price"` // initial feed value [wad]
	MaxPriceAge uint64     `toml:"MaxPriceAge"`
	Calc        CalcConfig `toml:"calc"`
}

type CalcConfig struct {
	Kind string `toml:"Kind"`
	Tau  uint64 `toml:"Tau"`
	Step uint64 `toml:"Step"`
	Cut  string `toml:"Cut"` // [ray]
}

// foreignParam names the first parameter set that a curve of kind cannot
// be filed with.
func (c CalcConfig) foreignParam(kind string) string {
	tau, step, cut := c.Tau != 0, c.Step != 0, strings.TrimSpace(c.Cut) != ""
	switch kind {
	case abacus.KindLinear:
		if cut {
			return "Cut"
		}
		if step {
			return "Step"
		}
	case abacus.KindStairstep:
		if tau {
			return "Tau"
		}
	case abacus.KindExponent:
		if tau {
			return "Tau"
		}
		if step {
			return "Step"
		}
	}
	return ""
}

// LoadGenesis decodes a TOML genesis file and validates it.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGenesis(string(raw))
}

// ParseGenesis decodes TOML genesis content and validates it.
func ParseGenesis(content string) (*Genesis, error) {
	gen := &Genesis{}
	meta, err := toml.Decode(content, gen)
	if err != nil {
		return nil, fmt.Errorf("cdp: genesis: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("cdp: genesis: unknown key %s: %w", undecoded[0], cdperrors.ErrUnrecognizedParam)
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	return gen, nil
}

type amountCheck struct {
	name     string
	value    string
	decimals int
}

// Validate checks addresses, names and that every amount parses in its unit.
func (g *Genesis) Validate() error {
	if !common.IsHexAddress(g.Governor) {
		return fmt.Errorf("cdp: genesis: governor %q: %w", g.Governor, cdperrors.ErrInvalidParam)
	}
	if s := strings.TrimSpace(g.Vow.Sink); s != "" && !common.IsHexAddress(s) {
		return fmt.Errorf("cdp: genesis: vow sink %q: %w", s, cdperrors.ErrInvalidParam)
	}
	checks := []amountCheck{
		{"Line", g.Line, fixed.RadDecimals},
		{"Par", g.Par, fixed.RayDecimals},
		{"Base", g.Base, fixed.RayDecimals},
		{"Hole", g.Hole, fixed.RadDecimals},
		{"vow.Bump", g.Vow.Bump, fixed.RadDecimals},
		{"vow.Hump", g.Vow.Hump, fixed.RadDecimals},
	}
	seen := make(map[string]struct{}, len(g.Ilks))
	for _, ilk := range g.Ilks {
		name := ilk.Name
		if name == "" || strings.TrimSpace(name) != name || strings.Contains(name, "/") {
			return fmt.Errorf("cdp: genesis: ilk name %q: %w", name, cdperrors.ErrInvalidParam)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("cdp: genesis: ilk %s: %w", name, cdperrors.ErrIlkAlreadyInitialized)
		}
		seen[name] = struct{}{}
		calc, err := abacus.New(ilk.Calc.Kind)
		if err != nil {
			return fmt.Errorf("cdp: genesis: ilk %s: %w", name, err)
		}
		if calc.Kind() != abacus.KindLinear && strings.TrimSpace(ilk.Calc.Cut) == "" {
			return fmt.Errorf("cdp: genesis: ilk %s: %s curve needs Cut: %w", name, calc.Kind(), cdperrors.ErrInvalidParam)
		}
		if key := ilk.Calc.foreignParam(calc.Kind()); key != "" {
			return fmt.Errorf("cdp: genesis: ilk %s: %s curve does not take %s: %w", name, calc.Kind(), key, cdperrors.ErrUnrecognizedParam)
		}
		checks = append(checks,
			amountCheck{name + ".Line", ilk.Line, fixed.RadDecimals},
			amountCheck{name + ".Dust", ilk.Dust, fixed.RadDecimals},
			amountCheck{name + ".Hole", ilk.Hole, fixed.RadDecimals},
			amountCheck{name + ".Tip", ilk.Tip, fixed.RadDecimals},
			amountCheck{name + ".Mat", ilk.Mat, fixed.RayDecimals},
			amountCheck{name + ".Duty", ilk.Duty, fixed.RayDecimals},
			amountCheck{name + ".Buf", ilk.Buf, fixed.RayDecimals},
			amountCheck{name + ".Cusp", ilk.Cusp, fixed.RayDecimals},
			amountCheck{name + ".calc.Cut", ilk.Calc.Cut, fixed.RayDecimals},
			amountCheck{name + ".Chop", ilk.Chop, fixed.WadDecimals},
			amountCheck{name + ".Chip", ilk.Chip, fixed.WadDecimals},
			amountCheck{name + ".Price", ilk.Price, fixed.WadDecimals},
		)
	}
	for _, check := range checks {
		if strings.TrimSpace(check.value) == "" {
			continue
		}
		if _, err := fixed.Parse(strings.TrimSpace(check.value), check.decimals); err != nil {
			return fmt.Errorf("cdp: genesis: %s: %w", check.name, err)
		}
	}
	return nil
}

// amount parses an optional decimal. Empty means fallback.
func amount(value string, decimals int, fallback *uint256.Int) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return fixed.Value(fallback), nil
	}
	return fixed.Parse(strings.TrimSpace(value), decimals)
}
