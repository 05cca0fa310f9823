package currency

import (
	"fmt"
	"sort"
	"strings"
)

// Unit represents a currency unit
type Unit struct {
	Name        string
	Symbol      string
	Decimals    int32
	ChainType   string // e.g., "evm"
	Description string
}

// Registry maintains a registry of currency units keyed by upper-cased name
type Registry struct {
	units map[string]*Unit
}

var (
	// Pre-defined currency units configurations (but not registered)
	DefaultETH = &Unit{
		Name:        "ETH",
		Symbol:      "ETH",
		Decimals:    18,
		ChainType:   "evm",
		Description: "Ethereum",
	}

	DefaultGWEI = &Unit{
		Name:        "GWEI",
		Symbol:      "GWEI",
		Decimals:    9,
		ChainType:   "evm",
		Description: "Gwei (gas price unit)",
	}

	DefaultWEI = &Unit{
		Name:        "WEI",
		Symbol:      "WEI",
		Decimals:    0,
		ChainType:   "evm",
		Description: "Wei (smallest Ethereum unit)",
	}

	DefaultSTT = &Unit{
		Name:        "STT",
		Symbol:      "STT",
		Decimals:    18,
		ChainType:   "evm",
		Description: "Somnia testnet token",
	}
)

// NewRegistry creates a new currency registry
func NewRegistry() *Registry {
	return &Registry{
		units: make(map[string]*Unit),
	}
}

// Register adds a new currency unit to the registry
func (r *Registry) Register(unit *Unit) (*Unit, error) {
	if unit.Name == "" {
		return nil, fmt.Errorf("currency unit name cannot be empty")
	}
	if unit.Decimals < 0 {
		return nil, fmt.Errorf("currency unit %s has negative decimals", unit.Name)
	}

	normalizedName := strings.ToUpper(unit.Name)
	if _, exists := r.units[normalizedName]; exists {
		return nil, fmt.Errorf("currency unit %s already registered", normalizedName)
	}

	r.units[normalizedName] = unit
	return unit, nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(unit *Unit) *Unit {
	u, err := r.Register(unit)
	if err != nil {
		panic(err)
	}
	return u
}

// Get retrieves a currency unit from the registry
func (r *Registry) Get(name string) (*Unit, error) {
	unit, exists := r.units[strings.ToUpper(name)]
	if !exists {
		return nil, fmt.Errorf("currency unit %s not found", name)
	}
	return unit, nil
}

// MustGet is like Get but panics on error
func (r *Registry) MustGet(name string) *Unit {
	unit, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return unit
}

// Ensure returns the named unit, registering an EVM unit with the given
// decimals when it is not known yet.
func (r *Registry) Ensure(name string, decimals int32) (*Unit, error) {
	name = strings.TrimSpace(name)
	if unit, err := r.Get(name); err == nil {
		return unit, nil
	}
	return r.Register(&Unit{
		Name:        strings.ToUpper(name),
		Symbol:      strings.ToUpper(name),
		Decimals:    decimals,
		ChainType:   "evm",
		Description: fmt.Sprintf("%s unit", name),
	})
}

// List returns all registered currency units sorted by name
func (r *Registry) List() []*Unit {
	units := make([]*Unit, 0, len(r.units))
	for _, unit := range r.units {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units
}

// UnmarshalYAML resolves a unit from its name against the default registry.
func (u *Unit) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}

	registry := NewDefaultRegistry()
	unit, err := registry.Get(strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("%w (known units: %s)", err, strings.Join(registry.Names(), ", "))
	}

	*u = *unit
	return nil
}

// Names returns the registered unit names in List order.
func (r *Registry) Names() []string {
	units := r.List()
	names := make([]string, 0, len(units))
	for _, unit := range units {
		names = append(names, unit.Name)
	}
	return names
}

// String returns the string representation of the currency unit
func (u *Unit) String() string {
	return u.Symbol
}

// Helper to create a new registry with default units
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(DefaultETH)
	r.MustRegister(DefaultGWEI)
	r.MustRegister(DefaultWEI)
	r.MustRegister(DefaultSTT)
	return r
}
