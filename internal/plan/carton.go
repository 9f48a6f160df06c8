package plan

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidConfiguration reports an unknown carton class, side or a malformed
// plan input. No partial plan is returned alongside it.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Family selects the layer printing rule.
type Family string

const (
	Alternating Family = "alternating"
	TopBiased   Family = "top_biased"
)

// Side is the face of the line being printed.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// ParseSide accepts "A" or "B" in either case.
func ParseSide(s string) (Side, error) {
	switch s {
	case "A", "a":
		return SideA, nil
	case "B", "b":
		return SideB, nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrInvalidConfiguration, s)
	}
}

// CartonClass is a packaging variant. Dimensions are in millimetres.
type CartonClass struct {
	Name   string
	Depth  float64
	Width  float64
	Height float64
	Layers int
	Family Family
}

// Validate checks the class can produce a plan.
func (c CartonClass) Validate() error {
	if c.Family != Alternating && c.Family != TopBiased {
		return fmt.Errorf("%w: carton %q: unknown family %q", ErrInvalidConfiguration, c.Name, c.Family)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("%w: carton %q: layers must be positive", ErrInvalidConfiguration, c.Name)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: carton %q: width and height must be positive", ErrInvalidConfiguration, c.Name)
	}
	return nil
}

var builtin = map[string]CartonClass{
	"frozen_small":   {Name: "frozen_small", Depth: 527, Width: 370, Height: 115, Layers: 8, Family: Alternating},
	"frozen_large":   {Name: "frozen_large", Depth: 527, Width: 370, Height: 165, Layers: 6, Family: Alternating},
	"chilled_small":  {Name: "chilled_small", Depth: 527, Width: 365, Height: 115, Layers: 10, Family: TopBiased},
	"chilled_medium": {Name: "chilled_medium", Depth: 527, Width: 365, Height: 177, Layers: 7, Family: TopBiased},
	"chilled_large":  {Name: "chilled_large", Depth: 527, Width: 365, Height: 205, Layers: 6, Family: TopBiased},
	"testing":        {Name: "testing", Depth: 527, Width: 365, Height: 205, Layers: 5, Family: Alternating},
}

// Catalog resolves carton classes by name: the built-in set plus any extras.
type Catalog struct {
	classes map[string]CartonClass
}

// NewCatalog returns the built-in catalogue extended with extra classes.
// An extra class with a built-in name replaces it.
func NewCatalog(extra ...CartonClass) (*Catalog, error) {
	classes := make(map[string]CartonClass, len(builtin)+len(extra))
	for name, c := range builtin {
		classes[name] = c
	}
	for _, c := range extra {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: carton class without a name", ErrInvalidConfiguration)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		classes[c.Name] = c
	}
	return &Catalog{classes: classes}, nil
}

// Lookup returns the named class.
func (c *Catalog) Lookup(name string) (CartonClass, error) {
	class, ok := c.classes[name]
	if !ok {
		return CartonClass{}, fmt.Errorf("%w: unknown carton class %q", ErrInvalidConfiguration, name)
	}
	return class, nil
}

// Names lists the known classes, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.classes))
	for name := range c.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a built-in class.
func Lookup(name string) (CartonClass, error) {
	class, ok := builtin[name]
	if !ok {
		return CartonClass{}, fmt.Errorf("%w: unknown carton class %q", ErrInvalidConfiguration, name)
	}
	return class, nil
}
