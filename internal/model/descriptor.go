package model

import "strconv"

// Color is the inferred style of a wine.
type Color string

// Supported colors.
const (
	ColorRed       Color = "red"
	ColorWhite     Color = "white"
	ColorRose      Color = "rosé"
	ColorSparkling Color = "sparkling"
	ColorUnknown   Color = "unknown"
)

// ParseColor maps a loose color label to a Color. Unknown labels map to ColorUnknown.
func ParseColor(s string) Color {
	switch s {
	case "red":
		return ColorRed
	case "white":
		return ColorWhite
	case "rose", "rosé", "rosado", "rosato":
		return ColorRose
	case "sparkling":
		return ColorSparkling
	default:
		return ColorUnknown
	}
}

// Known reports whether the color was inferred.
func (c Color) Known() bool {
	return c != "" && c != ColorUnknown
}

// InputRow is one line of the unresolved-names input file.
type InputRow struct {
	RawName  string `csv:"raw_name" json:"raw_name"`
	Price    string `csv:"price,omitempty" json:"price,omitempty"`
	Quantity string `csv:"quantity,omitempty" json:"quantity,omitempty"`
}

// Descriptor is a parsed, unresolved product entry.
type Descriptor struct {
	RawName  string `json:"raw_name"`
	Year     int    `json:"year,omitempty"` // 0 when no vintage was found
	Producer string `json:"producer,omitempty"`
	Label    string `json:"label,omitempty"`
	Color    Color  `json:"color"`
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity,omitempty"`
}

// HasYear reports whether a vintage was extracted.
func (d Descriptor) HasYear() bool {
	return d.Year > 0
}

// YearString returns the vintage as text, or "" when absent.
func (d Descriptor) YearString() string {
	if !d.HasYear() {
		return ""
	}
	return strconv.Itoa(d.Year)
}
