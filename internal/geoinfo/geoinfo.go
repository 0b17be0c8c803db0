// Package geoinfo extracts GPS position and gimbal orientation from drone
// imagery.
package geoinfo

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// NotAvailable is how absent values are rendered in text.
const NotAvailable = "N/A"

// Angle is a gimbal angle in degrees. Vendors occasionally write values
// that do not parse as a number; those are kept verbatim in Raw.
type Angle struct {
	Value *float64
	Raw   string
}

// Degrees returns a parsed angle.
func Degrees(v float64) Angle {
	return Angle{Value: &v}
}

// ParseAngle parses s as degrees, keeping it raw when it is not a number.
// An empty string yields an unset angle.
func ParseAngle(s string) Angle {
	s = strings.TrimSpace(s)
	if s == "" {
		return Angle{}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Degrees(v)
	}
	return Angle{Raw: s}
}

// IsSet reports whether the angle carries any value.
func (a Angle) IsSet() bool {
	return a.Value != nil || a.Raw != ""
}

// String renders the angle, or NotAvailable when unset.
func (a Angle) String() string {
	switch {
	case a.Value != nil:
		return FormatFloat(*a.Value)
	case a.Raw != "":
		return a.Raw
	default:
		return NotAvailable
	}
}

// MarshalJSON encodes a number, the raw string, or null.
func (a Angle) MarshalJSON() ([]byte, error) {
	switch {
	case a.Value != nil:
		return json.Marshal(*a.Value)
	case a.Raw != "":
		return json.Marshal(a.Raw)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a number, a string or null.
func (a *Angle) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Angle{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*a = Degrees(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = ParseAngle(s)
	return nil
}

// GeoInfo is the per-image position and orientation record. Every field is
// optional; nil means the value was not present in the image.
type GeoInfo struct {
	Latitude    *float64 `json:"Latitude"`
	Longitude   *float64 `json:"Longitude"`
	Altitude    *float64 `json:"Altitude"`
	GimbalRoll  Angle    `json:"GimbalRoll"`
	GimbalPitch Angle    `json:"GimbalPitch"`
	GimbalYaw   Angle    `json:"GimbalYaw"`
	// Extra holds vendor tags that have no dedicated field.
	Extra map[string]string `json:"extra,omitempty"`
}

// IsEmpty reports whether no field is set.
func (g GeoInfo) IsEmpty() bool {
	return g.Latitude == nil && g.Longitude == nil && g.Altitude == nil &&
		!g.GimbalRoll.IsSet() && !g.GimbalPitch.IsSet() && !g.GimbalYaw.IsSet() &&
		len(g.Extra) == 0
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// FormatOptional renders v, or NotAvailable when nil.
func FormatOptional(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return FormatFloat(*v)
}

// FormatFloat renders v in shortest form, always with a fractional part so
// whole numbers read as "100.0".
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// Provider extracts geo-information for an image. Implementations never
// fail: missing or unreadable metadata yields an empty or partial record.
type Provider interface {
	Extract(imagePath string) GeoInfo
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(imagePath string) GeoInfo

// Extract calls f.
func (f ProviderFunc) Extract(imagePath string) GeoInfo {
	return f(imagePath)
}
