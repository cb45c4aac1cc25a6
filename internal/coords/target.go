package coords

import (
	"errors"
	"fmt"
	"time"
)

// TargetKind discriminates the pointing target variants.
type TargetKind string

const (
	TargetEquatorial TargetKind = "equatorial"
	TargetGalactic   TargetKind = "galactic"
	TargetHorizontal TargetKind = "horizontal"
	TargetParked     TargetKind = "parked"
)

// Target is a commanded pointing target. Exactly the fields relevant to
// its Kind are meaningful; all angles are radians.
type Target struct {
	Kind TargetKind `json:"kind"`

	RightAscension float64 `json:"right_ascension,omitempty"`
	Declination    float64 `json:"declination,omitempty"`

	// Galactic longitude/latitude.
	Longitude float64 `json:"longitude,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`

	Azimuth   float64 `json:"azimuth,omitempty"`
	Elevation float64 `json:"elevation,omitempty"`
}

// Parked is the stow target.
var Parked = Target{Kind: TargetParked}

// Validate reports whether the target kind is one of the known variants.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetEquatorial, TargetGalactic, TargetHorizontal, TargetParked:
		return nil
	case "":
		return errors.New("target kind missing")
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
}

// Horizontal resolves the target to azimuth/elevation as seen from loc at
// time now. Parked resolves to the given stow direction.
func (t Target) Horizontal(loc Location, now time.Time, stow Direction) Direction {
	switch t.Kind {
	case TargetEquatorial:
		return HorizontalFromEquatorial(loc, now, t.RightAscension, t.Declination)
	case TargetGalactic:
		return HorizontalFromGalactic(loc, now, t.Longitude, t.Latitude)
	case TargetHorizontal:
		return Direction{Azimuth: t.Azimuth, Elevation: t.Elevation}
	default:
		return stow
	}
}
