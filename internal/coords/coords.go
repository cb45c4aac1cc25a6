// Package coords converts between the coordinate frames a radio telescope
// cares about: equatorial (RA/dec), galactic (l/b), and horizontal
// (azimuth/elevation) at a given site and instant. All angles are radians.
//
// The algorithms follow the USNO Astronomical Applications formulae for
// GMST, alt/az conversion, and the approximate solar position, which are
// accurate to about an arcminute within a couple of centuries of J2000.
// That is far below the beam width of any antenna this daemon points.
package coords

import (
	"math"
	"time"
)

const (
	fullCircle = 2 * math.Pi

	// Obliquity of the ecliptic, good to 1 arcmin per century from J2000.
	obliquity = 0.40909260052

	// Solar apex: the Sun moves at ~20 km/s toward RA 18h, dec +30°
	// relative to the local standard of rest.
	apexRA  = 1.5 * math.Pi
	apexDec = math.Pi / 6
)

// Location is an observing site. Longitude is positive east.
type Location struct {
	Longitude float64 `json:"longitude" toml:"longitude"`
	Latitude  float64 `json:"latitude"  toml:"latitude"`
}

// Direction is a pointing in the horizontal frame.
type Direction struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// JulianDay returns the decimal Julian day for t.
func JulianDay(t time.Time) float64 {
	// J2000.0 reference epoch: 2000-01-01 12:00 UT is JD 2451545.0.
	ref := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	return 2451545.0 + float64(t.Sub(ref).Milliseconds())/(24*60*60*1000)
}

// gmst returns Greenwich mean sidereal time in radians.
func gmst(t time.Time) float64 {
	jd := JulianDay(t)
	jd0 := math.Floor(jd) + 0.5
	h := (jd - jd0) * 24
	dtt := jd - 2451545.0
	dut := jd0 - 2451545.0
	tc := dtt / 36525.0
	st := math.Mod(6.697375+0.065709824279*dut+1.0027379*h+0.0000258*tc*tc, 24)
	return st * math.Pi / 12
}

// HorizontalFromEquatorial converts RA/dec to azimuth/elevation as seen
// from loc at time t.
func HorizontalFromEquatorial(loc Location, t time.Time, ra, dec float64) Direction {
	lha := gmst(t) - ra + loc.Longitude
	el := math.Asin(math.Cos(lha)*math.Cos(dec)*math.Cos(loc.Latitude) + math.Sin(dec)*math.Sin(loc.Latitude))
	az := math.Atan2(-math.Sin(lha), math.Tan(dec)*math.Cos(loc.Latitude)-math.Sin(loc.Latitude)*math.Cos(lha))
	return Direction{Azimuth: positiveAngle(az), Elevation: el}
}

// EquatorialFromGalactic converts galactic longitude/latitude to RA/dec.
func EquatorialFromGalactic(l, b float64) (ra, dec float64) {
	const (
		raNGP  = 192.85948 * math.Pi / 180 // RA of the north galactic pole
		decNGP = 27.12825 * math.Pi / 180  // dec of the north galactic pole
		lNCP   = 122.93192 * math.Pi / 180 // galactic longitude of the north celestial pole
	)
	dec = math.Asin(math.Sin(decNGP)*math.Sin(b) + math.Cos(decNGP)*math.Cos(b)*math.Cos(lNCP-l))
	ra = math.Atan2(math.Cos(b)*math.Sin(lNCP-l),
		math.Cos(decNGP)*math.Sin(b)-math.Sin(decNGP)*math.Cos(b)*math.Cos(lNCP-l)) + raNGP
	return ra, dec
}

// HorizontalFromGalactic converts galactic coordinates to azimuth/elevation
// as seen from loc at time t.
func HorizontalFromGalactic(loc Location, t time.Time, l, b float64) Direction {
	ra, dec := EquatorialFromGalactic(l, b)
	return HorizontalFromEquatorial(loc, t, ra, dec)
}

func eclipticFromEquatorial(ra, dec float64) (l, b float64) {
	l = math.Atan(math.Tan(ra)*math.Cos(obliquity) + math.Tan(dec)*math.Sin(obliquity)/math.Cos(ra))
	b = math.Asin(math.Sin(dec)*math.Cos(obliquity) - math.Cos(dec)*math.Sin(obliquity)*math.Sin(ra))
	return l, b
}

// eclipticFromSun returns the Sun's apparent ecliptic longitude and
// latitude (latitude approximated as zero).
func eclipticFromSun(t time.Time) (l, b float64) {
	d := JulianDay(t) - 2451545.0
	g := math.Mod(357.529+0.98560028*d, 360) // mean anomaly, degrees
	q := math.Mod(280.459+0.98564736*d, 360) // mean longitude, degrees
	lDeg := math.Mod(q+1.915*math.Sin(g*math.Pi/180)+0.020*math.Sin(2*g*math.Pi/180), 360)
	return lDeg * math.Pi / 180, 0
}

// EquatorialFromSun returns the Sun's RA/dec at time t.
func EquatorialFromSun(t time.Time) (ra, dec float64) {
	l, _ := eclipticFromSun(t)
	d := JulianDay(t) - 2451545.0
	e := (23.439 - 0.00000036*d) * math.Pi / 180 // mean obliquity
	ra = math.Atan2(math.Cos(e)*math.Sin(l), math.Cos(l))
	dec = math.Asin(math.Sin(e) * math.Sin(l))
	return ra, dec
}

// HorizontalFromSun returns the Sun's azimuth/elevation from loc at time t.
func HorizontalFromSun(loc Location, t time.Time) Direction {
	ra, dec := EquatorialFromSun(t)
	return HorizontalFromEquatorial(loc, t, ra, dec)
}

// VLSRCorrectionFromGalactic returns the line-of-sight velocity correction
// in m/s for a galactic target, accounting for the Sun's motion relative
// to the local standard of rest and the Earth's orbital motion.
func VLSRCorrectionFromGalactic(l, b float64, t time.Time) float64 {
	ra, dec := EquatorialFromGalactic(l, b)

	// Dot product of the target and solar apex unit vectors, scaled by
	// the Sun's 20 km/s apex speed.
	vsun := 20.0 * (math.Cos(apexRA)*math.Cos(apexDec)*math.Cos(ra)*math.Cos(dec) +
		math.Sin(apexRA)*math.Cos(apexDec)*math.Sin(ra)*math.Cos(dec) +
		math.Sin(apexDec)*math.Sin(dec))

	tl, tb := eclipticFromEquatorial(ra, dec)
	sl, _ := eclipticFromSun(t)

	// Earth orbital motion, ~30 km/s along the ecliptic.
	vorb := 30.0 * math.Cos(tb) * math.Sin(sl-tl)

	return 1e3 * (vsun + vorb)
}

func positiveAngle(a float64) float64 {
	return math.Mod(math.Mod(a, fullCircle)+fullCircle, fullCircle)
}
