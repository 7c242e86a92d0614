package street

import (
	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
)

// Regenerate rewrites the aggregated streets as features: each logical
// street appears once, carrying its richest geometry (areas over lines
// over the pin point) in place of the many OSM way fragments. The
// feature's center is that of the kept geometry and can differ from the
// pin.
func Regenerate(streets []*Street) []*feature.Builder {
	out := make([]*feature.Builder, 0, len(streets))
	for _, s := range streets {
		fb := feature.NewBuilder(s.ID, feature.ClassStreet)
		fb.SetName(feature.DefaultLocale, s.Names.Main)
		for i, alt := range s.Names.Alt {
			// alternative spellings survive as numbered alt locales
			fb.SetName(altLocale(i), alt)
		}
		switch {
		case len(s.Areas) > 0:
			if err := fb.SetArea(s.Areas[0], nil); err != nil {
				continue
			}
		case len(s.Lines) > 0:
			if err := fb.SetLine(longestLine(s.Lines)); err != nil {
				continue
			}
		case s.pinPriority > 0:
			fb.SetPoint(s.pin)
		default:
			continue
		}
		if err := fb.Validate(); err != nil {
			if errs.IsKind(err, errs.Warnable) {
				continue
			}
		}
		out = append(out, fb)
	}
	return out
}

func longestLine(lines [][]geometry.Point) []geometry.Point {
	best := lines[0]
	for _, l := range lines[1:] {
		if len(l) > len(best) {
			best = l
		}
	}
	return best
}

var altLocaleNames = [...]string{"alt:0", "alt:1", "alt:2", "alt:3", "alt:4", "alt:5", "alt:6", "alt:7"}

func altLocale(i int) string {
	if i < len(altLocaleNames) {
		return altLocaleNames[i]
	}
	return altLocaleNames[len(altLocaleNames)-1]
}
