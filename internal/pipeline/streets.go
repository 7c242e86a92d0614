package pipeline

import (
	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/kv"
	"github.com/mapsme/geocore/internal/parallel"
	"github.com/mapsme/geocore/internal/region"
	"github.com/mapsme/geocore/internal/street"
	"github.com/mapsme/geocore/internal/tmpstore"
)

// GenerateStreets aggregates street features per region, binds address
// points, regenerates the streets intermediate file and writes the
// streets KV artifact.
func GenerateStreets(cfg *Config) error {
	bar := newStageBar(4, "[cyan]Aggregating streets...")
	finder, err := loadRegionForest(cfg)
	if err != nil {
		return err
	}
	builder := street.NewBuilder(finder)
	bar.Add(1)

	streetFeatures, err := tmpstore.ReadAll(cfg.StreetsFeatures)
	if err != nil {
		return err
	}
	fan := parallel.NewFan[*feature.Builder, struct{}](len(streetFeatures))
	outs := fan.FanOut(cfg.workers(), func(fb *feature.Builder) struct{} {
		builder.AddFeature(fb)
		return struct{}{}
	})
	go fan.Generate(streetFeatures)
	err = fan.FanIn(func(resChan <-chan struct{}) error {
		for range resChan {
		}
		return nil
	}, outs...)
	if err != nil {
		return err
	}
	bar.Add(1)

	// binding pass: address carriers point at streets via addr:street
	err = tmpstore.ForEach(cfg.GeoObjectsFeatures, func(_ int64, fb *feature.Builder) error {
		if fb.Street != "" && fb.HouseNumber != "" {
			builder.BindAddressPoint(fb)
		}
		return nil
	})
	if err != nil {
		return err
	}
	bar.Add(1)

	streets := builder.Streets()
	if err := tmpstore.Rewrite(cfg.StreetsFeatures, street.Regenerate(streets)); err != nil {
		return err
	}

	w, err := kv.NewWriter(cfg.StreetsKeyValue, kv.WriterOptions{DataVersion: cfg.DataVersion})
	if err != nil {
		return err
	}
	for _, s := range streets {
		rec := streetRecord(finder, s)
		if err := w.Write(s.ID, rec); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	bar.Add(1)
	return nil
}

func streetRecord(finder *region.Finder, s *street.Street) *kv.Record {
	var addr kv.Address
	for t, name := range finder.AddressChain(s.Region) {
		addr.SetSlot(t, name)
	}
	addr.Street = s.Names.Main
	pin := s.Pin()
	return &kv.Record{
		Type:     "Feature",
		Geometry: kv.PointGeometry(pin.Lat, pin.Lon),
		Properties: kv.Properties{
			Kind: hierarchy.Street.String(),
			Locales: map[string]kv.LocaleRecord{
				feature.DefaultLocale: {Name: s.Names.Main, Address: addr},
			},
		},
	}
}
