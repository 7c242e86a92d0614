package pipeline

import (
	"go.uber.org/zap"

	"github.com/mapsme/geocore/internal/geocoder"
	"github.com/mapsme/geocore/internal/logger"
)

// GenerateGeocoderTokenIndex loads the geo-objects KV artifact and
// serialises the geocoder's binary token index.
func GenerateGeocoderTokenIndex(cfg *Config) error {
	loadPath := cfg.KeyValue
	if loadPath == "" {
		loadPath = cfg.GeoObjectsKeyValue
	}
	g, err := geocoder.LoadFromKV(loadPath, cfg.DataVersion != "")
	if err != nil {
		return err
	}
	out := cfg.TokenIndex
	if out == "" {
		out = cfg.Output
	}
	if err := g.SaveSnapshot(out); err != nil {
		return err
	}
	logger.Get().Info("geocoder token index written",
		zap.String("from", loadPath), zap.String("to", out))
	return nil
}
