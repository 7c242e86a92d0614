package pipeline

import (
	"runtime"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"

	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/osmiter"
	"github.com/mapsme/geocore/internal/osmstore"
	"github.com/mapsme/geocore/internal/region"
	"github.com/mapsme/geocore/internal/tmpstore"
)

// Config carries every path and knob the CLI driver resolves; stages
// receive it read-only.
type Config struct {
	OsmFileName string
	OsmFileType osmiter.FileType
	NodeStorage osmstore.StorageKind

	DataPath             string
	IntermediateDataPath string
	Output               string

	RegionsFeatures    string
	StreetsFeatures    string
	GeoObjectsFeatures string

	RegionsIndex       string
	RegionsKeyValue    string
	StreetsKeyValue    string
	GeoObjectsIndex    string
	GeoObjectsKeyValue string

	NodesListPath       string
	IdsWithoutAddresses string

	// KeyValue is the geocoder's load path; TokenIndex its output.
	KeyValue   string
	TokenIndex string

	DataVersion string
	Workers     int
	Verbose     bool
}

func (cfg *Config) workers() int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.NumCPU()
}

// newStageBar renders stage progress the same way across the pipeline.
func newStageBar(steps int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(steps,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// loadRegionForest rebuilds the region trees from the regions
// intermediate file; street and geo-object stages run as separate
// processes and cannot share the in-memory forest.
func loadRegionForest(cfg *Config) (*region.Finder, error) {
	features, err := tmpstore.ReadAll(cfg.RegionsFeatures)
	if err != nil {
		return nil, err
	}
	var polygons, placePoints []*feature.Builder
	for _, fb := range features {
		switch {
		case fb.GeomKind() == feature.GeomArea && fb.Class.IsAdministrative():
			polygons = append(polygons, fb)
		case fb.Class.Has(feature.ClassPlacePoint):
			placePoints = append(placePoints, fb)
		}
	}
	trees, err := region.NewBuilder(polygons, placePoints).Build()
	if err != nil {
		return nil, err
	}
	return region.NewFinder(trees), nil
}
