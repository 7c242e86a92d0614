// geocore is the generator driver: it ingests an OSM planet file and
// produces the reverse-geocoding artifacts and the forward geocoder's
// token index. Stages are chosen by boolean flags, not subcommands.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mapsme/geocore/internal/logger"
	"github.com/mapsme/geocore/internal/osmiter"
	"github.com/mapsme/geocore/internal/osmstore"
	"github.com/mapsme/geocore/internal/pipeline"
	"github.com/mapsme/geocore/internal/platform"
)

var (
	cfg = pipeline.Config{}

	flagPreprocess              bool
	flagGenerateFeatures        bool
	flagGenerateRegionFeatures  bool
	flagGenerateStreetsFeatures bool
	flagGenerateObjectFeatures  bool
	flagGenerateRegions         bool
	flagGenerateRegionsKV       bool
	flagGenerateObjectsIndex    bool
	flagGenerateTokenIndex      bool

	flagOsmFileType string
	flagNodeStorage string
	flagLogFile     string
)

var rootCmd = &cobra.Command{
	Use:   "geocore",
	Short: "OSM to reverse-geocoding index and forward geocoder generator",
	Long: `geocore builds two server-side artifacts from planet-scale OSM data:
a hierarchical reverse-geocoding index with a key-value store of nested
addresses, and the forward geocoder's token index over that hierarchy.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagLogFile != "" {
			logger.InitWithFile(cfg.Verbose, flagLogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
		if err := platform.RequireLittleEndian(); err != nil {
			return err
		}

		fileType, err := osmiter.ParseFileType(flagOsmFileType)
		if err != nil {
			return err
		}
		cfg.OsmFileType = fileType
		storageKind, err := osmstore.ParseStorageKind(flagNodeStorage)
		if err != nil {
			return err
		}
		cfg.NodeStorage = storageKind

		paths := platform.ResolvePaths(cfg.DataPath)
		cfg.DataPath = paths.WritableDir
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context())
	},
}

func runStages(ctx context.Context) error {
	log := logger.Get()

	type stage struct {
		enabled bool
		name    string
		run     func() error
	}
	stages := []stage{
		{flagPreprocess, "preprocess", func() error {
			return pipeline.Preprocess(ctx, &cfg)
		}},
		{flagGenerateFeatures || flagGenerateRegionFeatures ||
			flagGenerateStreetsFeatures || flagGenerateObjectFeatures,
			"generate_features", func() error {
				return pipeline.GenerateFeatures(ctx, &cfg)
			}},
		{flagGenerateRegions, "generate_regions", func() error {
			return pipeline.GenerateRegionsIndex(&cfg)
		}},
		{flagGenerateRegionsKV, "generate_regions_kv", func() error {
			return pipeline.GenerateRegions(&cfg)
		}},
		{flagGenerateStreetsFeatures, "generate_streets", func() error {
			return pipeline.GenerateStreets(&cfg)
		}},
		{flagGenerateObjectsIndex, "generate_geo_objects_index", func() error {
			if err := pipeline.GenerateGeoObjectsIndex(&cfg); err != nil {
				return err
			}
			return pipeline.GenerateGeoObjectsKV(&cfg)
		}},
		{flagGenerateTokenIndex, "generate_geocoder_token_index", func() error {
			return pipeline.GenerateGeocoderTokenIndex(&cfg)
		}},
	}

	for _, s := range stages {
		if !s.enabled {
			continue
		}
		log.Info("stage start", zap.String("stage", s.name))
		if err := s.run(); err != nil {
			log.Error("LCRITICAL stage failed", zap.String("stage", s.name), zap.Error(err))
			return err
		}
		log.Info("stage done", zap.String("stage", s.name))
	}
	return nil
}

func init() {
	f := rootCmd.PersistentFlags()

	f.BoolVar(&flagPreprocess, "preprocess", false, "Build the intermediate store")
	f.BoolVar(&flagGenerateFeatures, "generate_features", false, "Build all classified feature files")
	f.BoolVar(&flagGenerateRegionFeatures, "generate_region_features", false, "Build the regions feature file")
	f.BoolVar(&flagGenerateStreetsFeatures, "generate_streets_features", false, "Build and aggregate the streets feature file")
	f.BoolVar(&flagGenerateObjectFeatures, "generate_geo_objects_features", false, "Build the geo objects feature file")
	f.BoolVar(&flagGenerateRegions, "generate_regions", false, "Build the regions interval index")
	f.BoolVar(&flagGenerateRegionsKV, "generate_regions_kv", false, "Build the regions key-value artifact")
	f.BoolVar(&flagGenerateObjectsIndex, "generate_geo_objects_index", false, "Build the geo objects index and key-value artifact")
	f.BoolVar(&flagGenerateTokenIndex, "generate_geocoder_token_index", false, "Build the geocoder token index")

	f.StringVar(&cfg.OsmFileName, "osm_file_name", "", "Input OSM file")
	f.StringVar(&flagOsmFileType, "osm_file_type", "o5m", "Input format: xml or o5m")
	f.StringVar(&flagNodeStorage, "node_storage", "map", "Node storage: raw, map or mem")
	f.StringVar(&cfg.DataPath, "data_path", ".", "Data directory")
	f.StringVar(&cfg.IntermediateDataPath, "intermediate_data_path", ".", "Intermediate store directory")
	f.StringVar(&cfg.Output, "output", "", "Output artifact path")

	f.StringVar(&cfg.RegionsIndex, "regions_index", "regions.index", "Regions interval index path")
	f.StringVar(&cfg.RegionsKeyValue, "regions_key_value", "regions.jsonl", "Regions key-value path")
	f.StringVar(&cfg.RegionsFeatures, "regions_features", "regions.tmp", "Regions feature file")
	f.StringVar(&cfg.StreetsFeatures, "streets_features", "streets.tmp", "Streets feature file")
	f.StringVar(&cfg.GeoObjectsFeatures, "geo_objects_features", "geo_objects.tmp", "Geo objects feature file")
	f.StringVar(&cfg.StreetsKeyValue, "streets_key_value", "streets.jsonl", "Streets key-value path")
	f.StringVar(&cfg.GeoObjectsKeyValue, "geo_objects_key_value", "geo_objects.jsonl", "Geo objects key-value path")
	f.StringVar(&cfg.GeoObjectsIndex, "geo_objects_index", "geo_objects.index", "Geo objects interval index path")
	f.StringVar(&cfg.NodesListPath, "nodes_list_path", "", "Optional list of node ids to keep")
	f.StringVar(&cfg.IdsWithoutAddresses, "ids_without_addresses", "", "Output list of object ids lacking an address")
	f.StringVar(&cfg.KeyValue, "key_value", "", "Geocoder hierarchy load path")
	f.StringVar(&cfg.TokenIndex, "token_index", "", "Geocoder token index output path")
	f.StringVar(&cfg.DataVersion, "data_version", "", "Data version headline for key-value artifacts")

	f.IntVar(&cfg.Workers, "workers", 0, "Worker threads, 0 = CPU count")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Verbose logging")
	f.StringVar(&flagLogFile, "log_file", "", "Rotated log file path")

	viper.SetEnvPrefix("GEOCORE")
	viper.AutomaticEnv()
	for _, env := range []string{"data_path", "intermediate_data_path", "output"} {
		_ = viper.BindPFlag(env, f.Lookup(env))
	}
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
