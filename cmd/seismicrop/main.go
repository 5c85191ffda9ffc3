package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"seismicrop/internal/models"
	"seismicrop/pkg/assembly"
	"seismicrop/pkg/config"
	"seismicrop/pkg/crop"
	"seismicrop/pkg/densestore"
	"seismicrop/pkg/interpolation"
	"seismicrop/pkg/logging"
	"seismicrop/pkg/mask"
	"seismicrop/pkg/pipeline"
	"seismicrop/pkg/visualization"
)

func main() {
	configPath := flag.String("config", "seismicrop.yaml", "YAML configuration file")
	createConfig := flag.Bool("create-config", false, "Write the default configuration to -config and exit")
	volume := flag.String("volume", "", "SEG-Y volume to crop and reassemble")
	labelFile := flag.String("labels", "", "Optional horizon point cloud (inline crossline height per line)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	source := flag.String("source", "", "Crop source, segy or dense (default: from config)")
	output := flag.String("output", "", "Store the reassembled volume under this name in the dense store")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save reassembled slices along all axes")
	slicesDir := flag.String("slices-dir", "reassembled_slices", "Directory to save extracted slices")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *volume == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *source != "" {
		cfg.Crop.Source = *source
	}
	logging.Setup(&cfg.Logging)
	defer logging.Shutdown()

	params, err := buildParams(cfg, *volume, *labelFile)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("SEISMIC CROP EXTRACTION AND REASSEMBLY")
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := pipeline.NewRunner(params)
	startTime := time.Now()
	if err := runner.Process(ctx); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	processingTime := time.Since(startTime)

	layout := runner.GetLayout()
	result := runner.GetVolume()
	fmt.Printf("\nReassembly completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Volume shape: %s, grid of %d crops of %s\n", runner.GetIndex().Shape(), layout.Len(), layout.CropShape)
	fmt.Printf("Reassembled region: %s at %v\n\n", result.Shape, layout.Base)

	metrics := runner.GetMetrics()
	fmt.Printf("Validation Metrics:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Root Mean Square Error (RMSE): %.6f\n", metrics.RMSE)
	fmt.Printf("Max Absolute Error: %.6f\n", metrics.MaxAbsError)
	fmt.Printf("Correlation: %.4f\n", metrics.Correlation)
	fmt.Printf("Structural Similarity Index (SSIM): %.4f\n", metrics.SSIM)
	fmt.Printf("Entropy Difference: %.4f\n", metrics.EntropyDiff)
	fmt.Printf("Voxels compared: %d\n", metrics.Voxels)

	if *output != "" {
		if err := storeResult(params.DenseStore, *output, result); err != nil {
			log.Fatalf("Failed to store result: %v", err)
		}
		fmt.Printf("\nReassembled volume stored as %q\n", *output)
	}

	if *extractSlices {
		fmt.Println("\nExtracting reassembled slices along all axes...")
		idx := runner.GetIndex()
		viewer := visualization.NewViewerWithRange(result, idx.ValueMin, idx.ValueMax)
		for _, axis := range []string{"inline", "crossline", "height"} {
			axisDir := filepath.Join(*slicesDir, axis)
			fmt.Printf("Saving %s slices to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Printf("Warning: Failed to save %s slices: %v", axis, err)
			}
		}
		fmt.Println("Slice extraction completed!")
	}

	if params.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", params.IntermediaryDir)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 01_first_crop: First crop of the grid")
		fmt.Println("- 02_first_mask: Mask of the first crop, when labels are given")
		fmt.Println("- 03_reassembled_volume: Reassembled volume slices")
	}
}

func buildParams(cfg *config.Config, volume, labelFile string) (*pipeline.Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	source, err := crop.ParseSource(cfg.Crop.Source)
	if err != nil {
		return nil, err
	}
	mode, err := mask.ParseMode(cfg.Mask.Mode)
	if err != nil {
		return nil, err
	}
	variogram, err := interpolation.ParseVariogram(cfg.Mask.Variogram)
	if err != nil {
		return nil, err
	}
	reducer, err := assembly.ParseReducer(cfg.Assembly.Reducer)
	if err != nil {
		return nil, err
	}
	compression, err := densestore.ParseCompression(cfg.DenseStore.Compression)
	if err != nil {
		return nil, err
	}

	params := &pipeline.Params{
		Volume:           volume,
		Labels:           labelFile,
		FillLabels:       cfg.Mask.Fill,
		KrigingNeighbors: cfg.Mask.Neighbors,
		Source:           source,
		CropShape:        models.Shape(cfg.Crop.Shape),
		Stride:           cfg.Crop.Stride,
		Workers:          cfg.Processing.NumCores,
		MaskMode:         mode,
		MaskWidth:        cfg.Mask.Width,
		Reducer:          reducer,
		Normalize:        cfg.Processing.Normalize,
		DenseStore: densestore.Options{
			Path:        cfg.DenseStore.Path,
			InMemory:    cfg.DenseStore.InMemory,
			Compression: compression,
			CacheBytes:  cfg.DenseStore.CacheBytes,
		},
		SaveIntermediaryResults: cfg.Processing.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Processing.IntermediaryDir,
	}
	params.Kriging.Range = cfg.Mask.KrigingRange
	params.Kriging.Model = variogram
	params.Geometry.Height = cfg.Geometry.Height
	return params, nil
}

func storeResult(opts densestore.Options, name string, result *models.Array3D) error {
	store, err := densestore.Open(opts)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.PutVolume(name, result)
}
