package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/chges100/AstroNoiseNet/checkpoints"
	"github.com/chges100/AstroNoiseNet/config"
	"github.com/chges100/AstroNoiseNet/dataset"
	"github.com/chges100/AstroNoiseNet/imageio"
	"github.com/chges100/AstroNoiseNet/nn"
	"github.com/chges100/AstroNoiseNet/reconstruct"
	"github.com/chges100/AstroNoiseNet/training"
)

// Network widths. The discriminator exposes one feature map per hidden
// layer, matching the eight matched-feature loss terms.
var (
	generatorHidden     = []int{64, 64, 64}
	discriminatorWidths = []int{16, 16, 32, 32, 64, 64, 128, 128}
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "train":
		runTrain(os.Args[2:])
	case "transform":
		runTransform(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  astronoisenet train -c config.json [-o base]")
	fmt.Println("  astronoisenet transform -c config.json -w base -i input -o output")
	fmt.Println("  astronoisenet validate -c config.json -w base")
}

func runTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("c", "", "Config file path")
	outBase := fs.String("o", "Net", "Output base name for weights and history")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath, fs)

	data, err := dataset.Load(cfg.TrainFolder, cfg.Channels(), cfg.LinkedStretch)
	fatalOn(err, "Loading training data")
	fmt.Printf("Loaded %d training pairs\n", len(data.Pairs))

	var valData *dataset.Dataset
	if cfg.Validation {
		valData, err = dataset.LoadValidation(cfg.ValidationFolder, cfg.Channels())
		fatalOn(err, "Loading validation data")
		fmt.Printf("Loaded %d validation pairs\n", len(valData.Pairs))
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	gen := nn.NewPixelMLPGenerator(cfg.Channels(), generatorHidden, rng)
	dis := nn.NewPixelMLPDiscriminator(cfg.Channels(), discriminatorWidths, rng)

	if cfg.Weights != "" {
		fatalOn(loadNetworks(cfg, gen, dis), "Loading weights")
	}

	trainer, err := training.NewTrainer(training.Config{
		Mode:         cfg.Mode,
		WindowSize:   cfg.WindowSize,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		Epochs:       cfg.Epochs,
		Augmentation: cfg.Augmentation,
		Validation:   cfg.Validation,
		WarmUp:       cfg.WarmUp,
		SaveBackups:  cfg.SaveBackups,
	}, gen, dis, data, valData, rng)
	fatalOn(err, "Building trainer")

	if cfg.History != "" {
		history, err := checkpoints.LoadHistory(historyPath(cfg.History, "train", cfg.Mode))
		fatalOn(err, "Loading training history")
		trainer.History = history
		if cfg.Validation {
			valHistory, err := checkpoints.LoadHistory(historyPath(cfg.History, "val", cfg.Mode))
			fatalOn(err, "Loading validation history")
			trainer.ValHistory = valHistory
		}
	}

	fatalOn(trainer.Train(), "Training")

	fatalOn(checkpoints.SaveWeights(weightsPath(*outBase, "G", cfg.Mode), gen.Params()), "Saving generator")
	fatalOn(checkpoints.SaveWeights(weightsPath(*outBase, "D", cfg.Mode), dis.Params()), "Saving discriminator")
	fatalOn(checkpoints.SaveHistory(historyPath(*outBase, "train", cfg.Mode), trainer.History), "Saving training history")
	if cfg.Validation {
		fatalOn(checkpoints.SaveHistory(historyPath(*outBase, "val", cfg.Mode), trainer.ValHistory), "Saving validation history")
	}
	fmt.Println("Done.")
}

func runTransform(args []string) {
	fs := flag.NewFlagSet("transform", flag.ExitOnError)
	configPath := fs.String("c", "", "Config file path")
	weightsBase := fs.String("w", "", "Weights base name")
	inputPath := fs.String("i", "", "Input image path")
	outputPath := fs.String("o", "", "Output image path")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath, fs)
	if *weightsBase == "" || *inputPath == "" || *outputPath == "" {
		fmt.Println("Error: -w, -i and -o are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(1))
	gen := nn.NewPixelMLPGenerator(cfg.Channels(), generatorHidden, rng)
	fatalOn(checkpoints.LoadWeights(weightsPath(*weightsBase, "G", cfg.Mode), gen.Params()), "Loading weights")

	img, err := imageio.Read(*inputPath, cfg.Channels())
	fatalOn(err, "Reading input")

	tr, err := reconstruct.New(gen, cfg.WindowSize, cfg.Stride)
	fatalOn(err, "Building transformer")
	restored, err := tr.Transform(img)
	fatalOn(err, "Transforming")

	fatalOn(imageio.Write(*outputPath, restored), "Writing output")
	fmt.Println("Done.")
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("c", "", "Config file path")
	weightsBase := fs.String("w", "", "Weights base name")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath, fs)
	if *weightsBase == "" {
		fmt.Println("Error: -w is required")
		fs.PrintDefaults()
		os.Exit(1)
	}
	if cfg.ValidationFolder == "" {
		fmt.Println("Error: validation_folder is not set in the config")
		os.Exit(1)
	}

	valData, err := dataset.LoadValidation(cfg.ValidationFolder, cfg.Channels())
	fatalOn(err, "Loading validation data")

	rng := rand.New(rand.NewSource(1))
	gen := nn.NewPixelMLPGenerator(cfg.Channels(), generatorHidden, rng)
	dis := nn.NewPixelMLPDiscriminator(cfg.Channels(), discriminatorWidths, rng)
	cfg.Weights = *weightsBase
	fatalOn(loadNetworks(cfg, gen, dis), "Loading weights")

	metrics, err := training.Validate(gen, dis, valData, cfg.WindowSize, nil)
	fatalOn(err, "Validation")
	for _, name := range training.ValidationMetricNames {
		fmt.Printf("%s: %v\n", name, metrics[name])
	}
}

func loadNetworks(cfg config.Config, gen nn.Generator, dis nn.Discriminator) error {
	if err := checkpoints.LoadWeights(weightsPath(cfg.Weights, "G", cfg.Mode), gen.Params()); err != nil {
		return err
	}
	return checkpoints.LoadWeights(weightsPath(cfg.Weights, "D", cfg.Mode), dis.Params())
}

func weightsPath(base, net, mode string) string {
	return fmt.Sprintf("%s_%s_%s.wts", base, net, mode)
}

func historyPath(base, kind, mode string) string {
	return fmt.Sprintf("%s_%s_%s.hist", base, kind, mode)
}

func mustLoadConfig(path string, fs *flag.FlagSet) config.Config {
	if path == "" {
		fmt.Println("Error: -c is required")
		fs.PrintDefaults()
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	fatalOn(err, "Loading config")
	return cfg
}

func fatalOn(err error, what string) {
	if err != nil {
		fmt.Printf("%s failed: %v\n", what, err)
		os.Exit(1)
	}
}
