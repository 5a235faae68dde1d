// Package dataset loads matched degraded/reference image pairs and
// draws area-weighted training patches from them.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chges100/AstroNoiseNet/imageio"
	"github.com/chges100/AstroNoiseNet/stats"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// DefaultExtensions is the extension filter applied when enumerating
// dataset folders.
var DefaultExtensions = []string{".fits", ".fit", ".fts", ".tif", ".tiff", ".png"}

// ErrEmptyDataset is returned when a dataset folder contains no
// matching files.
var ErrEmptyDataset = errors.New("no image pairs found")

// Pair is one degraded/reference capture of the same subject. Images
// are immutable once loaded; patches are copied before augmentation
// mutates them.
type Pair struct {
	Name      string
	Degraded  *tensor.Image
	Reference *tensor.Image
}

// Dataset is an ordered sequence of pairs with parallel sampling
// weights (normalized, proportional to pixel area) and per-pair robust
// statistics.
type Dataset struct {
	Pairs       []Pair
	Weights     []float64
	Stats       []*stats.Estimate
	TotalPixels int
}

// Load reads all pairs under root/short and root/long, validates their
// structural consistency and computes sampling weights and linked (or
// unlinked) training statistics. Any inconsistency is a fatal error:
// proceeding on mismatched data would corrupt every downstream metric.
func Load(root string, channels int, linked bool) (*Dataset, error) {
	return load(root, channels, func(img *tensor.Image) (*stats.Estimate, error) {
		return stats.EstimateTraining(img, linked)
	})
}

// LoadValidation reads a held-out dataset, computing validation-policy
// statistics (full pixel set) instead of the subsampled training ones.
func LoadValidation(root string, channels int) (*Dataset, error) {
	return load(root, channels, stats.EstimateValidation)
}

func load(root string, channels int, estimate func(*tensor.Image) (*stats.Estimate, error)) (*Dataset, error) {
	shortDir := filepath.Join(root, "short")
	longDir := filepath.Join(root, "long")

	shortFiles, err := listImages(shortDir)
	if err != nil {
		return nil, err
	}
	longFiles, err := listImages(longDir)
	if err != nil {
		return nil, err
	}

	if len(shortFiles) != len(longFiles) {
		return nil, fmt.Errorf("file counts differ: %d in %s, %d in %s",
			len(shortFiles), shortDir, len(longFiles), longDir)
	}
	if len(shortFiles) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyDataset, root)
	}
	for i := range shortFiles {
		if shortFiles[i] != longFiles[i] {
			return nil, fmt.Errorf("pair mismatch at position %d: %q in short, %q in long",
				i, shortFiles[i], longFiles[i])
		}
	}

	ds := &Dataset{}
	areas := make([]float64, 0, len(shortFiles))
	for _, name := range shortFiles {
		degraded, err := imageio.Read(filepath.Join(shortDir, name), channels)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		reference, err := imageio.Read(filepath.Join(longDir, name), channels)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		if !degraded.SameShape(reference) {
			return nil, fmt.Errorf("image sizes are not equal: %s/%s and %s/%s",
				shortDir, name, longDir, name)
		}

		est, err := estimate(degraded)
		if err != nil {
			return nil, fmt.Errorf("statistics for %s: %w", name, err)
		}

		ds.Pairs = append(ds.Pairs, Pair{Name: name, Degraded: degraded, Reference: reference})
		ds.Stats = append(ds.Stats, est)
		area := degraded.H * degraded.W
		areas = append(areas, float64(area))
		ds.TotalPixels += area
	}

	// Area-proportional draw probability: larger images must not be
	// under-sampled relative to smaller ones.
	ds.Weights = make([]float64, len(areas))
	total := float64(ds.TotalPixels)
	for i, a := range areas {
		ds.Weights[i] = a / total
	}
	return ds, nil
}

// IterationsPerEpoch is half the theoretical non-overlapping tile
// count: enough coverage without overfitting to a fixed patch grid
// within one epoch.
func (d *Dataset) IterationsPerEpoch(windowSize int) int {
	return d.TotalPixels / (windowSize * windowSize) / 2
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range DefaultExtensions {
			if ext == want {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
