// Package training runs the adversarial training loop: weighted patch
// batches through generator and multi-output discriminator, a
// multi-term loss, and two independently optimized parameter sets.
package training

import (
	"fmt"
	"math/rand"

	"github.com/chges100/AstroNoiseNet/augment"
	"github.com/chges100/AstroNoiseNet/checkpoints"
	"github.com/chges100/AstroNoiseNet/dataset"
	"github.com/chges100/AstroNoiseNet/nn"
	"github.com/chges100/AstroNoiseNet/optimizer"
)

// Config holds the training run parameters.
type Config struct {
	Mode         string // "RGB" or "Greyscale"
	WindowSize   int
	BatchSize    int
	LearningRate float32
	Epochs       int
	Augmentation bool
	Validation   bool
	// WarmUp replaces the target with the input (identity target),
	// used only for initial stabilization.
	WarmUp      bool
	SaveBackups bool
	BackupBase  string
	// ValidationInterval is the iteration cadence of mid-epoch
	// validation runs; defaults to 1000.
	ValidationInterval int
}

// Trainer owns the networks, their optimizers and the loss histories
// for one training run.
type Trainer struct {
	config  Config
	gen     nn.Generator
	dis     nn.Discriminator
	genOpt  *optimizer.Adam
	disOpt  *optimizer.Adam
	sampler *dataset.Sampler
	data    *dataset.Dataset
	valData *dataset.Dataset

	History    History
	ValHistory History
}

// NewTrainer wires a trainer from loaded datasets and network
// collaborators. valData may be nil when validation is disabled.
func NewTrainer(config Config, gen nn.Generator, dis nn.Discriminator, data, valData *dataset.Dataset, rng *rand.Rand) (*Trainer, error) {
	if config.ValidationInterval <= 0 {
		config.ValidationInterval = 1000
	}
	if config.BackupBase == "" {
		config.BackupBase = "Net_backup"
	}
	if config.Validation && valData == nil {
		return nil, fmt.Errorf("validation enabled but no validation dataset loaded")
	}

	var aug *augment.Augmentor
	if config.Augmentation {
		aug = augment.New(nil, rng)
	}
	sampler, err := dataset.NewSampler(data, config.WindowSize, config.BatchSize, aug, rng)
	if err != nil {
		return nil, err
	}

	genCfg := optimizer.DefaultAdamConfig()
	genCfg.LearningRate = config.LearningRate
	disCfg := optimizer.DefaultAdamConfig()
	// Asymmetric rates keep the discriminator from dominating.
	disCfg.LearningRate = config.LearningRate / 4

	return &Trainer{
		config:     config,
		gen:        gen,
		dis:        dis,
		genOpt:     optimizer.NewAdam(genCfg),
		disOpt:     optimizer.NewAdam(disCfg),
		sampler:    sampler,
		data:       data,
		valData:    valData,
		History:    make(History),
		ValHistory: make(History),
	}, nil
}

// Train runs the configured number of epochs.
func (t *Trainer) Train() error {
	iters := t.data.IterationsPerEpoch(t.config.WindowSize)
	if iters == 0 {
		return fmt.Errorf("dataset too small: zero iterations per epoch at window %d", t.config.WindowSize)
	}

	for e := 0; e < t.config.Epochs; e++ {
		pb := NewProgressBar(fmt.Sprintf("Epoch %d/%d", e+1, t.config.Epochs), iters)
		for i := 0; i < iters; i++ {
			if t.config.Validation && i%t.config.ValidationInterval == 0 && i != 0 {
				if err := t.Validate(); err != nil {
					return err
				}
			}
			if err := t.step(); err != nil {
				return err
			}
			pb.Update(i+1, map[string]float64{
				"total":  t.History.MeanLast("total", 500),
				"gen_L1": t.History.MeanLast("gen_L1", 500),
			})
		}
		pb.Finish()

		if t.config.SaveBackups {
			if err := t.saveBackup(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// step performs one training iteration: batch, forward passes, loss
// terms, and two independent gradient applications.
func (t *Trainer) step() error {
	x, y, err := t.sampler.Batch()
	if err != nil {
		return err
	}
	x.ToSigned()
	y.ToSigned()
	if t.config.WarmUp {
		y = x.Clone()
	}

	resG := t.gen.Forward(x)
	resReal := t.dis.Forward(y)
	resFake := t.dis.Forward(resG.Output)

	terms := ComputeTerms(y, resG.Output, resReal, resFake)
	terms.AppendTo(t.History)

	// Generator update. The pass back through the discriminator must
	// not touch the discriminator's own gradients.
	nn.ZeroGrads(t.gen.Params())
	gradFakeForGen, pixelGrad := generatorOutputGrad(y, resG.Output, resReal, resFake)
	dGen := t.dis.Backprop(resFake, gradFakeForGen, false)
	for i, v := range pixelGrad.Data {
		dGen.Data[i] += v
	}
	t.gen.Backprop(resG, dGen)
	t.genOpt.Step(t.gen.Params())

	// Discriminator update, over both passes, on its own optimizer.
	nn.ZeroGrads(t.dis.Params())
	gradReal, gradFake := discriminatorOutputGrads(resReal, resFake)
	t.dis.Backprop(resReal, gradReal, true)
	t.dis.Backprop(resFake, gradFake, true)
	t.disOpt.Step(t.dis.Params())

	return nil
}

// Validate runs the validation engine and appends its metrics to the
// validation history.
func (t *Trainer) Validate() error {
	fmt.Println("\nStart validation")
	metrics, err := Validate(t.gen, t.dis, t.valData, t.config.WindowSize, nil)
	if err != nil {
		return err
	}
	for _, name := range ValidationMetricNames {
		t.ValHistory.Append(name, metrics[name])
		fmt.Printf("%s: %v\n", name, metrics[name])
	}
	fmt.Println("Finished validation")
	return nil
}

// saveBackup persists parameter snapshots in alternating even/odd epoch
// slots so the last two checkpoints survive.
func (t *Trainer) saveBackup(epoch int) error {
	slot := "even"
	if epoch%2 == 1 {
		slot = "odd"
	}
	if err := checkpoints.SaveWeights(fmt.Sprintf("%s_G_%s.wts", t.config.BackupBase, slot), t.gen.Params()); err != nil {
		return fmt.Errorf("saving generator backup: %w", err)
	}
	if err := checkpoints.SaveWeights(fmt.Sprintf("%s_D_%s.wts", t.config.BackupBase, slot), t.dis.Params()); err != nil {
		return fmt.Errorf("saving discriminator backup: %w", err)
	}
	return nil
}
