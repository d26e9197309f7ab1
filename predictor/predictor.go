package predictor

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lightning_backend/diffusion"
	"lightning_backend/logging"
	"lightning_backend/safety"
	"lightning_backend/weights"
)

// pipeline is the slice of the diffusion stage Predict depends on. The
// concrete implementation is *diffusion.Pipeline; tests substitute fakes.
type pipeline interface {
	Scheduler() diffusion.Scheduler
	SetScheduler(diffusion.Scheduler) error
	Generate(context.Context, diffusion.Params) ([]diffusion.Image, error)
	Close() error
}

// checker is the slice of the safety stage Predict depends on.
type checker interface {
	Check(context.Context, []image.Image) ([]bool, error)
	Close() error
}

// Output is one surviving image of a prediction. Index preserves the
// position the image held in the generated batch, so a filtered batch shows
// gaps rather than renumbering.
type Output struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
}

// Result is the outcome of one successful prediction.
type Result struct {
	ID            string        `json:"id"`
	Outputs       []Output      `json:"outputs"`
	Seed          int64         `json:"seed"`
	Scheduler     string        `json:"scheduler"`
	FilteredCount int           `json:"filtered_count"`
	Duration      time.Duration `json:"duration"`
}

// Record is what gets persisted about a finished prediction.
type Record struct {
	ID            string
	Prompt        string
	Scheduler     string
	Seed          int64
	Width         int
	Height        int
	NumOutputs    int
	Steps         int
	Guidance      float64
	OutputCount   int
	FilteredCount int
	DurationMS    int64
	CreatedAt     time.Time
}

// Recorder persists prediction records. Failures are logged and swallowed;
// history must never fail a prediction.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Predictor owns the full prediction lifecycle. Setup runs once per process;
// Predict serves one request at a time for the life of the instance.
type Predictor struct {
	mu     sync.Mutex
	logger *logging.Logger

	fetcher      *weights.Fetcher
	outputRoot   string
	extractorDir string
	recorder     Recorder

	loadPipeline func(diffusion.PipelineSpec) (pipeline, error)
	loadChecker  func(weightsDir, extractorDir string) (checker, error)

	pipeline pipeline
	checker  checker
	ready    bool
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithOutputRoot sets the directory prediction outputs are written under.
func WithOutputRoot(dir string) Option {
	return func(p *Predictor) {
		if dir != "" {
			p.outputRoot = dir
		}
	}
}

// WithExtractorDir overrides the feature extractor directory. Defaults to
// the repository-local one.
func WithExtractorDir(dir string) Option {
	return func(p *Predictor) {
		if dir != "" {
			p.extractorDir = dir
		}
	}
}

// WithRecorder attaches a prediction history sink.
func WithRecorder(r Recorder) Option {
	return func(p *Predictor) {
		p.recorder = r
	}
}

// withPipelineLoader overrides pipeline construction. Test hook.
func withPipelineLoader(load func(diffusion.PipelineSpec) (pipeline, error)) Option {
	return func(p *Predictor) {
		p.loadPipeline = load
	}
}

// withCheckerLoader overrides checker construction. Test hook.
func withCheckerLoader(load func(weightsDir, extractorDir string) (checker, error)) Option {
	return func(p *Predictor) {
		p.loadChecker = load
	}
}

// New creates a Predictor. Setup must run before the first Predict.
func New(logger *logging.Logger, fetcher *weights.Fetcher, opts ...Option) (*Predictor, error) {
	if logger == nil {
		return nil, fmt.Errorf("predictor: logger cannot be nil")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("predictor: fetcher cannot be nil")
	}

	p := &Predictor{
		logger:       logger.Named("predictor"),
		fetcher:      fetcher,
		outputRoot:   os.TempDir(),
		extractorDir: weights.FeatureExtractorDir,
		loadPipeline: func(spec diffusion.PipelineSpec) (pipeline, error) {
			return diffusion.LoadPipeline(spec)
		},
		loadChecker: func(weightsDir, extractorDir string) (checker, error) {
			return safety.LoadChecker(weightsDir, extractorDir)
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Setup provisions weights and loads the pipeline and checker into memory.
// It runs exactly once; any failure is unrecoverable for this instance and
// the process should be replaced.
func (p *Predictor) Setup(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return ErrAlreadySetup
	}

	start := time.Now()

	// Accelerated hub transfer applies to every download this process makes.
	if err := os.Setenv("HF_HUB_ENABLE_HF_TRANSFER", "1"); err != nil {
		return fmt.Errorf("predictor: failed to set transfer env: %w", err)
	}

	if err := p.fetcher.EnsureAll(ctx, weights.All()); err != nil {
		return fmt.Errorf("predictor: weight provisioning failed: %w", err)
	}

	chk, err := p.loadChecker(
		p.fetcher.Path(weights.SafetyArtifact()),
		p.extractorDir,
	)
	if err != nil {
		return fmt.Errorf("predictor: safety checker load failed: %w", err)
	}

	pipe, err := p.loadPipeline(diffusion.PipelineSpec{
		BaseDir:  p.fetcher.Path(weights.BaseArtifact()),
		UNetPath: filepath.Join(p.fetcher.Path(weights.UNetArtifact()), weights.UNetFileName),
	})
	if err != nil {
		chk.Close()
		return fmt.Errorf("predictor: pipeline load failed: %w", err)
	}

	p.checker = chk
	p.pipeline = pipe
	p.ready = true

	p.logger.Info("setup complete",
		zap.Duration("took", time.Since(start)),
		zap.String("backend", diffusion.BackendInfo()))
	return nil
}

// Predict serves one request end to end: defaults, validation, seed
// resolution, scheduler swap, generation, safety screening, and output
// persistence. Exactly one Predict runs at a time; concurrent callers queue
// on the instance mutex.
func (p *Predictor) Predict(ctx context.Context, req Request) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return nil, ErrNotSetup
	}

	id := uuid.NewString()
	log := p.logger.With(zap.String("prediction_id", id))

	req.ApplyDefaults()
	params, err := req.toParams()
	if err != nil {
		return nil, err
	}

	seed, random, err := diffusion.ResolveSeed(params.Seed)
	if err != nil {
		return nil, err
	}
	params.Seed = seed
	if random {
		log.Info("using random seed", zap.Int64("seed", seed))
	} else {
		log.Info("using seed", zap.Int64("seed", seed))
	}

	if err := diffusion.ValidateParams(params); err != nil {
		return nil, err
	}

	if err := p.pipeline.SetScheduler(params.Scheduler); err != nil {
		return nil, err
	}

	start := time.Now()
	log.Info("generating",
		zap.String("prompt", params.Prompt),
		zap.String("scheduler", params.Scheduler.String()),
		zap.Int("num_outputs", params.NumOutputs),
		zap.Int("steps", params.Steps))

	images, err := p.pipeline.Generate(ctx, params)
	if err != nil {
		return nil, err
	}

	flagged, err := p.screen(ctx, req, images, log)
	if err != nil {
		return nil, err
	}

	result, err := p.persistOutputs(id, images, flagged, log)
	if err != nil {
		return nil, err
	}

	result.Seed = seed
	result.Scheduler = params.Scheduler.String()
	result.Duration = time.Since(start)

	log.Info("prediction complete",
		zap.Int("outputs", len(result.Outputs)),
		zap.Int("filtered", result.FilteredCount),
		zap.Duration("took", result.Duration))

	p.record(ctx, params, result, log)
	return result, nil
}

// screen runs the safety checker over a batch unless the request disabled
// it. A checker fault is a prediction failure, never an all-clear.
func (p *Predictor) screen(ctx context.Context, req Request, images []diffusion.Image, log *logging.Logger) ([]bool, error) {
	if req.DisableSafetyChecker {
		log.Warn("safety checker disabled for this prediction")
		return make([]bool, len(images)), nil
	}

	frames := make([]image.Image, len(images))
	for i := range images {
		frame, err := images[i].ToNRGBA()
		if err != nil {
			return nil, err
		}
		frames[i] = frame
	}

	flagged, err := p.checker.Check(ctx, frames)
	if err != nil {
		return nil, fmt.Errorf("predictor: safety check failed: %w", err)
	}
	return flagged, nil
}

// persistOutputs writes surviving images as out-<index>.png under a
// per-prediction directory. Indices are batch positions, so filtered
// predictions produce gaps, never renumbering.
func (p *Predictor) persistOutputs(id string, images []diffusion.Image, flagged []bool, log *logging.Logger) (*Result, error) {
	outDir := filepath.Join(p.outputRoot, id)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("predictor: failed to create output dir: %w", err)
	}

	result := &Result{ID: id}
	for i := range images {
		if flagged[i] {
			result.FilteredCount++
			log.Warn("output flagged by safety checker", zap.Int("index", i))
			continue
		}

		data, err := images[i].EncodePNG()
		if err != nil {
			return nil, err
		}

		path := filepath.Join(outDir, fmt.Sprintf("out-%d.png", i))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("predictor: failed to write output %d: %w", i, err)
		}
		result.Outputs = append(result.Outputs, Output{Index: i, Path: path})
	}

	if len(result.Outputs) == 0 {
		return nil, ErrAllOutputsFiltered
	}
	return result, nil
}

// record persists the prediction to history when a recorder is attached.
func (p *Predictor) record(ctx context.Context, params diffusion.Params, result *Result, log *logging.Logger) {
	if p.recorder == nil {
		return
	}

	rec := Record{
		ID:            result.ID,
		Prompt:        params.Prompt,
		Scheduler:     result.Scheduler,
		Seed:          result.Seed,
		Width:         params.Width,
		Height:        params.Height,
		NumOutputs:    params.NumOutputs,
		Steps:         params.Steps,
		Guidance:      params.GuidanceScale,
		OutputCount:   len(result.Outputs),
		FilteredCount: result.FilteredCount,
		DurationMS:    result.Duration.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.recorder.Record(ctx, rec); err != nil {
		log.Warn("failed to record prediction history", zap.Error(err))
	}
}

// Ready reports whether Setup has completed.
func (p *Predictor) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Close releases the pipeline and checker. The predictor cannot be reused
// afterwards.
func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pipeline != nil {
		p.pipeline.Close()
		p.pipeline = nil
	}
	if p.checker != nil {
		p.checker.Close()
		p.checker = nil
	}
	p.ready = false
	return nil
}
