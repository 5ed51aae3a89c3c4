package colmap

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrStepFailed = errors.New("colmap step failed")

// Step is one COLMAP invocation. Dirs are created before it runs.
type Step struct {
	Name    string
	Args    []string
	Dirs    []string
	Message string
}

// Runner executes the reconstruction steps in order for one project directory.
type Runner struct {
	Project Project
	Options Options
	Builder CommandBuilder

	logger *zap.SugaredLogger
}

func NewRunner(baseDir string, opts Options, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{
		Project: Project{Dir: baseDir},
		Options: opts,
		Builder: NewRealCommandBuilder(),
		logger:  logger,
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Steps lists the COLMAP invocations, from feature extraction to meshing.
func (r *Runner) Steps() []Step {
	p := r.Project
	o := r.Options

	featureArgs := []string{
		"feature_extractor",
		"--database_path", p.DatabasePath(),
		"--image_path", p.ImagesDir(),
	}
	if o.SingleCamera {
		featureArgs = append(featureArgs, "--ImageReader.single_camera", "1")
	}
	if !o.UseGPU {
		featureArgs = append(featureArgs, "--SiftExtraction.use_gpu", "0")
	}

	matcherArgs := []string{
		o.MatchType.Command(),
		"--database_path", p.DatabasePath(),
	}
	if o.MatchType == VocabTree && o.VocabTreePath != "" {
		matcherArgs = append(matcherArgs, "--VocabTreeMatching.vocab_tree_path", o.VocabTreePath)
	}
	if !o.UseGPU {
		matcherArgs = append(matcherArgs, "--SiftMatching.use_gpu", "0")
	}

	steps := []Step{
		{Name: "feature_extractor", Args: featureArgs, Message: "Features extracted"},
		{Name: o.MatchType.Command(), Args: matcherArgs, Message: "Features matched"},
		{
			Name: "mapper",
			Args: []string{
				"mapper",
				"--database_path", p.DatabasePath(),
				"--image_path", p.ImagesDir(),
				"--output_path", p.SparseDir(),
				"--Mapper.num_threads", strconv.Itoa(o.MapperThreads),
				"--Mapper.init_min_tri_angle", strconv.FormatFloat(o.InitMinTriAngle, 'g', -1, 64),
				"--Mapper.multiple_models", boolFlag(o.MultipleModels),
				"--Mapper.extract_colors", boolFlag(o.ExtractColors),
			},
			Dirs:    []string{p.SparseDir()},
			Message: "Sparse map created",
		},
	}
	if o.SkipDense {
		return steps
	}

	steps = append(steps,
		Step{
			Name: "image_undistorter",
			Args: []string{
				"image_undistorter",
				"--image_path", p.ImagesDir(),
				"--input_path", p.SparseModelDir(),
				"--output_path", p.DenseDir(),
				"--output_type", "COLMAP",
				"--max_image_size", strconv.Itoa(o.MaxImageSize),
			},
			Dirs:    []string{p.DenseDir()},
			Message: "Images undistorted",
		},
		Step{
			Name: "patch_match_stereo",
			Args: []string{
				"patch_match_stereo",
				"--workspace_path", p.DenseDir(),
				"--workspace_format", "COLMAP",
				"--PatchMatchStereo.geom_consistency", strconv.FormatBool(o.GeomConsistency),
			},
			Message: "Patch match stereo done",
		},
		Step{
			Name: "stereo_fusion",
			Args: []string{
				"stereo_fusion",
				"--workspace_path", p.DenseDir(),
				"--workspace_format", "COLMAP",
				"--input_type", "geometric",
				"--output_path", p.FusedPath(),
			},
			Message: "Images fused",
		},
	)

	for _, mesher := range o.Meshers {
		switch mesher {
		case MESHER_POISSON:
			steps = append(steps, Step{
				Name: "poisson_mesher",
				Args: []string{
					"poisson_mesher",
					"--input_path", p.FusedPath(),
					"--output_path", p.PoissonMeshPath(),
				},
				Message: "Poisson mesh created",
			})
		case MESHER_DELAUNAY:
			steps = append(steps, Step{
				Name: "delaunay_mesher",
				Args: []string{
					"delaunay_mesher",
					"--input_path", p.DenseDir(),
					"--output_path", p.DelaunayMeshPath(),
				},
				Message: "Delaunay mesh created",
			})
		}
	}
	return steps
}

// Run executes every step and appends its output to the project log file.
// It stops at the first failing step.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Options.Validate(); err != nil {
		return err
	}
	logger := r.logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	logPath := r.Project.LogPath()
	logfile, err := os.Create(logPath)
	if err != nil {
		return errors.Wrap(err, "creating log file")
	}
	defer logfile.Close()

	for _, step := range r.Steps() {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, dir := range step.Dirs {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrapf(err, "creating %s", dir)
			}
		}

		logger.Debugw("running colmap step", "step", step.Name, "args", strings.Join(step.Args, " "))
		output, runErr := r.Builder.BuildCommand(ctx, r.Options.ColmapBinary, step.Args...).Run()
		if _, err := logfile.Write(output); err != nil {
			return errors.Wrap(err, "writing log file")
		}
		if runErr != nil {
			return errors.Wrapf(ErrStepFailed, "%s: %v (see %s)", step.Name, runErr, logPath)
		}
		logger.Info(step.Message)
	}

	logger.Infof("Finished running COLMAP, see %s for logs", logPath)
	return nil
}
