package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"colmaptools/colmap"
	"colmaptools/imports"
	sph "colmaptools/photogrammetry"
)

func project(c *cli.Context) colmap.Project {
	return colmap.Project{Dir: c.String(flagBaseDir)}
}

func loadModel(c *cli.Context) (*imports.Model, string, error) {
	dir := c.String(flagModelDir)
	if dir == "" {
		dir = project(c).ModelDir()
	}
	model, err := imports.ReadModel(dir, "")
	if err != nil {
		return nil, dir, err
	}
	return model, dir, nil
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// PipelineAction runs the COLMAP reconstruction of a project directory.
func PipelineAction(c *cli.Context) error {
	logger := loggerFrom(c)

	opts := colmap.DefaultOptions()
	if path := c.String(flagConfig); path != "" {
		var err error
		if opts, err = colmap.LoadOptions(path); err != nil {
			return err
		}
	}
	if c.IsSet(flagMatchType) {
		matchType, err := colmap.ParseMatchType(c.String(flagMatchType))
		if err != nil {
			return err
		}
		opts.MatchType = matchType
	}
	if c.IsSet(flagColmapBinary) {
		opts.ColmapBinary = c.String(flagColmapBinary)
	}
	if c.Bool(flagSkipDense) {
		opts.SkipDense = true
	}

	runner := colmap.NewRunner(c.String(flagBaseDir), opts, logger)
	logger.Infow("running COLMAP", "base_dir", runner.Project.Dir, "match_type", opts.MatchType)
	return runner.Run(c.Context)
}

// InspectAction prints what COLMAP stored for a project.
func InspectAction(c *cli.Context) error {
	logger := loggerFrom(c)
	out := c.App.Writer
	p := project(c)

	db, err := imports.OpenDatabase(p.DatabasePath())
	if err != nil {
		logger.Warnw("skipping database", "error", err)
	} else {
		defer db.Close()
		if err := printDatabase(out, db); err != nil {
			return err
		}
	}

	model, dir, err := loadModel(c)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Model %s\n", dir)
	fmt.Fprintf(out, "  cameras: %d\n", len(model.Cameras))
	fmt.Fprintf(out, "  images: %d\n", len(model.Images))
	fmt.Fprintf(out, "  points3D: %d\n", len(model.Points3D))
	fmt.Fprintf(out, "  mean track length: %.3f\n", model.MeanTrackLength())
	fmt.Fprintf(out, "  mean reprojection error: %.3f px\n", model.MeanReprojectionError())
	return nil
}

func printDatabase(out io.Writer, db *imports.Database) error {
	tables, err := db.Tables()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Tables: %s\n", strings.Join(tables, ", "))

	cameras, err := db.Cameras()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAMERA\tMODEL\tSIZE\tPARAMS")
	for _, camera := range cameras {
		size := sph.Size{Width: camera.Width, Height: camera.Height}
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", camera.ID, camera.Model, size, camera.Params)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	names, err := db.ImageNames()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Images (%d):\n", len(names))
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}

	pairs, err := db.TwoViewGeometries()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Two-view geometries (%d):\n", len(pairs))
	for _, pair := range pairs {
		fmt.Fprintf(out, "  %d-%d: %d inliers\n", pair.ImageID1, pair.ImageID2, pair.Inliers)
	}
	return nil
}

// collectPicks gathers picks from --picks then --pick, and fills the displayed size of each
// from --displayed-size or from the file the pick was made on.
func collectPicks(c *cli.Context) ([]Pick, error) {
	var picks []Pick
	if path := c.String(flagPicks); path != "" {
		loaded, err := loadPicks(path)
		if err != nil {
			return nil, err
		}
		picks = append(picks, loaded...)
	}
	if list, ok := c.Generic(flagPick).(*pickList); ok {
		picks = append(picks, list.picks...)
	}

	var displayedSize sph.Size
	if raw := c.String(flagDisplayedSize); raw != "" {
		var err error
		if displayedSize, err = parseSize(raw); err != nil {
			return nil, err
		}
	}
	p := project(c)
	for index := range picks {
		if picks[index].DisplayedSize != (sph.Size{}) {
			continue
		}
		if displayedSize != (sph.Size{}) {
			picks[index].DisplayedSize = displayedSize
			continue
		}
		if index >= PICKS_NEEDED {
			continue
		}
		path, err := p.DisplayedImage(picks[index].Image)
		if err != nil {
			return nil, err
		}
		size, err := imports.ImageSize(path)
		if err != nil {
			return nil, errors.Wrapf(err, "displayed size of %q", picks[index].Image)
		}
		picks[index].DisplayedSize = size
	}
	return picks, nil
}

// TriangulateAction prints the world point of two picked pixels.
func TriangulateAction(c *cli.Context) error {
	picks, err := collectPicks(c)
	if err != nil {
		return err
	}
	model, _, err := loadModel(c)
	if err != nil {
		return err
	}

	result, err := NewApp(model, loggerFrom(c)).Triangulate(picks)
	if err != nil {
		return err
	}
	if c.Bool(flagJSON) {
		return printJSON(c.App.Writer, result)
	}
	return printTriangulation(c.App.Writer, result)
}

func printTriangulation(out io.Writer, result *Triangulation) error {
	fmt.Fprintf(out, "World point: (%.6f, %.6f, %.6f)\n", result.Point.X, result.Point.Y, result.Point.Z)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tCLICKED\tPIXEL\tREPROJECTED\tRESIDUAL")
	for _, obs := range result.Observations {
		reprojected, residual := "-", "-"
		if !obs.Unprojectable {
			reprojected = fmt.Sprintf("(%.2f, %.2f)", obs.Reprojected.X, obs.Reprojected.Y)
		}
		if obs.Residual != nil {
			residual = fmt.Sprintf("%.4f", *obs.Residual)
		}
		fmt.Fprintf(w, "%s\t(%.2f, %.2f)\t(%.2f, %.2f)\t%s\t%s\n",
			obs.Image,
			obs.Clicked.X, obs.Clicked.Y,
			obs.Pixel.X, obs.Pixel.Y,
			reprojected,
			residual)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Reprojection error (sum): %.4f px\n", result.ReprojectionError)
	if result.Condition != nil {
		fmt.Fprintf(out, "Condition number: %.3g\n", *result.Condition)
	} else {
		fmt.Fprintln(out, "Condition number: inf")
	}
	fmt.Fprintf(out, "Triangulation angle: %.2f deg\n", result.TriangulationAngle)
	if result.Degenerate {
		fmt.Fprintln(out, "Warning: degenerate camera configuration, the point is unreliable")
	}
	return nil
}

// ReprojectAction prints the model resolution pixel of a world point in one image.
func ReprojectAction(c *cli.Context) error {
	point, err := parsePoint(c.String(flagPoint))
	if err != nil {
		return err
	}
	model, _, err := loadModel(c)
	if err != nil {
		return err
	}

	result, err := NewApp(model, loggerFrom(c)).Reproject(c.String(flagImage), point)
	if err != nil {
		return err
	}
	if c.Bool(flagJSON) {
		return printJSON(c.App.Writer, result)
	}
	fmt.Fprintf(c.App.Writer, "%s: (%.4f, %.4f)\n", result.Image, result.Pixel.X, result.Pixel.Y)
	return nil
}

// ConvertAction rewrites a model in the other storage format.
func ConvertAction(c *cli.Context) error {
	ext := "." + strings.TrimPrefix(c.String(flagOutputType), ".")
	if ext != imports.BINARY_EXT && ext != imports.TEXT_EXT {
		return errors.Errorf("unknown output type %q, expected bin or txt", c.String(flagOutputType))
	}
	model, err := imports.ReadModel(c.String(flagInput), "")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.String(flagOutput), 0o755); err != nil {
		return err
	}
	if err := imports.WriteModel(model, c.String(flagOutput), ext); err != nil {
		return err
	}
	loggerFrom(c).Infow("model converted",
		"output", c.String(flagOutput),
		"cameras", len(model.Cameras),
		"images", len(model.Images),
		"points3D", len(model.Points3D),
	)
	return nil
}

// DisplayAction writes the downscaled images the picks are made on.
func DisplayAction(c *cli.Context) error {
	p := project(c)
	images, err := imports.ReadChildImages(p.ImagesDir())
	if err != nil {
		return err
	}
	if err := imports.CreateDisplayImages(p.ImagesDir(), p.DisplayDir(), images, c.Int(flagMaxSize)); err != nil {
		return err
	}
	loggerFrom(c).Infow("display images created", "dir", p.DisplayDir(), "count", len(images))
	return nil
}
