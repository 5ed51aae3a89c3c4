package main

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"colmaptools/imports"
	sph "colmaptools/photogrammetry"
)

// PICKS_NEEDED is the number of observations a triangulation consumes.
const PICKS_NEEDED = 2

var ErrNotEnoughPicks = errors.New("not enough picks")

// App answers triangulation and reprojection queries against one reconstruction.
type App struct {
	model        imports.ModelAccessor
	builder      sph.ProjectionBuilder
	triangulator *sph.Triangulator
	evaluator    sph.ReprojectionEvaluator

	logger *zap.SugaredLogger
}

// NewApp creates a new App on top of a model.
func NewApp(model imports.ModelAccessor, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		model:        model,
		triangulator: sph.NewTriangulator(logger),
		logger:       logger,
	}
}

type camera struct {
	projMat mat.Matrix
	center  r3.Vector
}

func (a *App) camera(imageID imports.ImageID) (camera, error) {
	cameraID, err := a.model.ImageCamera(imageID)
	if err != nil {
		return camera{}, err
	}
	intrinsics, err := a.model.CameraIntrinsics(cameraID)
	if err != nil {
		return camera{}, err
	}
	pose, err := a.model.ImagePose(imageID)
	if err != nil {
		return camera{}, err
	}
	return camera{projMat: a.builder.Build(intrinsics, pose), center: pose.Center()}, nil
}

// Triangulate computes the world point seen by the first two picks.
// Further picks are ignored, as the picker stops once two points are recorded.
func (a *App) Triangulate(picks []Pick) (*Triangulation, error) {
	if len(picks) < PICKS_NEEDED {
		return nil, errors.Wrapf(ErrNotEnoughPicks, "got %d, need %d", len(picks), PICKS_NEEDED)
	}
	if len(picks) > PICKS_NEEDED {
		a.logger.Warnw("ignoring extra picks", "count", len(picks), "used", PICKS_NEEDED)
		picks = picks[:PICKS_NEEDED]
	}

	names := make([]string, len(picks))
	for index, pick := range picks {
		names[index] = pick.Image
	}
	imageIDs, err := a.model.ResolveImageIDs(names)
	if err != nil {
		return nil, err
	}

	projMats := make([]mat.Matrix, len(picks))
	centers := make([]r3.Vector, len(picks))
	pixels := make([]r2.Point, len(picks))
	for index, pick := range picks {
		cam, err := a.camera(imageIDs[index])
		if err != nil {
			return nil, errors.Wrapf(err, "image %q", pick.Image)
		}
		projMats[index] = cam.projMat
		centers[index] = cam.center

		pixels[index] = pick.Pixel()
		if pick.DisplayedSize != (sph.Size{}) {
			pixels[index], err = a.model.RescalePixel(imageIDs[index], pick.Pixel(), pick.DisplayedSize)
			if err != nil {
				return nil, errors.Wrapf(err, "image %q", pick.Image)
			}
		}
		a.logger.Debugw("rescaled pick",
			"image", pick.Image,
			"clicked", pick.Pixel(),
			"displayed_size", pick.DisplayedSize.String(),
			"pixel", pixels[index],
		)
	}

	point, err := a.triangulator.Triangulate(projMats[0], projMats[1], pixels[0], pixels[1])
	if err != nil {
		return nil, err
	}
	condition, err := a.triangulator.Condition(projMats[0], projMats[1], pixels[0], pixels[1])
	if err != nil {
		return nil, err
	}

	result := &Triangulation{
		Point:              newWorldPoint(point),
		Observations:       make([]Observation, len(picks)),
		TriangulationAngle: sph.TriangulationAngle(centers[0], centers[1], point),
		Degenerate:         a.triangulator.IsDegenerate(condition),
	}
	if !math.IsInf(condition, 0) {
		result.Condition = &condition
	}

	// A point at zero depth in a camera has no pixel there. That observation is reported
	// as unprojectable and left out of the reprojection error.
	var projectable []int
	for index, pick := range picks {
		observation := Observation{
			Image:   pick.Image,
			ImageID: int32(imageIDs[index]),
			Clicked: newPos(pick.Pixel()),
			Pixel:   newPos(pixels[index]),
		}
		reprojected, err := a.evaluator.Reproject(projMats[index], point)
		switch {
		case errors.Is(err, sph.ErrZeroDepth):
			observation.Unprojectable = true
			a.logger.Warnw("point is at zero depth", "image", pick.Image, "point", point)
		case err != nil:
			return nil, errors.Wrapf(err, "image %q", pick.Image)
		default:
			observation.Reprojected = newPos(reprojected)
			projectable = append(projectable, index)
		}
		result.Observations[index] = observation
	}

	evalMats := make([]mat.Matrix, len(projectable))
	evalPixels := make([]r2.Point, len(projectable))
	for i, index := range projectable {
		evalMats[i] = projMats[index]
		evalPixels[i] = pixels[index]
	}
	residuals, err := a.evaluator.Residuals(evalMats, point, evalPixels)
	if err != nil {
		return nil, errors.Wrap(err, "reprojection error")
	}
	for i, index := range projectable {
		residual := residuals[i]
		result.Observations[index].Residual = &residual
	}
	if result.ReprojectionError, err = a.evaluator.Evaluate(evalMats, point, evalPixels); err != nil {
		return nil, errors.Wrap(err, "reprojection error")
	}

	a.logger.Debugw("triangulated point",
		"point", point,
		"reprojection_error", result.ReprojectionError,
		"condition", condition,
		"triangulation_angle", result.TriangulationAngle,
	)
	return result, nil
}

// Reproject projects a world point into a named image, at model resolution.
func (a *App) Reproject(imageName string, point r3.Vector) (*Reprojection, error) {
	imageIDs, err := a.model.ResolveImageIDs([]string{imageName})
	if err != nil {
		return nil, err
	}
	cam, err := a.camera(imageIDs[0])
	if err != nil {
		return nil, errors.Wrapf(err, "image %q", imageName)
	}
	pixel, err := a.evaluator.Reproject(cam.projMat, point)
	if err != nil {
		return nil, errors.Wrapf(err, "image %q", imageName)
	}
	return &Reprojection{Image: imageName, Pixel: newPos(pixel)}, nil
}
