package imports

import (
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/num/quat"
)

type CameraID int32

type ImageID int32

// CameraModel describes a COLMAP camera model and the number of parameters it stores.
type CameraModel struct {
	ID        int32
	Name      string
	NumParams int
}

var CAMERA_MODELS = []CameraModel{
	{0, "SIMPLE_PINHOLE", 3},
	{1, "PINHOLE", 4},
	{2, "SIMPLE_RADIAL", 4},
	{3, "RADIAL", 5},
	{4, "OPENCV", 8},
	{5, "OPENCV_FISHEYE", 8},
	{6, "FULL_OPENCV", 12},
	{7, "FOV", 5},
	{8, "SIMPLE_RADIAL_FISHEYE", 4},
	{9, "RADIAL_FISHEYE", 5},
	{10, "THIN_PRISM_FISHEYE", 12},
}

func cameraModelByID(id int32) (CameraModel, error) {
	for _, model := range CAMERA_MODELS {
		if model.ID == id {
			return model, nil
		}
	}
	return CameraModel{}, errors.Wrapf(ErrUnknownCameraModel, "model id %d", id)
}

func cameraModelByName(name string) (CameraModel, error) {
	for _, model := range CAMERA_MODELS {
		if model.Name == name {
			return model, nil
		}
	}
	return CameraModel{}, errors.Wrapf(ErrUnknownCameraModel, "model %q", name)
}

type Camera struct {
	ID     CameraID
	Model  string
	Width  int
	Height int
	Params []float64
}

type Image struct {
	ID       ImageID
	Qvec     quat.Number
	Tvec     r3.Vector
	CameraID CameraID
	Name     string
	Points2D []r2.Point
	// Point3DIDs is parallel to Points2D, -1 marks an untriangulated observation.
	Point3DIDs []int64
}

type TrackElement struct {
	ImageID    ImageID
	Point2DIdx int32
}

type Point3D struct {
	ID    int64
	XYZ   r3.Vector
	RGB   [3]uint8
	Error float64
	Track []TrackElement
}

// Model is a COLMAP reconstruction loaded in memory.
type Model struct {
	Cameras  map[CameraID]Camera
	Images   map[ImageID]Image
	Points3D map[int64]Point3D
}

const (
	BINARY_EXT = ".bin"
	TEXT_EXT   = ".txt"
)

// DetectModelExt returns ".bin" when dir holds cameras.bin and ".txt" when it holds cameras.txt.
func DetectModelExt(dir string) (string, error) {
	for _, ext := range []string{BINARY_EXT, TEXT_EXT} {
		ok, err := exists(filepath.Join(dir, "cameras"+ext))
		if err != nil {
			return "", err
		}
		if ok {
			return ext, nil
		}
	}
	return "", errors.Errorf("no COLMAP model found in %s", dir)
}

// ReadModel loads cameras, images and points3D from dir. An empty ext is detected from the files present.
func ReadModel(dir string, ext string) (*Model, error) {
	if ext == "" {
		var err error
		if ext, err = DetectModelExt(dir); err != nil {
			return nil, err
		}
	}
	if ext != BINARY_EXT && ext != TEXT_EXT {
		return nil, errors.Errorf("unknown model extension %q", ext)
	}

	model := &Model{}
	var group errgroup.Group
	group.Go(func() error {
		var err error
		path := filepath.Join(dir, "cameras"+ext)
		if ext == BINARY_EXT {
			model.Cameras, err = ReadCamerasBinary(path)
		} else {
			model.Cameras, err = ReadCamerasText(path)
		}
		return errors.Wrapf(err, "reading %s", path)
	})
	group.Go(func() error {
		var err error
		path := filepath.Join(dir, "images"+ext)
		if ext == BINARY_EXT {
			model.Images, err = ReadImagesBinary(path)
		} else {
			model.Images, err = ReadImagesText(path)
		}
		return errors.Wrapf(err, "reading %s", path)
	})
	group.Go(func() error {
		var err error
		path := filepath.Join(dir, "points3D"+ext)
		if ext == BINARY_EXT {
			model.Points3D, err = ReadPoints3DBinary(path)
		} else {
			model.Points3D, err = ReadPoints3DText(path)
		}
		return errors.Wrapf(err, "reading %s", path)
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return model, nil
}

// WriteModel stores the model in dir using the ".bin" or ".txt" layout.
func WriteModel(model *Model, dir string, ext string) error {
	switch ext {
	case BINARY_EXT:
		if err := WriteCamerasBinary(model.Cameras, filepath.Join(dir, "cameras.bin")); err != nil {
			return err
		}
		if err := WriteImagesBinary(model.Images, filepath.Join(dir, "images.bin")); err != nil {
			return err
		}
		return WritePoints3DBinary(model.Points3D, filepath.Join(dir, "points3D.bin"))
	case TEXT_EXT:
		if err := WriteCamerasText(model.Cameras, filepath.Join(dir, "cameras.txt")); err != nil {
			return err
		}
		if err := WriteImagesText(model.Images, filepath.Join(dir, "images.txt")); err != nil {
			return err
		}
		return WritePoints3DText(model.Points3D, filepath.Join(dir, "points3D.txt"))
	default:
		return errors.Errorf("unknown model extension %q", ext)
	}
}

// MeanTrackLength and MeanReprojectionError summarize the sparse point cloud.
func (m *Model) MeanTrackLength() float64 {
	if len(m.Points3D) == 0 {
		return 0
	}
	total := 0
	for _, point := range m.Points3D {
		total += len(point.Track)
	}
	return float64(total) / float64(len(m.Points3D))
}

func (m *Model) MeanReprojectionError() float64 {
	if len(m.Points3D) == 0 {
		return 0
	}
	total := 0.0
	for _, point := range m.Points3D {
		total += point.Error
	}
	return total / float64(len(m.Points3D))
}
