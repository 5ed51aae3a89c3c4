package imports

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"colmaptools/photogrammetry"
)

var (
	ErrImageNotFound      = errors.New("image not found in model")
	ErrCameraNotFound     = errors.New("camera not found in model")
	ErrUnknownCameraModel = errors.New("unknown COLMAP camera model")
)

// ModelAccessor is the read side of a reconstruction needed to triangulate picked pixels.
// Any model reader that can answer these queries can back the triangulation.
type ModelAccessor interface {
	CameraIntrinsics(cameraID CameraID) (photogrammetry.Intrinsics, error)
	ImagePose(imageID ImageID) (photogrammetry.Pose, error)
	ImageCamera(imageID ImageID) (CameraID, error)
	CameraResolution(cameraID CameraID) (photogrammetry.Size, error)
	// ResolveImageIDs returns one id per name, in the order of names.
	ResolveImageIDs(names []string) ([]ImageID, error)
	// RescalePixel maps a pixel of a displayed image of the given size to the model resolution.
	RescalePixel(imageID ImageID, displayed r2.Point, displayedSize photogrammetry.Size) (r2.Point, error)
}

var _ ModelAccessor = (*Model)(nil)

func (m *Model) camera(cameraID CameraID) (Camera, error) {
	camera, ok := m.Cameras[cameraID]
	if !ok {
		return Camera{}, errors.Wrapf(ErrCameraNotFound, "camera %d", cameraID)
	}
	return camera, nil
}

func (m *Model) image(imageID ImageID) (Image, error) {
	image, ok := m.Images[imageID]
	if !ok {
		return Image{}, errors.Wrapf(ErrImageNotFound, "image %d", imageID)
	}
	return image, nil
}

func (m *Model) CameraIntrinsics(cameraID CameraID) (photogrammetry.Intrinsics, error) {
	camera, err := m.camera(cameraID)
	if err != nil {
		return photogrammetry.Intrinsics{}, err
	}
	intrinsics, err := photogrammetry.IntrinsicsFromParams(camera.Params)
	if err != nil {
		return photogrammetry.Intrinsics{}, errors.Wrapf(err, "camera %d (%s)", cameraID, camera.Model)
	}
	return intrinsics, intrinsics.CheckValid()
}

func (m *Model) ImagePose(imageID ImageID) (photogrammetry.Pose, error) {
	image, err := m.image(imageID)
	if err != nil {
		return photogrammetry.Pose{}, err
	}
	return photogrammetry.PoseFromQuaternion(image.Qvec, image.Tvec), nil
}

func (m *Model) ImageCamera(imageID ImageID) (CameraID, error) {
	image, err := m.image(imageID)
	if err != nil {
		return 0, err
	}
	return image.CameraID, nil
}

func (m *Model) CameraResolution(cameraID CameraID) (photogrammetry.Size, error) {
	camera, err := m.camera(cameraID)
	if err != nil {
		return photogrammetry.Size{}, err
	}
	return photogrammetry.Size{Width: camera.Width, Height: camera.Height}, nil
}

func (m *Model) ResolveImageIDs(names []string) ([]ImageID, error) {
	byName := make(map[string]ImageID, len(m.Images))
	for id, image := range m.Images {
		byName[image.Name] = id
	}
	ids := make([]ImageID, len(names))
	for index, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, errors.Wrapf(ErrImageNotFound, "%q", name)
		}
		ids[index] = id
	}
	return ids, nil
}

func (m *Model) RescalePixel(imageID ImageID, displayed r2.Point, displayedSize photogrammetry.Size) (r2.Point, error) {
	if displayedSize.Width <= 0 || displayedSize.Height <= 0 {
		return r2.Point{}, errors.Errorf("invalid displayed image size %s", displayedSize)
	}
	cameraID, err := m.ImageCamera(imageID)
	if err != nil {
		return r2.Point{}, err
	}
	modelSize, err := m.CameraResolution(cameraID)
	if err != nil {
		return r2.Point{}, err
	}
	return photogrammetry.RescalePixel(displayed, displayedSize, modelSize), nil
}
