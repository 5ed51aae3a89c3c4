package imports

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// COLMAP binary models are little endian with fixed width records.
var byteOrder = binary.LittleEndian

var ErrCorruptModel = errors.New("corrupt COLMAP binary model")

type cameraRecord struct {
	CameraID int32
	ModelID  int32
	Width    uint64
	Height   uint64
}

type imageRecord struct {
	ImageID  int32
	Qvec     [4]float64
	Tvec     [3]float64
	CameraID int32
}

type point2DRecord struct {
	X         float64
	Y         float64
	Point3DID int64
}

type point3DRecord struct {
	ID    uint64
	XYZ   [3]float64
	RGB   [3]uint8
	Error float64
}

type trackRecord struct {
	ImageID    int32
	Point2DIdx int32
}

// binaryFile reads one model file. Size bounds every count read from it.
type binaryFile struct {
	*os.File
	r    *bufio.Reader
	size int64
}

func openBinary(path string) (*binaryFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &binaryFile{File: f, r: bufio.NewReader(f), size: info.Size()}, nil
}

// checkCount rejects a count of records of at least recordSize bytes that cannot fit in the file.
func (f *binaryFile) checkCount(count uint64, recordSize int, what string) error {
	if count > uint64(f.size)/uint64(recordSize) {
		return errors.Wrapf(ErrCorruptModel, "%s: %d %s do not fit in %d bytes", f.Name(), count, what, f.size)
	}
	return nil
}

func ReadCamerasBinary(path string) (map[CameraID]Camera, error) {
	f, err := openBinary(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := f.r

	var numCameras uint64
	if err := binary.Read(r, byteOrder, &numCameras); err != nil {
		return nil, errors.Wrap(err, "reading camera count")
	}
	if err := f.checkCount(numCameras, binary.Size(cameraRecord{}), "cameras"); err != nil {
		return nil, err
	}

	cameras := make(map[CameraID]Camera, numCameras)
	for i := uint64(0); i < numCameras; i++ {
		var record cameraRecord
		if err := binary.Read(r, byteOrder, &record); err != nil {
			return nil, errors.Wrap(err, "reading camera")
		}
		model, err := cameraModelByID(record.ModelID)
		if err != nil {
			return nil, err
		}
		params := make([]float64, model.NumParams)
		if err := binary.Read(r, byteOrder, params); err != nil {
			return nil, errors.Wrapf(err, "reading params of camera %d", record.CameraID)
		}
		cameras[CameraID(record.CameraID)] = Camera{
			ID:     CameraID(record.CameraID),
			Model:  model.Name,
			Width:  int(record.Width),
			Height: int(record.Height),
			Params: params,
		}
	}
	return cameras, nil
}

func readNullTerminated(r *bufio.Reader) (string, error) {
	name, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return name[:len(name)-1], nil
}

func ReadImagesBinary(path string) (map[ImageID]Image, error) {
	f, err := openBinary(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := f.r

	var numImages uint64
	if err := binary.Read(r, byteOrder, &numImages); err != nil {
		return nil, errors.Wrap(err, "reading image count")
	}
	if err := f.checkCount(numImages, binary.Size(imageRecord{}), "images"); err != nil {
		return nil, err
	}

	images := make(map[ImageID]Image, numImages)
	for i := uint64(0); i < numImages; i++ {
		var record imageRecord
		if err := binary.Read(r, byteOrder, &record); err != nil {
			return nil, errors.Wrap(err, "reading image")
		}
		name, err := readNullTerminated(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading name of image %d", record.ImageID)
		}
		var numPoints2D uint64
		if err := binary.Read(r, byteOrder, &numPoints2D); err != nil {
			return nil, errors.Wrapf(err, "reading point count of image %d", record.ImageID)
		}
		if err := f.checkCount(numPoints2D, binary.Size(point2DRecord{}), "points2D"); err != nil {
			return nil, errors.Wrapf(err, "image %d", record.ImageID)
		}
		points := make([]point2DRecord, numPoints2D)
		if err := binary.Read(r, byteOrder, points); err != nil {
			return nil, errors.Wrapf(err, "reading points of image %d", record.ImageID)
		}

		image := Image{
			ID:         ImageID(record.ImageID),
			Qvec:       quat.Number{Real: record.Qvec[0], Imag: record.Qvec[1], Jmag: record.Qvec[2], Kmag: record.Qvec[3]},
			Tvec:       r3.Vector{X: record.Tvec[0], Y: record.Tvec[1], Z: record.Tvec[2]},
			CameraID:   CameraID(record.CameraID),
			Name:       name,
			Points2D:   make([]r2.Point, len(points)),
			Point3DIDs: make([]int64, len(points)),
		}
		for index, point := range points {
			image.Points2D[index] = r2.Point{X: point.X, Y: point.Y}
			image.Point3DIDs[index] = point.Point3DID
		}
		images[image.ID] = image
	}
	return images, nil
}

func ReadPoints3DBinary(path string) (map[int64]Point3D, error) {
	f, err := openBinary(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := f.r

	var numPoints uint64
	if err := binary.Read(r, byteOrder, &numPoints); err != nil {
		return nil, errors.Wrap(err, "reading point count")
	}
	if err := f.checkCount(numPoints, binary.Size(point3DRecord{}), "points3D"); err != nil {
		return nil, err
	}

	points := make(map[int64]Point3D, numPoints)
	for i := uint64(0); i < numPoints; i++ {
		var record point3DRecord
		if err := binary.Read(r, byteOrder, &record); err != nil {
			return nil, errors.Wrap(err, "reading point")
		}
		var trackLength uint64
		if err := binary.Read(r, byteOrder, &trackLength); err != nil {
			return nil, errors.Wrapf(err, "reading track length of point %d", record.ID)
		}
		if err := f.checkCount(trackLength, binary.Size(trackRecord{}), "track elements"); err != nil {
			return nil, errors.Wrapf(err, "point %d", record.ID)
		}
		track := make([]trackRecord, trackLength)
		if err := binary.Read(r, byteOrder, track); err != nil {
			return nil, errors.Wrapf(err, "reading track of point %d", record.ID)
		}

		point := Point3D{
			ID:    int64(record.ID),
			XYZ:   r3.Vector{X: record.XYZ[0], Y: record.XYZ[1], Z: record.XYZ[2]},
			RGB:   record.RGB,
			Error: record.Error,
			Track: make([]TrackElement, len(track)),
		}
		for index, element := range track {
			point.Track[index] = TrackElement{ImageID: ImageID(element.ImageID), Point2DIdx: element.Point2DIdx}
		}
		points[point.ID] = point
	}
	return points, nil
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sortedCameraIDs(cameras map[CameraID]Camera) []CameraID {
	ids := make([]CameraID, 0, len(cameras))
	for id := range cameras {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedImageIDs(images map[ImageID]Image) []ImageID {
	ids := make([]ImageID, 0, len(images))
	for id := range images {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedPointIDs(points map[int64]Point3D) []int64 {
	ids := make([]int64, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func WriteCamerasBinary(cameras map[CameraID]Camera, path string) error {
	return writeFile(path, func(w io.Writer) error {
		if err := binary.Write(w, byteOrder, uint64(len(cameras))); err != nil {
			return err
		}
		for _, id := range sortedCameraIDs(cameras) {
			camera := cameras[id]
			model, err := cameraModelByName(camera.Model)
			if err != nil {
				return err
			}
			if len(camera.Params) != model.NumParams {
				return errors.Errorf("camera %d: model %s takes %d params, got %d", id, model.Name, model.NumParams, len(camera.Params))
			}
			record := cameraRecord{
				CameraID: int32(camera.ID),
				ModelID:  model.ID,
				Width:    uint64(camera.Width),
				Height:   uint64(camera.Height),
			}
			if err := binary.Write(w, byteOrder, record); err != nil {
				return err
			}
			if err := binary.Write(w, byteOrder, camera.Params); err != nil {
				return err
			}
		}
		return nil
	})
}

func WriteImagesBinary(images map[ImageID]Image, path string) error {
	return writeFile(path, func(w io.Writer) error {
		if err := binary.Write(w, byteOrder, uint64(len(images))); err != nil {
			return err
		}
		for _, id := range sortedImageIDs(images) {
			image := images[id]
			record := imageRecord{
				ImageID:  int32(image.ID),
				Qvec:     [4]float64{image.Qvec.Real, image.Qvec.Imag, image.Qvec.Jmag, image.Qvec.Kmag},
				Tvec:     [3]float64{image.Tvec.X, image.Tvec.Y, image.Tvec.Z},
				CameraID: int32(image.CameraID),
			}
			if err := binary.Write(w, byteOrder, record); err != nil {
				return err
			}
			if _, err := io.WriteString(w, image.Name+"\x00"); err != nil {
				return err
			}
			points := make([]point2DRecord, len(image.Points2D))
			for index, point := range image.Points2D {
				points[index] = point2DRecord{X: point.X, Y: point.Y, Point3DID: image.Point3DIDs[index]}
			}
			if err := binary.Write(w, byteOrder, uint64(len(points))); err != nil {
				return err
			}
			if err := binary.Write(w, byteOrder, points); err != nil {
				return err
			}
		}
		return nil
	})
}

func WritePoints3DBinary(points map[int64]Point3D, path string) error {
	return writeFile(path, func(w io.Writer) error {
		if err := binary.Write(w, byteOrder, uint64(len(points))); err != nil {
			return err
		}
		for _, id := range sortedPointIDs(points) {
			point := points[id]
			record := point3DRecord{
				ID:    uint64(point.ID),
				XYZ:   [3]float64{point.XYZ.X, point.XYZ.Y, point.XYZ.Z},
				RGB:   point.RGB,
				Error: point.Error,
			}
			if err := binary.Write(w, byteOrder, record); err != nil {
				return err
			}
			track := make([]trackRecord, len(point.Track))
			for index, element := range point.Track {
				track[index] = trackRecord{ImageID: int32(element.ImageID), Point2DIdx: element.Point2DIdx}
			}
			if err := binary.Write(w, byteOrder, uint64(len(track))); err != nil {
				return err
			}
			if err := binary.Write(w, byteOrder, track); err != nil {
				return err
			}
		}
		return nil
	})
}
