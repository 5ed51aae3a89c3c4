package imports

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

func parseFloats(fields []string) ([]float64, error) {
	values := make([]float64, len(fields))
	for index, field := range fields {
		val, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		values[index] = val
	}
	return values, nil
}

func isComment(line string) bool {
	return len(line) == 0 || line[0] == '#'
}

func ReadCamerasText(path string) (map[CameraID]Camera, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cameras := make(map[CameraID]Camera)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if isComment(line) {
			continue
		}
		// CAMERA_ID MODEL WIDTH HEIGHT PARAMS[]
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, errors.Errorf("malformed camera line %q", line)
		}
		id, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, "camera id")
		}
		width, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, errors.Wrap(err, "camera width")
		}
		height, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, errors.Wrap(err, "camera height")
		}
		params, err := parseFloats(fields[4:])
		if err != nil {
			return nil, errors.Wrapf(err, "params of camera %d", id)
		}
		cameras[CameraID(id)] = Camera{ID: CameraID(id), Model: fields[1], Width: width, Height: height, Params: params}
	}
	return cameras, scanner.Err()
}

// fieldsRest returns s after its first n whitespace separated fields and the
// whitespace that follows them. Spacing inside the rest is kept.
func fieldsRest(s string, n int) string {
	for ; n > 0; n-- {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		s = s[end:]
	}
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

func ReadImagesText(path string) (map[ImageID]Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	images := make(map[ImageID]Image)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if isComment(line) {
			continue
		}
		// IMAGE_ID QW QX QY QZ TX TY TZ CAMERA_ID NAME
		fields := strings.Fields(line)
		if len(fields) < 10 {
			return nil, errors.Errorf("malformed image line %q", line)
		}
		id, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, "image id")
		}
		pose, err := parseFloats(fields[1:8])
		if err != nil {
			return nil, errors.Wrapf(err, "pose of image %d", id)
		}
		cameraID, err := strconv.ParseInt(fields[8], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "camera of image %d", id)
		}
		image := Image{
			ID:       ImageID(id),
			Qvec:     quat.Number{Real: pose[0], Imag: pose[1], Jmag: pose[2], Kmag: pose[3]},
			Tvec:     r3.Vector{X: pose[4], Y: pose[5], Z: pose[6]},
			CameraID: CameraID(cameraID),
			Name:     fieldsRest(strings.TrimRight(scanner.Text(), "\r"), 9),
		}

		// POINTS2D[] as (X, Y, POINT3D_ID), the line may be empty
		if !scanner.Scan() {
			return nil, errors.Errorf("missing points line for image %d", id)
		}
		pointFields := strings.Fields(scanner.Text())
		if len(pointFields)%3 != 0 {
			return nil, errors.Errorf("malformed points line for image %d", id)
		}
		for i := 0; i < len(pointFields); i += 3 {
			xy, err := parseFloats(pointFields[i : i+2])
			if err != nil {
				return nil, errors.Wrapf(err, "points of image %d", id)
			}
			point3DID, err := strconv.ParseInt(pointFields[i+2], 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "points of image %d", id)
			}
			image.Points2D = append(image.Points2D, r2.Point{X: xy[0], Y: xy[1]})
			image.Point3DIDs = append(image.Point3DIDs, point3DID)
		}
		images[image.ID] = image
	}
	return images, scanner.Err()
}

func ReadPoints3DText(path string) (map[int64]Point3D, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	points := make(map[int64]Point3D)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if isComment(line) {
			continue
		}
		// POINT3D_ID X Y Z R G B ERROR TRACK[] as (IMAGE_ID, POINT2D_IDX)
		fields := strings.Fields(line)
		if len(fields) < 8 || (len(fields)-8)%2 != 0 {
			return nil, errors.Errorf("malformed point line %q", line)
		}
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "point id")
		}
		xyz, err := parseFloats(fields[1:4])
		if err != nil {
			return nil, errors.Wrapf(err, "position of point %d", id)
		}
		var rgb [3]uint8
		for channel := range rgb {
			value, err := strconv.ParseUint(fields[4+channel], 10, 8)
			if err != nil {
				return nil, errors.Wrapf(err, "color of point %d", id)
			}
			rgb[channel] = uint8(value)
		}
		reprojErr, err := strconv.ParseFloat(fields[7], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "error of point %d", id)
		}
		point := Point3D{ID: id, XYZ: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}, RGB: rgb, Error: reprojErr}
		for i := 8; i < len(fields); i += 2 {
			imageID, err := strconv.ParseInt(fields[i], 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "track of point %d", id)
			}
			point2DIdx, err := strconv.ParseInt(fields[i+1], 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "track of point %d", id)
			}
			point.Track = append(point.Track, TrackElement{ImageID: ImageID(imageID), Point2DIdx: int32(point2DIdx)})
		}
		points[point.ID] = point
	}
	return points, scanner.Err()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func WriteCamerasText(cameras map[CameraID]Camera, path string) error {
	return writeFile(path, func(w io.Writer) error {
		fmt.Fprintln(w, "# Camera list with one line of data per camera:")
		fmt.Fprintln(w, "#   CAMERA_ID, MODEL, WIDTH, HEIGHT, PARAMS[]")
		fmt.Fprintf(w, "# Number of cameras: %d\n", len(cameras))
		for _, id := range sortedCameraIDs(cameras) {
			camera := cameras[id]
			fields := []string{strconv.Itoa(int(camera.ID)), camera.Model, strconv.Itoa(camera.Width), strconv.Itoa(camera.Height)}
			for _, param := range camera.Params {
				fields = append(fields, formatFloat(param))
			}
			if _, err := fmt.Fprintln(w, strings.Join(fields, " ")); err != nil {
				return err
			}
		}
		return nil
	})
}

func WriteImagesText(images map[ImageID]Image, path string) error {
	return writeFile(path, func(w io.Writer) error {
		fmt.Fprintln(w, "# Image list with two lines of data per image:")
		fmt.Fprintln(w, "#   IMAGE_ID, QW, QX, QY, QZ, TX, TY, TZ, CAMERA_ID, NAME")
		fmt.Fprintln(w, "#   POINTS2D[] as (X, Y, POINT3D_ID)")
		fmt.Fprintf(w, "# Number of images: %d\n", len(images))
		for _, id := range sortedImageIDs(images) {
			image := images[id]
			header := []string{
				strconv.Itoa(int(image.ID)),
				formatFloat(image.Qvec.Real), formatFloat(image.Qvec.Imag), formatFloat(image.Qvec.Jmag), formatFloat(image.Qvec.Kmag),
				formatFloat(image.Tvec.X), formatFloat(image.Tvec.Y), formatFloat(image.Tvec.Z),
				strconv.Itoa(int(image.CameraID)),
				image.Name,
			}
			points := make([]string, 0, 3*len(image.Points2D))
			for index, point := range image.Points2D {
				points = append(points, formatFloat(point.X), formatFloat(point.Y), strconv.FormatInt(image.Point3DIDs[index], 10))
			}
			if _, err := fmt.Fprintf(w, "%s\n%s\n", strings.Join(header, " "), strings.Join(points, " ")); err != nil {
				return err
			}
		}
		return nil
	})
}

func WritePoints3DText(points map[int64]Point3D, path string) error {
	return writeFile(path, func(w io.Writer) error {
		fmt.Fprintln(w, "# 3D point list with one line of data per point:")
		fmt.Fprintln(w, "#   POINT3D_ID, X, Y, Z, R, G, B, ERROR, TRACK[] as (IMAGE_ID, POINT2D_IDX)")
		fmt.Fprintf(w, "# Number of points: %d\n", len(points))
		for _, id := range sortedPointIDs(points) {
			point := points[id]
			fields := []string{
				strconv.FormatInt(point.ID, 10),
				formatFloat(point.XYZ.X), formatFloat(point.XYZ.Y), formatFloat(point.XYZ.Z),
				strconv.Itoa(int(point.RGB[0])), strconv.Itoa(int(point.RGB[1])), strconv.Itoa(int(point.RGB[2])),
				formatFloat(point.Error),
			}
			for _, element := range point.Track {
				fields = append(fields, strconv.Itoa(int(element.ImageID)), strconv.Itoa(int(element.Point2DIdx)))
			}
			if _, err := fmt.Fprintln(w, strings.Join(fields, " ")); err != nil {
				return err
			}
		}
		return nil
	})
}
