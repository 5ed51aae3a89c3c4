package imports

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"

	"colmaptools/photogrammetry"
)

func sampleModel() *Model {
	return &Model{
		Cameras: map[CameraID]Camera{
			1: {ID: 1, Model: "SIMPLE_PINHOLE", Width: 2000, Height: 1600, Params: []float64{1000, 1000, 800}},
			2: {ID: 2, Model: "PINHOLE", Width: 1000, Height: 800, Params: []float64{1000, 1200, 500, 400}},
			3: {ID: 3, Model: "SIMPLE_RADIAL", Width: 640, Height: 480, Params: []float64{500, 320, 240, 0.01}},
		},
		Images: map[ImageID]Image{
			7: {
				ID:         7,
				Qvec:       quat.Number{Real: 1},
				Tvec:       r3.Vector{},
				CameraID:   1,
				Name:       "IMG_2425.JPG",
				Points2D:   []r2.Point{{X: 10.5, Y: 20.25}, {X: 30, Y: 40}},
				Point3DIDs: []int64{100, -1},
			},
			9: {
				ID:       9,
				Qvec:     quat.Number{Real: 0.9, Imag: 0.1, Jmag: -0.2, Kmag: 0.3},
				Tvec:     r3.Vector{X: -1, Y: 0.5, Z: 2},
				CameraID: 2,
				Name:     "IMG_2426.JPG",
			},
		},
		Points3D: map[int64]Point3D{
			100: {
				ID:    100,
				XYZ:   r3.Vector{X: 0.1, Y: 0.2, Z: 5},
				RGB:   [3]uint8{255, 128, 0},
				Error: 0.75,
				Track: []TrackElement{{ImageID: 7, Point2DIdx: 0}, {ImageID: 9, Point2DIdx: 3}},
			},
			101: {
				ID:    101,
				XYZ:   r3.Vector{X: -2, Y: 1, Z: 8},
				Error: 0.25,
				Track: []TrackElement{{ImageID: 9, Point2DIdx: 1}},
			},
		},
	}
}

func TestModelRoundTrip(t *testing.T) {
	t.Parallel()

	for _, ext := range []string{BINARY_EXT, TEXT_EXT} {
		ext := ext
		t.Run(ext, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			want := sampleModel()
			require.NoError(t, WriteModel(want, dir, ext))

			got, err := ReadModel(dir, ext)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ReadModel() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadModelDetectsExtension(t *testing.T) {
	t.Parallel()

	t.Run("binary", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, WriteModel(sampleModel(), dir, BINARY_EXT))
		ext, err := DetectModelExt(dir)
		require.NoError(t, err)
		assert.Equal(t, BINARY_EXT, ext)

		model, err := ReadModel(dir, "")
		require.NoError(t, err)
		assert.Len(t, model.Images, 2)
	})

	t.Run("text", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, WriteModel(sampleModel(), dir, TEXT_EXT))
		ext, err := DetectModelExt(dir)
		require.NoError(t, err)
		assert.Equal(t, TEXT_EXT, ext)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := ReadModel(t.TempDir(), "")
		assert.Error(t, err)
	})
}

func TestReadModelMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, WriteModel(sampleModel(), dir, BINARY_EXT))
	require.NoError(t, os.Remove(filepath.Join(dir, "points3D.bin")))

	_, err := ReadModel(dir, BINARY_EXT)
	assert.ErrorContains(t, err, "points3D.bin")
}

func TestReadCamerasBinaryUnknownModel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cameras.bin")
	err := WriteCamerasBinary(map[CameraID]Camera{1: {ID: 1, Model: "NOT_A_MODEL"}}, path)
	assert.True(t, errors.Is(err, ErrUnknownCameraModel))
}

// writeRecords writes values back to back in the byte order of binary models.
func writeRecords(t *testing.T, path string, values ...interface{}) {
	t.Helper()
	var buf bytes.Buffer
	for _, value := range values {
		require.NoError(t, binary.Write(&buf, byteOrder, value))
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestReadBinaryCorruptCounts(t *testing.T) {
	t.Parallel()

	t.Run("camera count", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cameras.bin")
		writeRecords(t, path, uint64(1)<<62)
		_, err := ReadCamerasBinary(path)
		assert.True(t, errors.Is(err, ErrCorruptModel))
	})

	t.Run("image count", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "images.bin")
		writeRecords(t, path, uint64(3))
		_, err := ReadImagesBinary(path)
		assert.True(t, errors.Is(err, ErrCorruptModel))
	})

	t.Run("points2D count", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "images.bin")
		writeRecords(t, path,
			uint64(1),
			imageRecord{ImageID: 1, Qvec: [4]float64{1, 0, 0, 0}, CameraID: 1},
			[]byte("a.jpg\x00"),
			uint64(1)<<62,
		)
		var err error
		require.NotPanics(t, func() { _, err = ReadImagesBinary(path) })
		assert.True(t, errors.Is(err, ErrCorruptModel))
		assert.ErrorContains(t, err, "image 1")
	})

	t.Run("track length", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "points3D.bin")
		writeRecords(t, path,
			uint64(1),
			point3DRecord{ID: 4, XYZ: [3]float64{0, 0, 5}},
			uint64(1)<<40,
		)
		var err error
		require.NotPanics(t, func() { _, err = ReadPoints3DBinary(path) })
		assert.True(t, errors.Is(err, ErrCorruptModel))
		assert.ErrorContains(t, err, "point 4")
	})

	t.Run("valid model still reads", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, WriteModel(sampleModel(), dir, BINARY_EXT))
		_, err := ReadModel(dir, BINARY_EXT)
		assert.NoError(t, err)
	})
}

func TestReadImagesTextEmptyPointsLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "images.txt")
	content := "# header\n" +
		"1 1 0 0 0 0 0 0 1 first image.jpg\n" +
		"\n" +
		"2 1 0 0 0 1 2 3 1 second.jpg\n" +
		"5.5 6.5 -1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	images, err := ReadImagesText(path)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "first image.jpg", images[1].Name)
	assert.Empty(t, images[1].Points2D)
	assert.Equal(t, []r2.Point{{X: 5.5, Y: 6.5}}, images[2].Points2D)
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, images[2].Tvec)
}

func TestImagesTextNameSpacing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	model := sampleModel()
	image := model.Images[9]
	image.Name = "scan  01\tleft.jpg"
	model.Images[9] = image
	require.NoError(t, WriteModel(model, dir, TEXT_EXT))

	images, err := ReadImagesText(filepath.Join(dir, "images.txt"))
	require.NoError(t, err)
	assert.Equal(t, "scan  01\tleft.jpg", images[9].Name)
	assert.Equal(t, "IMG_2425.JPG", images[7].Name)
}

func TestFieldsRest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		line string
		n    int
		want string
	}{
		{line: "1 2 3 name.jpg", n: 3, want: "name.jpg"},
		{line: "  1\t2   3  a  b.jpg", n: 3, want: "a  b.jpg"},
		{line: "1 2 3", n: 3, want: ""},
		{line: "1 2", n: 3, want: ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, fieldsRest(tc.line, tc.n), tc.line)
	}
}

func TestModelSummary(t *testing.T) {
	t.Parallel()

	model := sampleModel()
	assert.InDelta(t, 1.5, model.MeanTrackLength(), 1e-12)
	assert.InDelta(t, 0.5, model.MeanReprojectionError(), 1e-12)
	assert.Equal(t, 0.0, (&Model{}).MeanTrackLength())
}

func TestModelAccessor(t *testing.T) {
	t.Parallel()

	var accessor ModelAccessor = sampleModel()

	t.Run("shared focal length", func(t *testing.T) {
		in, err := accessor.CameraIntrinsics(1)
		require.NoError(t, err)
		assert.Equal(t, photogrammetry.Intrinsics{Fx: 1000, Fy: 1000, Cx: 1000, Cy: 800}, in)
	})

	t.Run("separate focal lengths", func(t *testing.T) {
		in, err := accessor.CameraIntrinsics(2)
		require.NoError(t, err)
		assert.Equal(t, photogrammetry.Intrinsics{Fx: 1000, Fy: 1200, Cx: 500, Cy: 400}, in)
	})

	t.Run("four parameter camera is read as fx fy cx cy", func(t *testing.T) {
		in, err := accessor.CameraIntrinsics(3)
		require.NoError(t, err)
		assert.Equal(t, photogrammetry.Intrinsics{Fx: 500, Fy: 320, Cx: 240, Cy: 0.01}, in)
	})

	t.Run("unknown camera", func(t *testing.T) {
		_, err := accessor.CameraIntrinsics(42)
		assert.True(t, errors.Is(err, ErrCameraNotFound))
	})

	t.Run("pose", func(t *testing.T) {
		pose, err := accessor.ImagePose(9)
		require.NoError(t, err)
		assert.Equal(t, r3.Vector{X: -1, Y: 0.5, Z: 2}, pose.Translation)
		rows, cols := pose.Rotation.Dims()
		assert.Equal(t, 3, rows)
		assert.Equal(t, 3, cols)
	})

	t.Run("resolve ids in request order", func(t *testing.T) {
		ids, err := accessor.ResolveImageIDs([]string{"IMG_2426.JPG", "IMG_2425.JPG"})
		require.NoError(t, err)
		assert.Equal(t, []ImageID{9, 7}, ids)
	})

	t.Run("resolve unknown name", func(t *testing.T) {
		_, err := accessor.ResolveImageIDs([]string{"IMG_2425.JPG", "missing.jpg"})
		assert.True(t, errors.Is(err, ErrImageNotFound))
	})

	t.Run("rescale to model resolution", func(t *testing.T) {
		got, err := accessor.RescalePixel(7, r2.Point{X: 100, Y: 100}, photogrammetry.Size{Width: 1000, Height: 800})
		require.NoError(t, err)
		assert.Equal(t, r2.Point{X: 200, Y: 200}, got)
	})

	t.Run("rescale rejects empty display", func(t *testing.T) {
		_, err := accessor.RescalePixel(7, r2.Point{X: 1, Y: 1}, photogrammetry.Size{})
		assert.Error(t, err)
	})
}
