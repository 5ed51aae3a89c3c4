package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sph "colmaptools/photogrammetry"
)

func TestParsePick(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		want    Pick
		wantErr bool
	}{
		{input: "IMG_2425.JPG:100,200", want: Pick{Image: "IMG_2425.JPG", X: 100, Y: 200}},
		{input: "scan:a.jpg:1.5, 2.25", want: Pick{Image: "scan:a.jpg", X: 1.5, Y: 2.25}},
		{input: "IMG_2425.JPG", wantErr: true},
		{input: ":1,2", wantErr: true},
		{input: "a.jpg:1", wantErr: true},
		{input: "a.jpg:1,2,3", wantErr: true},
		{input: "a.jpg:x,2", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := parsePick(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParsePoint(t *testing.T) {
	t.Parallel()

	point, err := parsePoint("0.5,-1,5")
	require.NoError(t, err)
	assert.Equal(t, r3.Vector{X: 0.5, Y: -1, Z: 5}, point)

	_, err = parsePoint("1,2")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	size, err := parseSize("1000x800")
	require.NoError(t, err)
	assert.Equal(t, sph.Size{Width: 1000, Height: 800}, size)

	size, err = parseSize("640X480")
	require.NoError(t, err)
	assert.Equal(t, sph.Size{Width: 640, Height: 480}, size)

	for _, input := range []string{"1000", "0x800", "axb", "-1x2"} {
		_, err := parseSize(input)
		assert.Error(t, err, input)
	}
}

func TestLoadPicks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "picks.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"image": "left.jpg", "x": 250, "y": 250, "displayed_size": {"width": 500, "height": 500}},
		{"image": "right.jpg", "x": 300, "y": 500}
	]`), 0o644))

	picks, err := loadPicks(path)
	require.NoError(t, err)
	assert.Equal(t, []Pick{
		{Image: "left.jpg", X: 250, Y: 250, DisplayedSize: sph.Size{Width: 500, Height: 500}},
		{Image: "right.jpg", X: 300, Y: 500},
	}, picks)

	require.NoError(t, os.WriteFile(path, []byte(`{"image": "left.jpg"}`), 0o644))
	_, err = loadPicks(path)
	assert.Error(t, err)
}

func TestPickList(t *testing.T) {
	t.Parallel()

	var list pickList
	require.NoError(t, list.Set("left.jpg:500,500"))
	require.NoError(t, list.Set("right.jpg:300,500"))
	assert.Error(t, list.Set("right.jpg"))

	assert.Equal(t, []Pick{
		{Image: "left.jpg", X: 500, Y: 500},
		{Image: "right.jpg", X: 300, Y: 500},
	}, list.picks)
	assert.Equal(t, "left.jpg:500,500 right.jpg:300,500", list.String())
}
