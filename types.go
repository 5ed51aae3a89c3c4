package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"colmaptools/photogrammetry"
)

// Pick is one pixel clicked on a displayed image.
// A zero DisplayedSize means the pixel is already at model resolution.
type Pick struct {
	Image         string              `json:"image"`
	X             float64             `json:"x"`
	Y             float64             `json:"y"`
	DisplayedSize photogrammetry.Size `json:"displayed_size"`
}

func (p Pick) Pixel() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

type Pos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func newPos(p r2.Point) Pos {
	return Pos{X: p.X, Y: p.Y}
}

type WorldPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func newWorldPoint(v r3.Vector) WorldPoint {
	return WorldPoint{X: v.X, Y: v.Y, Z: v.Z}
}

func (w WorldPoint) Vector() r3.Vector {
	return r3.Vector{X: w.X, Y: w.Y, Z: w.Z}
}

// Observation reports one camera of a triangulation. An unprojectable observation has
// the point at zero depth: it has no reprojection and no residual.
type Observation struct {
	Image         string   `json:"image"`
	ImageID       int32    `json:"image_id"`
	Clicked       Pos      `json:"clicked"`
	Pixel         Pos      `json:"pixel"`
	Reprojected   Pos      `json:"reprojected"`
	Residual      *float64 `json:"residual,omitempty"`
	Unprojectable bool     `json:"unprojectable,omitempty"`
}

// Triangulation is the world point of two picks. ReprojectionError is the sum of the
// residuals of projectable observations, not their mean. Condition is nil when the
// system is singular.
type Triangulation struct {
	Point              WorldPoint    `json:"point"`
	Observations       []Observation `json:"observations"`
	ReprojectionError  float64       `json:"reprojection_error"`
	Condition          *float64      `json:"condition,omitempty"`
	TriangulationAngle float64       `json:"triangulation_angle"`
	Degenerate         bool          `json:"degenerate"`
}

type Reprojection struct {
	Image string `json:"image"`
	Pixel Pos    `json:"pixel"`
}

// parsePick reads "NAME:X,Y". The name may itself contain colons.
func parsePick(s string) (Pick, error) {
	sep := strings.LastIndex(s, ":")
	if sep <= 0 {
		return Pick{}, errors.Errorf("invalid pick %q, expected NAME:X,Y", s)
	}
	coords, err := parseFloatList(s[sep+1:], 2)
	if err != nil {
		return Pick{}, errors.Wrapf(err, "invalid pick %q", s)
	}
	return Pick{Image: s[:sep], X: coords[0], Y: coords[1]}, nil
}

// pickList collects repeated --pick flags. It is a cli.Generic value so that the
// comma inside NAME:X,Y is not taken as a list separator.
type pickList struct {
	picks []Pick
}

func (l *pickList) Set(value string) error {
	pick, err := parsePick(value)
	if err != nil {
		return err
	}
	l.picks = append(l.picks, pick)
	return nil
}

func (l *pickList) String() string {
	if l == nil {
		return ""
	}
	raw := make([]string, len(l.picks))
	for index, pick := range l.picks {
		raw[index] = fmt.Sprintf("%s:%g,%g", pick.Image, pick.X, pick.Y)
	}
	return strings.Join(raw, " ")
}

func parseFloatList(s string, n int) ([]float64, error) {
	fields := strings.Split(s, ",")
	if len(fields) != n {
		return nil, errors.Errorf("expected %d comma separated values, got %q", n, s)
	}
	values := make([]float64, n)
	for index, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", index)
		}
		values[index] = value
	}
	return values, nil
}

func parsePoint(s string) (r3.Vector, error) {
	values, err := parseFloatList(s, 3)
	if err != nil {
		return r3.Vector{}, errors.Wrapf(err, "invalid point %q", s)
	}
	return r3.Vector{X: values[0], Y: values[1], Z: values[2]}, nil
}

// parseSize reads "WxH".
func parseSize(s string) (photogrammetry.Size, error) {
	width, height, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return photogrammetry.Size{}, errors.Errorf("invalid size %q, expected WxH", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(width))
	if err != nil {
		return photogrammetry.Size{}, errors.Wrapf(err, "invalid size %q", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(height))
	if err != nil {
		return photogrammetry.Size{}, errors.Wrapf(err, "invalid size %q", s)
	}
	if w <= 0 || h <= 0 {
		return photogrammetry.Size{}, errors.Errorf("invalid size %q, dimensions must be positive", s)
	}
	return photogrammetry.Size{Width: w, Height: h}, nil
}

// loadPicks reads a JSON array of picks.
func loadPicks(path string) ([]Pick, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read picks file")
	}
	var picks []Pick
	if err := json.Unmarshal(data, &picks); err != nil {
		return nil, errors.Wrap(err, "failed to parse picks JSON")
	}
	return picks, nil
}
