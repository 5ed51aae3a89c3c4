// Package colmap drives the COLMAP command line tool through a full reconstruction.
package colmap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownMatchType = errors.New("unknown match type")

// MatchType selects the COLMAP feature matcher.
type MatchType string

const (
	Exhaustive MatchType = "exhaustive"
	Sequential MatchType = "sequential"
	Spatial    MatchType = "spatial"
	Transitive MatchType = "transitive"
	VocabTree  MatchType = "vocab_tree"
)

var MATCH_TYPES = []MatchType{Exhaustive, Sequential, Spatial, Transitive, VocabTree}

// ParseMatchType accepts both "sequential" and "sequential_matcher".
func ParseMatchType(s string) (MatchType, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_matcher")
	for _, matchType := range MATCH_TYPES {
		if string(matchType) == name {
			return matchType, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownMatchType, "%q", s)
}

// Command is the COLMAP subcommand running this matcher.
func (m MatchType) Command() string {
	return string(m) + "_matcher"
}

const (
	MESHER_POISSON  = "poisson"
	MESHER_DELAUNAY = "delaunay"
)

// Options tune the pipeline. Zero values are not meaningful, start from DefaultOptions.
type Options struct {
	ColmapBinary    string    `json:"colmap_binary"`
	MatchType       MatchType `json:"match_type"`
	VocabTreePath   string    `json:"vocab_tree_path,omitempty"`
	SingleCamera    bool      `json:"single_camera"`
	UseGPU          bool      `json:"use_gpu"`
	MapperThreads   int       `json:"mapper_threads"`
	InitMinTriAngle float64   `json:"init_min_tri_angle"`
	MultipleModels  bool      `json:"multiple_models"`
	ExtractColors   bool      `json:"extract_colors"`
	MaxImageSize    int       `json:"max_image_size"`
	GeomConsistency bool      `json:"geom_consistency"`
	SkipDense       bool      `json:"skip_dense"`
	Meshers         []string  `json:"meshers"`
}

func DefaultOptions() Options {
	return Options{
		ColmapBinary:    "colmap",
		MatchType:       Exhaustive,
		UseGPU:          true,
		MapperThreads:   16,
		InitMinTriAngle: 4,
		MaxImageSize:    2000,
		GeomConsistency: true,
		Meshers:         []string{MESHER_POISSON, MESHER_DELAUNAY},
	}
}

func (o *Options) Validate() error {
	if o.ColmapBinary == "" {
		return errors.New("colmap_binary must not be empty")
	}
	matchType, err := ParseMatchType(string(o.MatchType))
	if err != nil {
		return err
	}
	o.MatchType = matchType
	if o.MapperThreads <= 0 {
		return errors.Errorf("mapper_threads must be positive, got %d", o.MapperThreads)
	}
	if o.InitMinTriAngle <= 0 {
		return errors.Errorf("init_min_tri_angle must be positive, got %v", o.InitMinTriAngle)
	}
	if o.MaxImageSize <= 0 {
		return errors.Errorf("max_image_size must be positive, got %d", o.MaxImageSize)
	}
	for _, mesher := range o.Meshers {
		if mesher != MESHER_POISSON && mesher != MESHER_DELAUNAY {
			return errors.Errorf("unknown mesher %q", mesher)
		}
	}
	return nil
}

// LoadOptions reads a JSON options file on top of DefaultOptions.
// Fields omitted from the file keep their default value.
func LoadOptions(path string) (Options, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Options{}, errors.Errorf("options file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return Options{}, errors.Wrap(err, "failed to stat options file")
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return Options{}, errors.Errorf("options file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Options{}, errors.Wrap(err, "failed to read options file")
	}

	opts := DefaultOptions()
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, errors.Wrap(err, "failed to parse options JSON")
	}
	if err := opts.Validate(); err != nil {
		return Options{}, errors.Wrap(err, "invalid options")
	}
	return opts, nil
}
