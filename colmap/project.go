package colmap

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Project resolves the conventional layout of a COLMAP working directory.
type Project struct {
	Dir string
}

func (p Project) ImagesDir() string { return filepath.Join(p.Dir, "images") }

func (p Project) DatabasePath() string { return filepath.Join(p.Dir, "database.db") }

func (p Project) SparseDir() string { return filepath.Join(p.Dir, "sparse") }

func (p Project) SparseModelDir() string { return filepath.Join(p.Dir, "sparse", "0") }

func (p Project) DenseDir() string { return filepath.Join(p.Dir, "dense") }

func (p Project) FusedPath() string { return filepath.Join(p.Dir, "dense", "fused.ply") }

func (p Project) PoissonMeshPath() string { return filepath.Join(p.Dir, "dense", "meshed-poisson.ply") }

func (p Project) DelaunayMeshPath() string { return filepath.Join(p.Dir, "dense", "meshed-delaunay.ply") }

func (p Project) LogPath() string { return filepath.Join(p.Dir, "colmap_output.txt") }

func (p Project) DisplayDir() string { return filepath.Join(p.Dir, "display") }

// ModelDir is the undistorted model written by the dense step, the one pixels are picked against.
func (p Project) ModelDir() string { return filepath.Join(p.Dir, "dense", "sparse") }

// DisplayedImage is the file a pick on image name was made on: its display copy when one
// was created, the original image otherwise.
func (p Project) DisplayedImage(name string) (string, error) {
	displayed := filepath.Join(p.DisplayDir(), name)
	_, err := os.Stat(displayed)
	switch {
	case err == nil:
		return displayed, nil
	case errors.Is(err, fs.ErrNotExist):
		return filepath.Join(p.ImagesDir(), name), nil
	default:
		return "", errors.Wrapf(err, "checking display image %s", name)
	}
}
