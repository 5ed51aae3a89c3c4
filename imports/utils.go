package imports

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/h2non/bimg"
	pkgerrors "github.com/pkg/errors"

	"colmaptools/photogrammetry"
)

var ACCEPTABLE_IMAGES_EXT = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

const DISPLAY_SIZE = 1500

// ReadChildImages lists the image files of dir by name, the order in which a picker steps through them.
func ReadChildImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	images := []string{}
	for _, v := range entries {
		if v.IsDir() {
			continue
		}
		if ACCEPTABLE_IMAGES_EXT[strings.ToLower(filepath.Ext(v.Name()))] {
			images = append(images, v.Name())
		}
	}
	sort.Strings(images)
	return images, nil
}

// ImageSize returns the pixel size of an image file as it would be displayed.
func ImageSize(path string) (photogrammetry.Size, error) {
	buffer, err := bimg.Read(path)
	if err != nil {
		return photogrammetry.Size{}, pkgerrors.Wrapf(err, "reading %s", path)
	}
	size, err := bimg.NewImage(buffer).Size()
	if err != nil {
		return photogrammetry.Size{}, pkgerrors.Wrapf(err, "decoding %s", path)
	}
	return photogrammetry.Size{Width: size.Width, Height: size.Height}, nil
}

// CreateDisplayImages writes downscaled copies of images into displayDir so that the longest
// side is at most maxSide pixels. Pixels picked on these copies are mapped back with RescalePixel.
func CreateDisplayImages(imagesDir string, displayDir string, images []string, maxSide int) error {
	if maxSide <= 0 {
		maxSide = DISPLAY_SIZE
	}
	dirExists, err := exists(displayDir)
	if err != nil {
		return err
	}
	if !dirExists {
		if err := os.MkdirAll(displayDir, 0o755); err != nil {
			return err
		}
	}
	for _, image := range images {
		buffer, err := bimg.Read(filepath.Join(imagesDir, image))
		if err != nil {
			return err
		}

		fullImage := bimg.NewImage(buffer)
		fullSize, err := fullImage.Size()
		if err != nil {
			return err
		}
		var resizedImage []byte

		if fullSize.Width > fullSize.Height {
			resizedImage, err = fullImage.Process(bimg.Options{Width: min(maxSide, fullSize.Width), Quality: 90})
		} else {
			resizedImage, err = fullImage.Process(bimg.Options{Height: min(maxSide, fullSize.Height), Quality: 90})
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "resizing %s", image)
		}
		if err := bimg.Write(filepath.Join(displayDir, image), resizedImage); err != nil {
			return err
		}
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
