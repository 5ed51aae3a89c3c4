package imports

import (
	"database/sql"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Database is a read-only view of the feature database written by COLMAP.
type Database struct {
	*sql.DB
}

// DatabaseCamera is a row of the cameras table. Model is the numeric COLMAP model id.
type DatabaseCamera struct {
	ID               CameraID
	ModelID          int32
	Model            string
	Width            int
	Height           int
	Params           []float64
	PriorFocalLength bool
}

func OpenDatabase(path string) (*Database, error) {
	ok, err := exists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Errorf("database %s does not exist", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return &Database{db}, nil
}

func (db *Database) Tables() ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tables, nil
}

// blobToFloats decodes a little endian float64 array as stored by COLMAP.
func blobToFloats(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, errors.Errorf("blob of %d bytes is not a float64 array", len(blob))
	}
	values := make([]float64, len(blob)/8)
	for index := range values {
		values[index] = math.Float64frombits(binary.LittleEndian.Uint64(blob[8*index:]))
	}
	return values, nil
}

func (db *Database) Cameras() ([]DatabaseCamera, error) {
	rows, err := db.Query("SELECT camera_id, model, width, height, params, prior_focal_length FROM cameras ORDER BY camera_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cameras []DatabaseCamera
	for rows.Next() {
		var camera DatabaseCamera
		var blob []byte
		if err := rows.Scan(&camera.ID, &camera.ModelID, &camera.Width, &camera.Height, &blob, &camera.PriorFocalLength); err != nil {
			return nil, err
		}
		if camera.Params, err = blobToFloats(blob); err != nil {
			return nil, errors.Wrapf(err, "params of camera %d", camera.ID)
		}
		if model, err := cameraModelByID(camera.ModelID); err == nil {
			camera.Model = model.Name
		}
		cameras = append(cameras, camera)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cameras, nil
}

func (db *Database) ImageNames() ([]string, error) {
	rows, err := db.Query("SELECT name FROM images ORDER BY image_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// MAX_IMAGE_ID is the pair_id multiplier COLMAP uses to pack two image ids into one key.
const MAX_IMAGE_ID = 2147483647

// ImagePair is a row of two_view_geometries. Inliers is the number of verified matches.
type ImagePair struct {
	ImageID1 ImageID
	ImageID2 ImageID
	Inliers  int
}

// PairIDToImageIDs inverts pair_id = image_id1*MAX_IMAGE_ID + image_id2.
func PairIDToImageIDs(pairID int64) (ImageID, ImageID) {
	id2 := pairID % MAX_IMAGE_ID
	id1 := (pairID - id2) / MAX_IMAGE_ID
	return ImageID(id1), ImageID(id2)
}

// TwoViewGeometries lists the image pairs with a verified geometry, ordered by pair_id.
func (db *Database) TwoViewGeometries() ([]ImagePair, error) {
	rows, err := db.Query("SELECT pair_id, rows FROM two_view_geometries ORDER BY pair_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []ImagePair
	for rows.Next() {
		var pairID int64
		var pair ImagePair
		if err := rows.Scan(&pairID, &pair.Inliers); err != nil {
			return nil, err
		}
		pair.ImageID1, pair.ImageID2 = PairIDToImageIDs(pairID)
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}
