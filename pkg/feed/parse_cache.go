package feed

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"railsim/internal/domain"
)

// ParsedCacheDir returns the parse cache directory under base.
func ParsedCacheDir(base string) string {
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "railsim-feed-cache")
}

func DataFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func parsedCachePath(cacheDir, fingerprint string) string {
	return filepath.Join(cacheDir, fmt.Sprintf("feed_parsed_%s.gob.gz", fingerprint))
}

func LoadParsedResult(cacheDir, fingerprint string) (*Dataset, string, error) {
	path := parsedCachePath(cacheDir, fingerprint)
	f, err := os.Open(path)
	if err != nil {
		return nil, path, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, path, err
	}
	defer zr.Close()

	var ds Dataset
	if err := gob.NewDecoder(zr).Decode(&ds); err != nil {
		return nil, path, err
	}

	if len(ds.Stations) == 0 || len(ds.Corridors) == 0 {
		return nil, path, fmt.Errorf("parsed cache is incomplete")
	}
	if ds.Meta == nil {
		ds.Meta = make(map[string]domain.TrainMeta)
	}

	return &ds, path, nil
}

func SaveParsedResult(cacheDir, fingerprint string, ds *Dataset) (string, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", err
	}

	path := parsedCachePath(cacheDir, fingerprint)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}

	zw, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		return "", err
	}

	encErr := gob.NewEncoder(zw).Encode(ds)
	closeErr := zw.Close()
	fileCloseErr := f.Close()
	for _, err := range []error{encErr, closeErr, fileCloseErr} {
		if err != nil {
			_ = os.Remove(tmpPath)
			return "", err
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}

	return path, nil
}
