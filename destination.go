package zoomify

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDestination returns the directory used when Process is not given
// one, "{dir}/{name}_zdata" for a source "{dir}/{name}.{ext}".
func DefaultDestination(src string) string {
	base := filepath.Base(src)
	return filepath.Join(filepath.Dir(src), strings.TrimSuffix(base, filepath.Ext(base))+"_zdata")
}

// prepareDestination creates dst. It reports false without doing anything
// when dst already exists and remove is not set.
func prepareDestination(dst string, remove bool, mode os.FileMode) (bool, error) {
	_, err := os.Stat(dst)
	switch {
	case err == nil:
		if !remove {
			return false, nil
		}
		if err := os.RemoveAll(dst); err != nil {
			return false, err
		}
	case !os.IsNotExist(err):
		return false, err
	}

	if err := os.MkdirAll(dst, mode); err != nil {
		return false, err
	}

	return true, nil
}
