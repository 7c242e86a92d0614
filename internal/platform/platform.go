// Package platform resolves the small set of environment-derived paths
// the pipeline needs and performs the startup endian check.
package platform

import (
	"os"
	"unsafe"

	"github.com/mapsme/geocore/internal/errs"
)

// RequireLittleEndian aborts the process with a fatal-shaped error if run
// on a big-endian host, since every on-disk format here is little-endian.
func RequireLittleEndian() error {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	if b[0] != 1 {
		return errs.Fatalf(nil, errs.ErrInconsistent, "refusing to start on a big-endian host")
	}
	return nil
}

// Paths holds the derived filesystem locations the CLI driver and the
// pipeline stages read from.
type Paths struct {
	TmpDir        string
	ResourcesDir  string
	WritableDir   string
}

// ResolvePaths mirrors the original TMPDIR/MWM_RESOURCES_DIR/MWM_WRITABLE_DIR
// environment overrides, falling back to sane defaults.
func ResolvePaths(dataPath string) Paths {
	p := Paths{
		TmpDir:       os.TempDir(),
		ResourcesDir: dataPath,
		WritableDir:  dataPath,
	}
	if v := os.Getenv("TMPDIR"); v != "" {
		p.TmpDir = v
	}
	if v := os.Getenv("MWM_RESOURCES_DIR"); v != "" {
		p.ResourcesDir = v
	}
	if v := os.Getenv("MWM_WRITABLE_DIR"); v != "" {
		p.WritableDir = v
	}
	return p
}
