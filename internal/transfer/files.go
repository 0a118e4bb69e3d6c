package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lanbeam/internal/apperr"

	exp "golang.org/x/exp/rand"
)

func init() {
	// Collision suffixes must differ across process restarts.
	exp.Seed(uint64(time.Now().UnixNano()))
}

// sanitizeName reduces an announced filename to a bare relative name.
// Announced names are untrusted; anything that still looks like a path
// after stripping directories is rejected.
func sanitizeName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", apperr.New(apperr.Storage, "transfer.sanitizeName", fmt.Sprintf("unusable filename %q", name), nil)
	}
	if strings.ContainsAny(base, `/\`) {
		return "", apperr.New(apperr.Storage, "transfer.sanitizeName", fmt.Sprintf("filename %q contains path separators", name), nil)
	}
	return base, nil
}

// createFile opens a fresh output file under dir. If the announced name is
// taken, a timestamp goes before the extension; if that also collides the
// remaining attempts use a random suffix. Returns the open file and the
// name it was stored under.
func createFile(dir, name string) (*os.File, string, error) {
	f, err := exclCreate(dir, name)
	if err == nil {
		return f, name, nil
	}
	if !os.IsExist(err) {
		return nil, "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	stamped := fmt.Sprintf("%s-%s%s", stem, time.Now().Format("20060102T150405"), ext)
	f, err = exclCreate(dir, stamped)
	if err == nil {
		return f, stamped, nil
	}
	if !os.IsExist(err) {
		return nil, "", err
	}

	for attempt := 0; attempt < 3; attempt++ {
		alt := fmt.Sprintf("%s-%d%s", stem, exp.Intn(10000), ext)
		f, err = exclCreate(dir, alt)
		if err == nil {
			return f, alt, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("could not find a free name for %s", name)
}

func exclCreate(dir, name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}
