// Package thumbnail produces <uuid>_w<width>.jpg on demand under an
// exclusive per-target file lock.
package thumbnail

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/daboe01/VIPSPatchbay/internal/imagestore"
	"github.com/daboe01/VIPSPatchbay/internal/resolver"
	"github.com/daboe01/VIPSPatchbay/internal/util"
)

const (
	MinWidth = 1
	MaxWidth = 4096
)

// Service produces thumbnails, serializing concurrent producers of the
// same (uuid, width) target behind an advisory file lock using a
// check-lock-check pattern.
type Service struct {
	store      *imagestore.Store
	resolve    *resolver.Resolver
	thumbnailer string

	logger *slog.Logger
}

// New creates a thumbnail Service. thumbnailer is the external binary
// invoked to actually resize the image.
func New(store *imagestore.Store, resolve *resolver.Resolver, thumbnailer string) *Service {
	return &Service{
		store:       store,
		resolve:     resolve,
		thumbnailer: thumbnailer,

		logger: slog.Default().
			With(slog.String(util.PackageKey, util.PackageThumbnail)).
			With(slog.String(util.ComponentKey, util.ComponentThumbnailService)),
	}
}

// Thumbnail returns the path to a jpeg thumbnail for uuid at width,
// building it on demand if it doesn't already exist.
func (s *Service) Thumbnail(ctx context.Context, uuid string, width int) (string, error) {

	if width < MinWidth || width > MaxWidth {
		return "", fmt.Errorf("width %d out of range [%d, %d]", width, MinWidth, MaxWidth)
	}

	sourcePath, ok := s.resolve.Resolve(uuid)
	if !ok {
		return "", fmt.Errorf("source image %s not found", uuid)
	}

	target := s.store.ThumbnailPath(uuid, width)

	// first check: already built
	if fileExists(target) {
		return target, nil
	}

	lockPath := s.store.ThumbnailLockPath(uuid, width)
	fl := flock.New(lockPath)

	if err := fl.Lock(); err != nil {
		return "", fmt.Errorf("failed to acquire thumbnail lock for %s width %d: %v", uuid, width, err)
	}
	defer func() {
		_ = fl.Unlock()
		_ = imagestore.RemoveIfExists(lockPath)
	}()

	// second check: another worker may have finished while we waited
	if fileExists(target) {
		return target, nil
	}

	if err := s.invoke(ctx, sourcePath, target, width); err != nil {
		_ = imagestore.RemoveIfExists(target)
		return "", fmt.Errorf("thumbnailer failed for %s width %d: %v", uuid, width, err)
	}

	if !fileExists(target) {
		return "", fmt.Errorf("thumbnailer reported success but %s is missing", target)
	}

	return target, nil
}

// invoke runs the external thumbnailer with a width constraint and a
// permissive height constraint that preserves aspect ratio, as argv
// [thumbnailer, source, target, width, ...constraints]. The height
// constraint is expressed the way common thumbnailing CLIs do: a bound
// far larger than any realistic source, so the aspect ratio is governed
// by the width alone.
func (s *Service) invoke(ctx context.Context, source, target string, width int) error {

	const permissiveHeight = 1 << 16

	cmd := exec.CommandContext(ctx, s.thumbnailer,
		source,
		target,
		strconv.Itoa(width),
		strconv.Itoa(permissiveHeight),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %s", err, string(output))
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
