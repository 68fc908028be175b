package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// openDirs tracks directories currently held by a stream. A directory behaves
// like a physical device: only one stream may hold it.
var (
	openDirs   = make(map[string]struct{})
	openDirsMu sync.Mutex
)

var frameExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// DirSource replays still images from a directory in lexical order, looping
// when it reaches the end. Useful for kiosks fed by an external grabber and for
// running the client without a camera attached.
type DirSource struct {
	Path string
}

// NewDirSource creates a directory-backed source.
func NewDirSource(path string) *DirSource {
	return &DirSource{Path: path}
}

func (d *DirSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(d.Path)
	if err != nil {
		return nil, deviceErr(CauseUnknown, fmt.Errorf("could not resolve %s: %w", d.Path, err))
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, deviceErr(CausePermission, err)
		case errors.Is(err, fs.ErrNotExist):
			return nil, deviceErr(CauseNotFound, err)
		}
		return nil, deviceErr(CauseUnknown, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(frameExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(abs, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, deviceErr(CauseNotFound, fmt.Errorf("no frames in %s", abs))
	}
	slices.Sort(files)

	openDirsMu.Lock()
	defer openDirsMu.Unlock()
	if _, held := openDirs[abs]; held {
		return nil, deviceErr(CauseBusy, fmt.Errorf("%s is already open", abs))
	}
	openDirs[abs] = struct{}{}

	return &dirStream{path: abs, files: files}, nil
}

type dirStream struct {
	path   string
	files  []string
	next   int
	closed bool
	mu     sync.Mutex
}

func (s *dirStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNoFrame
	}
	file := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	data, err := os.ReadFile(file) //nolint:gosec // frames come from the configured camera directory
	if err != nil {
		return nil, fmt.Errorf("could not read frame %s: %w", file, err)
	}
	return Decode(data)
}

func (s *dirStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	openDirsMu.Lock()
	delete(openDirs, s.path)
	openDirsMu.Unlock()
	return nil
}
