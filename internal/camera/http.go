package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"syscall"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// HTTPSource reads frames from an IP camera that serves a still image per GET.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates a snapshot-URL source. A nil client gets the default
// camera timeout.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: constants.CameraRequestTimeout}
	}
	return &HTTPSource{URL: url, Client: client}
}

// Open probes the snapshot URL once so that an unreachable or locked camera is
// reported at acquisition time rather than on the first snapshot.
func (h *HTTPSource) Open(ctx context.Context) (Stream, error) {
	s := &httpStream{url: h.URL, client: h.Client}
	frame, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.last = frame
	return s, nil
}

type httpStream struct {
	url    string
	client *http.Client
	last   image.Image
	closed bool
	mu     sync.Mutex
}

func (s *httpStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrNoFrame
	}

	frame, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = frame
	s.mu.Unlock()
	return frame, nil
}

func (s *httpStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.last = nil
	return nil
}

func (s *httpStream) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, deviceErr(CauseUnknown, fmt.Errorf("could not create request: %w", err))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, deviceErr(CauseNotFound, err)
		}
		return nil, deviceErr(CauseUnknown, fmt.Errorf("could not reach camera: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, deviceErr(causeForStatus(resp.StatusCode), fmt.Errorf("camera returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxFrameSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read camera response: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	if len(data) > constants.MaxFrameSize {
		return nil, fmt.Errorf("camera frame exceeds %d bytes", constants.MaxFrameSize)
	}
	return Decode(data)
}

func causeForStatus(code int) Cause {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return CausePermission
	case http.StatusNotFound:
		return CauseNotFound
	case http.StatusConflict, http.StatusLocked, http.StatusServiceUnavailable:
		return CauseBusy
	}
	return CauseUnknown
}
