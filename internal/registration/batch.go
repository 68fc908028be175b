package registration

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
)

// Batch is the append-only sequence of captured images for one registration.
// The soft cap is informational; Add never refuses an image.
type Batch struct {
	images  []camera.Image
	softCap int
	mu      sync.RWMutex
}

// NewBatch creates an empty batch with the given soft cap.
func NewBatch(softCap int) *Batch {
	return &Batch{softCap: softCap}
}

// Add appends an image and returns the new length.
func (b *Batch) Add(img camera.Image) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images = append(b.images, img)
	return len(b.images)
}

// Len returns the number of captured images.
func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.images)
}

// Images returns a copy of the sequence in capture order.
func (b *Batch) Images() []camera.Image {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]camera.Image(nil), b.images...)
}

// At returns the image at index i.
func (b *Batch) At(i int) (camera.Image, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= len(b.images) {
		return camera.Image{}, false
	}
	return b.images[i], true
}

// Reset drops every image.
func (b *Batch) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images = nil
}

// SoftCap returns the display limit.
func (b *Batch) SoftCap() int {
	return b.softCap
}

// Remaining returns how many captures are left before the soft cap.
func (b *Batch) Remaining() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return max(b.softCap-len(b.images), 0)
}

// Submitter sends a registration to the backend.
type Submitter interface {
	RegisterStudent(ctx context.Context, reg backend.StudentRegistration, images []camera.Image) (*backend.RegisterResult, error)
}

// Registrar validates and submits registrations.
type Registrar struct {
	api       Submitter
	minImages int
}

// NewRegistrar creates a registrar that requires at least minImages images.
func NewRegistrar(api Submitter, minImages int) *Registrar {
	return &Registrar{api: api, minImages: minImages}
}

// MinImages returns the submission threshold.
func (r *Registrar) MinImages() int {
	return r.minImages
}

// Submit validates the form and batch and sends exactly one request. The
// batch is cleared only when the backend confirms the registration; on any
// error both the form and the images are left for a retry.
func (r *Registrar) Submit(ctx context.Context, form Form, batch *Batch) (*backend.RegisterResult, error) {
	form = form.Normalize()
	if err := ValidateSubmit(form, batch.Len(), r.minImages); err != nil {
		return nil, err
	}

	result, err := r.api.RegisterStudent(ctx, form.Registration(), batch.Images())
	if err != nil {
		return nil, err
	}

	batch.Reset()
	return result, nil
}
