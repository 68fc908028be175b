package kiosk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/registration"
)

// UpdateForm replaces the registration draft. The section is upper-cased as
// it is typed.
func (k *Kiosk) UpdateForm(f registration.Form) error {
	k.mu.Lock()
	if err := k.requireLocked(PageHome, "editing the form"); err != nil {
		k.mu.Unlock()
		return err
	}
	k.draft = f.Normalize()
	k.mu.Unlock()

	k.changed()
	return nil
}

// CancelForm clears the registration draft.
func (k *Kiosk) CancelForm() error {
	k.mu.Lock()
	if err := k.requireLocked(PageHome, "cancelling the form"); err != nil {
		k.mu.Unlock()
		return err
	}
	k.draft = registration.Form{}
	k.mu.Unlock()

	k.changed()
	return nil
}

// OpenCapture moves to the capture page and starts the camera. Name and
// enrollment number must be filled in. When the camera cannot be started the
// kiosk stays on the capture page with the camera inactive.
func (k *Kiosk) OpenCapture(ctx context.Context) error {
	k.mu.Lock()
	if err := k.requireLocked(PageHome, "opening the camera"); err != nil {
		k.mu.Unlock()
		return err
	}
	if err := k.draft.ValidateIdentity(); err != nil {
		k.mu.Unlock()
		return k.fail(msgIdentityRequired, err)
	}
	k.enterLocked(PageCapture)
	epoch := k.epoch
	k.mu.Unlock()
	k.changed()

	err := k.cam.Acquire(ctx)

	k.mu.Lock()
	stale := k.epoch != epoch
	k.mu.Unlock()
	if stale {
		// Left the page while the camera was starting.
		if err == nil {
			k.cam.Release()
		}
		return fmt.Errorf("%w: capture page was closed", ErrWrongPage)
	}

	if err != nil {
		k.logger.Warn("could not start camera", "error", err, "cause", camera.Classify(err).String())
		k.changed()
		return k.fail(camera.Diagnostic(err), err)
	}

	k.notes.Success(msgCameraStarted)
	k.changed()
	return nil
}

// CaptureImage takes one snapshot and appends it to the batch. It returns the
// new number of images.
func (k *Kiosk) CaptureImage(ctx context.Context) (int, error) {
	k.mu.Lock()
	if err := k.requireLocked(PageCapture, "capturing an image"); err != nil {
		k.mu.Unlock()
		return 0, err
	}
	capture := k.capture
	k.mu.Unlock()

	img, err := k.cam.Snapshot(ctx, k.settings.CaptureQuality)
	if err != nil {
		if errors.Is(err, camera.ErrNotReady) {
			return 0, k.fail(msgVideoNotReady, err)
		}
		k.logger.Warn("could not capture image", "error", err)
		return 0, k.fail(camera.Diagnostic(err), err)
	}

	k.mu.Lock()
	if k.capture != capture {
		k.mu.Unlock()
		return 0, fmt.Errorf("%w: capture page was closed", ErrWrongPage)
	}
	n := capture.batch.Add(img)
	k.mu.Unlock()

	k.notes.Success(fmt.Sprintf("Image %d captured", n))
	k.changed()
	return n, nil
}

// Image returns captured image i of the current capture page.
func (k *Kiosk) Image(i int) (camera.Image, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.page != PageCapture || k.capture == nil {
		return camera.Image{}, false
	}
	return k.capture.batch.At(i)
}

// SubmitRegistration sends the draft and every captured image in one
// request. On success the draft is cleared and the kiosk returns home after
// the redirect delay; on failure everything is kept for a retry.
func (k *Kiosk) SubmitRegistration(ctx context.Context) (*backend.RegisterResult, error) {
	k.mu.Lock()
	if err := k.requireLocked(PageCapture, "submitting a registration"); err != nil {
		k.mu.Unlock()
		return nil, err
	}
	capture := k.capture
	if capture.submitting || capture.registered {
		k.mu.Unlock()
		return nil, ErrBusy
	}
	form := k.draft
	images := capture.batch.Len()
	if images < k.registrar.MinImages() {
		k.mu.Unlock()
		return nil, k.fail(fmt.Sprintf(msgTooFewImages, k.registrar.MinImages()),
			fmt.Errorf("%w: captured %d", registration.ErrTooFewImages, images))
	}
	if err := form.Normalize().Validate(); err != nil {
		k.mu.Unlock()
		if errors.Is(err, registration.ErrMissingFields) {
			return nil, k.fail(msgMissingFields, err)
		}
		return nil, k.fail(err.Error(), err)
	}
	capture.submitting = true
	k.mu.Unlock()

	k.notes.Info(msgRegistering)
	k.changed()

	result, err := k.registrar.Submit(ctx, form, capture.batch)

	k.mu.Lock()
	capture.submitting = false
	if err != nil {
		k.mu.Unlock()
		k.changed()
		k.logger.Warn("registration failed", "enrollment_number", form.EnrollmentNumber, "error", err)
		if backend.IsAPIError(err) {
			return nil, k.fail(backend.DetailOf(err, msgRegistrationFailed), err)
		}
		return nil, k.fail(msgNetworkError, err)
	}

	capture.registered = true
	if k.capture == capture {
		capture.redirect = time.AfterFunc(k.settings.RedirectDelay, func() {
			k.finishRegistration(capture)
		})
	} else {
		// The operator left the page; the student is registered all the same.
		k.draft = registration.Form{}
	}
	k.mu.Unlock()

	k.logger.Info("student registered", "enrollment_number", form.EnrollmentNumber, "images", images)
	k.notes.Success(msgRegistered)
	k.changed()
	return result, nil
}

// finishRegistration is the delayed return to the home page after a
// successful registration.
func (k *Kiosk) finishRegistration(capture *captureContext) {
	k.mu.Lock()
	if k.closed || k.capture != capture {
		k.mu.Unlock()
		return
	}
	k.draft = registration.Form{}
	k.enterLocked(PageHome)
	k.mu.Unlock()

	k.changed()
}

// LeaveCapture returns to the home page. Captured images are dropped and the
// camera is released; the draft is kept.
func (k *Kiosk) LeaveCapture() error {
	k.mu.Lock()
	if err := k.requireLocked(PageCapture, "leaving the capture page"); err != nil {
		k.mu.Unlock()
		return err
	}
	k.enterLocked(PageHome)
	k.mu.Unlock()

	k.changed()
	return nil
}

// Students fetches the registered students and keeps them for the home page.
func (k *Kiosk) Students(ctx context.Context) ([]backend.Student, error) {
	students, err := k.api.ListStudents(ctx)
	if err != nil {
		k.logger.Warn("could not list students", "error", err)
		return nil, k.fail(msgFetchStudents, err)
	}

	k.mu.Lock()
	k.students = students
	k.mu.Unlock()

	k.changed()
	return students, nil
}
