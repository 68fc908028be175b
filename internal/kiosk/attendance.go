package kiosk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Normalize trims the inputs and upper-cases the section.
func (f AttendanceForm) Normalize() AttendanceForm {
	return AttendanceForm{
		TeacherID: strings.TrimSpace(f.TeacherID),
		SubjectID: strings.TrimSpace(f.SubjectID),
		Section:   strings.ToUpper(strings.TrimSpace(f.Section)),
		Semester:  strings.TrimSpace(f.Semester),
	}
}

// ClassName is the class label sent with a new session.
func (f AttendanceForm) ClassName() string {
	return f.Section + "-" + f.Semester
}

// OpenRecognition moves from the home page to the recognition page.
func (k *Kiosk) OpenRecognition() error {
	k.mu.Lock()
	if err := k.requireLocked(PageHome, "opening recognition"); err != nil {
		k.mu.Unlock()
		return err
	}
	k.enterLocked(PageRecognition)
	k.mu.Unlock()

	k.changed()
	return nil
}

// Train retrains the model for one section and semester.
func (k *Kiosk) Train(ctx context.Context, section, semester string) (*backend.TrainResult, error) {
	in := AttendanceForm{Section: section, Semester: semester}.Normalize()

	k.mu.Lock()
	if err := k.requireLocked(PageRecognition, "training"); err != nil {
		k.mu.Unlock()
		return nil, err
	}
	rc := k.recognition
	if in.Section == "" || in.Semester == "" {
		k.mu.Unlock()
		return nil, k.fail(msgTrainInputs, fmt.Errorf("%w: section and semester are required", ErrInvalidInput))
	}
	if rc.training {
		k.mu.Unlock()
		return nil, ErrBusy
	}
	rc.training = true
	rc.trained = nil
	rc.attendance.Section = in.Section
	rc.attendance.Semester = in.Semester
	k.mu.Unlock()

	k.notes.Info(msgTraining)
	k.changed()

	result, err := k.api.Train(ctx, in.Section, in.Semester)

	k.mu.Lock()
	rc.training = false
	if err == nil {
		rc.trained = result
	}
	k.mu.Unlock()
	k.changed()

	if err != nil {
		k.logger.Warn("training failed", "section", in.Section, "semester", in.Semester, "error", err)
		if backend.IsAPIError(err) {
			return result, k.fail(backend.DetailOf(err, msgTrainingFailed), err)
		}
		return nil, k.fail(msgTrainRequest, err)
	}

	k.logger.Info("model trained", "section", in.Section, "semester", in.Semester, "students", result.StudentsTrained)
	k.notes.Success(fmt.Sprintf(msgTrained, result.StudentsTrained))
	return result, nil
}

// StartAttendance opens a session on the backend and, once it is confirmed,
// starts the recognition loop. A rejected session never starts the loop.
func (k *Kiosk) StartAttendance(ctx context.Context, f AttendanceForm) (*backend.AttendanceSession, error) {
	in := f.Normalize()

	k.mu.Lock()
	if err := k.requireLocked(PageRecognition, "starting attendance"); err != nil {
		k.mu.Unlock()
		return nil, err
	}
	rc := k.recognition
	rc.attendance = in
	if in.TeacherID == "" || in.SubjectID == "" || in.Section == "" || in.Semester == "" {
		k.mu.Unlock()
		return nil, k.fail(msgSessionInputs, fmt.Errorf("%w: teacher, subject, section and semester are required", ErrInvalidInput))
	}
	if rc.starting || k.loop.Active() {
		k.mu.Unlock()
		return nil, ErrBusy
	}
	rc.starting = true
	epoch := k.epoch
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		rc.starting = false
		k.mu.Unlock()
		k.changed()
	}()

	session, err := k.api.StartSession(ctx, backend.SessionRequest{
		TeacherID:       in.TeacherID,
		SubjectID:       in.SubjectID,
		Section:         in.Section,
		Semester:        in.Semester,
		ClassName:       in.ClassName(),
		DurationMinutes: k.settings.SessionDuration,
	})
	if err != nil {
		k.logger.Warn("could not start session", "teacher_id", in.TeacherID, "subject_id", in.SubjectID, "error", err)
		if backend.IsAPIError(err) {
			return nil, k.fail(backend.DetailOf(err, msgSessionFailed), err)
		}
		return nil, k.fail(msgSessionRequest, err)
	}

	k.mu.Lock()
	stale := k.epoch != epoch
	k.mu.Unlock()
	if stale {
		return session, fmt.Errorf("%w: recognition page was closed", ErrWrongPage)
	}

	k.logger.Info("attendance session started", "session_id", session.ID, "class", session.ClassName)
	k.notes.Success(msgSessionStarted)

	if err := k.loop.Start(ctx, session); err != nil {
		k.logger.Warn("could not start recognition", "error", err)
		var de *camera.DeviceError
		if errors.As(err, &de) {
			return session, k.fail(camera.Diagnostic(err), err)
		}
		return session, k.fail(msgRecognitionFailed, err)
	}

	// The page may have been left while the camera was warming up.
	k.mu.Lock()
	stale = k.epoch != epoch
	k.mu.Unlock()
	if stale {
		k.loop.Stop()
		return session, fmt.Errorf("%w: recognition page was closed", ErrWrongPage)
	}
	return session, nil
}

// StopRecognition stops the loop and releases the camera. The kiosk stays on
// the recognition page. Calling it while idle is harmless.
func (k *Kiosk) StopRecognition() error {
	k.mu.Lock()
	if err := k.requireLocked(PageRecognition, "stopping recognition"); err != nil {
		k.mu.Unlock()
		return err
	}
	k.mu.Unlock()

	k.loop.Stop()
	k.changed()
	return nil
}

// Frame returns the last annotated recognition frame.
func (k *Kiosk) Frame() (camera.Image, bool) {
	return k.loop.Frame()
}

// Result returns the latest recognition match.
func (k *Kiosk) Result() (recognition.Result, bool) {
	return k.loop.Result()
}
