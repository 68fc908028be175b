package kiosk

import "errors"

// Operator-facing messages.
const (
	msgIdentityRequired   = "Please enter Name and Enrollment Number"
	msgCameraStarted      = "Camera started successfully"
	msgVideoNotReady      = "Video not ready. Please wait..."
	msgTooFewImages       = "Please capture at least %d images"
	msgMissingFields      = "Please fill all required fields (Name, Enrollment Number, Section, Semester)"
	msgRegistering        = "Registering... Please wait"
	msgRegistered         = "Student registered successfully!"
	msgRegistrationFailed = "Registration failed"
	msgNetworkError       = "Network error. Please try again."
	msgFetchStudents      = "Failed to fetch students"
	msgTrainInputs        = "Please enter Section and Semester to train model"
	msgTraining           = "Training model... This may take a few minutes"
	msgTrained            = "Model trained successfully! %d students trained"
	msgTrainingFailed     = "Training failed"
	msgTrainRequest       = "Failed to train model"
	msgSessionInputs      = "Please fill Teacher ID, Subject ID, Section, and Semester"
	msgSessionStarted     = "Attendance session started!"
	msgSessionFailed      = "Failed to start session"
	msgSessionRequest     = "Failed to start attendance session"
	msgRecognitionFailed  = "Failed to start recognition"
)

// Error is a failed action together with the message shown to the operator.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the operator-facing message for err.
func Message(err error) string {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
