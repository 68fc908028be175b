package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-attendance/internal/camera"
)

// API endpoints.
const (
	endpointRegister  = "register/student"
	endpointStudents  = "debug/students"
	endpointTrain     = "train"
	endpointStart     = "attendance/start-session"
	endpointRecognize = "attendance/recognize-and-mark"
)

// RegisterStudent submits the form fields and every captured image in a
// single multipart request. Images are sent as repeated "images" parts.
func (c *Client) RegisterStudent(ctx context.Context, reg StudentRegistration, images []camera.Image) (*RegisterResult, error) {
	if len(images) == 0 {
		return nil, errors.New("no images to register")
	}

	f := &form{}
	f.add("name", reg.Name)
	f.add("enrollment_number", reg.EnrollmentNumber)
	f.add("section", reg.Section)
	f.add("year", reg.Year)
	f.add("branch", reg.Branch)
	f.addOptional("email", reg.Email)
	f.addOptional("mobile", reg.Mobile)
	f.addOptional("fees", reg.Fees)

	for i, img := range images {
		f.addFile("images", fmt.Sprintf("image_%d.jpg", i), img.ContentType, img.Reader())
	}

	result, err := doPostForm[RegisterResult](ctx, c, endpointRegister, f)
	if err != nil {
		return nil, fmt.Errorf("register student: %w", err)
	}
	return result, nil
}

// ListStudents returns every registered student.
func (c *Client) ListStudents(ctx context.Context) ([]Student, error) {
	result, err := doGetJSON[studentsResponse](ctx, c, endpointStudents)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return result.Students, nil
}

// Train retrains the recognition model for one section and semester. A 2xx
// response with success=false is reported as an *APIError.
func (c *Client) Train(ctx context.Context, section, year string) (*TrainResult, error) {
	f := &form{}
	f.add("section", section)
	f.add("year", year)

	result, err := doPostForm[TrainResult](ctx, c, endpointTrain, f)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if !result.Success {
		detail := result.Detail
		if detail == "" {
			detail = result.Message
		}
		return result, &APIError{StatusCode: http.StatusOK, Detail: detail}
	}
	return result, nil
}

// StartSession opens an attendance session on the backend.
func (c *Client) StartSession(ctx context.Context, req SessionRequest) (*AttendanceSession, error) {
	f := &form{}
	f.add("teacher_id", req.TeacherID)
	f.add("subject_id", req.SubjectID)
	f.add("section", req.Section)
	f.add("semester", req.Semester)
	f.add("class_name", req.ClassName)
	f.add("duration_minutes", strconv.Itoa(req.DurationMinutes))

	result, err := doPostForm[startSessionResponse](ctx, c, endpointStart, f)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if result.Session == nil {
		return nil, errors.New("start session: response has no session")
	}

	// Fill in what we sent when the backend echoes only the id.
	s := *result.Session
	if s.TeacherID == "" {
		s.TeacherID = req.TeacherID
	}
	if s.SubjectID == "" {
		s.SubjectID = req.SubjectID
	}
	if s.Section == "" {
		s.Section = req.Section
	}
	if s.Semester == "" {
		s.Semester = req.Semester
	}
	if s.ClassName == "" {
		s.ClassName = req.ClassName
	}
	if s.DurationMinutes == 0 {
		s.DurationMinutes = req.DurationMinutes
	}
	return &s, nil
}

// RecognizeAndMark submits one frame for recognition. A response without a
// match returns Success=false and no error.
func (c *Client) RecognizeAndMark(ctx context.Context, img camera.Image, section, year string) (*Recognition, error) {
	f := &form{}
	f.addFile("image", "frame.jpg", img.ContentType, img.Reader())
	f.add("section", section)
	f.add("year", year)

	result, err := doPostForm[recognizeResponse](ctx, c, endpointRecognize, f)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	rec := &Recognition{
		Success: result.Success,
		Status:  result.Status,
		Message: result.Message,
	}
	if result.Success && result.Recognition != nil {
		rec.Name = result.Recognition.Name
		rec.ID = result.Recognition.ID.String()
		rec.Confidence = result.Recognition.Confidence
	} else {
		rec.Success = false
	}
	return rec, nil
}
