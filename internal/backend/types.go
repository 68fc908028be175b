package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Text is a string field that the API sometimes sends as a number
// (enrollment numbers, semesters, ids).
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal text: %w", err)
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unmarshal text: %w", err)
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string {
	return string(t)
}

// StudentRegistration holds the form fields sent with /register/student.
// Optional fields are omitted from the request when empty.
type StudentRegistration struct {
	Name             string
	EnrollmentNumber string
	Section          string
	Year             string
	Branch           string
	Email            string
	Mobile           string
	Fees             string
}

// RegisterResult is the /register/student response.
type RegisterResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Student is a registered student record from /debug/students.
type Student struct {
	EnrollmentNumber Text   `json:"enrollment_number"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Section          string `json:"section"`
	Semester         Text   `json:"semester"`
	Branch           string `json:"branch"`
}

type studentsResponse struct {
	Students []Student `json:"students"`
}

// TrainResult is the /train response.
type TrainResult struct {
	Success         bool   `json:"success"`
	StudentsTrained int    `json:"students_trained"`
	Message         string `json:"message,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

// SessionRequest holds the /attendance/start-session form fields.
type SessionRequest struct {
	TeacherID       string
	SubjectID       string
	Section         string
	Semester        string
	ClassName       string
	DurationMinutes int
}

// AttendanceSession is the backend-confirmed session. It is never mutated
// after creation.
type AttendanceSession struct {
	ID              string `json:"session_id"`
	TeacherID       string `json:"teacher_id"`
	SubjectID       string `json:"subject_id"`
	Section         string `json:"section"`
	Semester        string `json:"semester"`
	ClassName       string `json:"class_name"`
	DurationMinutes int    `json:"duration_minutes"`
	StartTime       string `json:"start_time,omitempty"`
}

// UnmarshalJSON accepts either "session_id" or "id" and numeric or string
// values for the identifier fields.
func (s *AttendanceSession) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal session: %w", err)
	}

	text := func(keys ...string) string {
		for _, key := range keys {
			v, ok := raw[key]
			if !ok {
				continue
			}
			var t Text
			if err := json.Unmarshal(v, &t); err == nil && t != "" {
				return t.String()
			}
		}
		return ""
	}

	s.ID = text("session_id", "id")
	s.TeacherID = text("teacher_id")
	s.SubjectID = text("subject_id")
	s.Section = text("section")
	s.Semester = text("semester", "year")
	s.ClassName = text("class_name")
	s.StartTime = text("start_time", "started_at")
	if d := text("duration_minutes"); d != "" {
		if n, err := strconv.Atoi(d); err == nil {
			s.DurationMinutes = n
		}
	}
	return nil
}

type startSessionResponse struct {
	Session *AttendanceSession `json:"session"`
}

// Recognition is the outcome of /attendance/recognize-and-mark. Success is
// false when no registered face matched.
type Recognition struct {
	Success    bool
	Name       string
	ID         string
	Confidence float64
	Status     string
	Message    string
}

type recognizeResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Recognition *struct {
		Name       string  `json:"name"`
		ID         Text    `json:"id"`
		Confidence float64 `json:"confidence"`
	} `json:"recognition"`
}
