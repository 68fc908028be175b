package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/backend"
	"github.com/kozaktomas/face-attendance/internal/camera"
)

type fakeSubmitter struct {
	calls  int
	images int
	reg    backend.StudentRegistration
	err    error
}

func (f *fakeSubmitter) RegisterStudent(ctx context.Context, reg backend.StudentRegistration, images []camera.Image) (*backend.RegisterResult, error) {
	f.calls++
	f.images = len(images)
	f.reg = reg
	if f.err != nil {
		return nil, f.err
	}
	return &backend.RegisterResult{Success: true}, nil
}

func validForm() Form {
	return Form{
		Name:             "Alice",
		EnrollmentNumber: "E100",
		Section:          "a",
		Semester:         "7",
	}
}

func fillBatch(n int) *Batch {
	b := NewBatch(10)
	for i := range n {
		b.Add(camera.Image{Data: []byte{byte(i)}, ContentType: "image/jpeg"})
	}
	return b
}

func TestParseBranch(t *testing.T) {
	tests := []struct {
		input    string
		expected Branch
		wantErr  bool
	}{
		{"", BranchCSE, false},
		{"it", BranchIT, false},
		{" ECE ", BranchECE, false},
		{"EE", BranchEE, false},
		{"MBA", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBranch(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBranch(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseBranch(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalize(t *testing.T) {
	f := Form{
		Name:             "  Zoé   Smith ",
		EnrollmentNumber: " E1 ",
		Section:          " b ",
		Semester:         " 3",
		Branch:           "ece",
	}.Normalize()

	if f.Name != "Zo\u00e9 Smith" {
		t.Errorf("expected NFC-composed name, got %q", f.Name)
	}
	if f.Section != "B" {
		t.Errorf("expected upper-case section, got %q", f.Section)
	}
	if f.EnrollmentNumber != "E1" || f.Semester != "3" {
		t.Errorf("expected trimmed fields, got %+v", f)
	}
	if f.Branch != BranchECE {
		t.Errorf("expected ECE, got %q", f.Branch)
	}

	if got := (Form{}).Normalize().Branch; got != DefaultBranch {
		t.Errorf("expected default branch, got %q", got)
	}
}

func TestValidateIdentity(t *testing.T) {
	if err := (Form{Name: "Alice"}).ValidateIdentity(); !errors.Is(err, ErrIdentityRequired) {
		t.Errorf("expected ErrIdentityRequired without enrollment number, got %v", err)
	}
	if err := (Form{EnrollmentNumber: "E1"}).ValidateIdentity(); !errors.Is(err, ErrIdentityRequired) {
		t.Errorf("expected ErrIdentityRequired without name, got %v", err)
	}
	if err := (Form{Name: "Alice", EnrollmentNumber: "E1"}).ValidateIdentity(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateSubmit(t *testing.T) {
	tests := []struct {
		name    string
		form    Form
		images  int
		wantErr error
	}{
		{"four images", validForm(), 4, ErrTooFewImages},
		{"zero images and empty form", Form{}, 0, ErrTooFewImages},
		{"five images", validForm(), 5, nil},
		{"missing semester", Form{Name: "A", EnrollmentNumber: "E", Section: "A"}, 5, ErrMissingFields},
		{"bad branch", Form{Name: "A", EnrollmentNumber: "E", Section: "A", Semester: "1", Branch: "MBA"}, 5, ErrUnknownBranch},
		{"bad fees", Form{Name: "A", EnrollmentNumber: "E", Section: "A", Semester: "1", Fees: "lots"}, 6, ErrInvalidFees},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubmit(tt.form.Normalize(), tt.images, 5)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSubmit_AlwaysRejectsBelowMinimum(t *testing.T) {
	forms := []Form{{}, validForm(), {Name: "X"}, {Name: "X", EnrollmentNumber: "Y", Section: "Z", Semester: "1", Fees: "10"}}
	for _, f := range forms {
		for n := range 5 {
			if err := ValidateSubmit(f.Normalize(), n, 5); !errors.Is(err, ErrTooFewImages) {
				t.Errorf("form %+v with %d images: expected ErrTooFewImages, got %v", f, n, err)
			}
		}
	}
}

func TestBatch(t *testing.T) {
	b := NewBatch(10)
	if b.Len() != 0 || b.Remaining() != 10 {
		t.Fatalf("unexpected empty batch state len=%d remaining=%d", b.Len(), b.Remaining())
	}

	for i := range 12 {
		if n := b.Add(camera.Image{Data: []byte{byte(i)}}); n != i+1 {
			t.Errorf("Add returned %d, want %d", n, i+1)
		}
	}
	if b.Len() != 12 {
		t.Errorf("soft cap must not block captures, got %d", b.Len())
	}
	if b.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", b.Remaining())
	}

	images := b.Images()
	for i, img := range images {
		if img.Data[0] != byte(i) {
			t.Errorf("image %d out of order", i)
		}
	}
	images[0] = camera.Image{}
	if first, _ := b.At(0); first.Empty() {
		t.Error("Images must return a copy")
	}

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("expected empty batch after reset, got %d", b.Len())
	}
	if _, ok := b.At(0); ok {
		t.Error("expected no image after reset")
	}
}

func TestRegistrar_BlocksFourImages(t *testing.T) {
	api := &fakeSubmitter{}
	r := NewRegistrar(api, 5)
	batch := fillBatch(4)

	_, err := r.Submit(context.Background(), validForm(), batch)
	if !errors.Is(err, ErrTooFewImages) {
		t.Fatalf("expected ErrTooFewImages, got %v", err)
	}
	if api.calls != 0 {
		t.Errorf("expected no request, got %d", api.calls)
	}
	if batch.Len() != 4 {
		t.Errorf("expected images kept, got %d", batch.Len())
	}

	batch.Add(camera.Image{Data: []byte{5}})
	if _, err := r.Submit(context.Background(), validForm(), batch); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if api.calls != 1 {
		t.Errorf("expected exactly 1 request, got %d", api.calls)
	}
	if api.images != 5 {
		t.Errorf("expected 5 images submitted, got %d", api.images)
	}
	if api.reg.Section != "A" || api.reg.Year != "7" || api.reg.Branch != "CSE" {
		t.Errorf("unexpected registration fields %+v", api.reg)
	}
	if batch.Len() != 0 {
		t.Errorf("expected batch cleared after success, got %d", batch.Len())
	}
}

func TestRegistrar_KeepsImagesOnFailure(t *testing.T) {
	api := &fakeSubmitter{err: &backend.APIError{StatusCode: 409, Detail: "Student already registered"}}
	r := NewRegistrar(api, 5)
	batch := fillBatch(6)

	_, err := r.Submit(context.Background(), validForm(), batch)
	if err == nil {
		t.Fatal("expected error")
	}
	if batch.Len() != 6 {
		t.Errorf("expected images kept for retry, got %d", batch.Len())
	}
}
