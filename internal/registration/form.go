// Package registration holds the student registration form, its validation
// gates, and the ordered sequence of captured face images.
package registration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-attendance/internal/backend"
)

// Branch is the closed set of departments a student can belong to.
type Branch string

const (
	BranchCSE Branch = "CSE"
	BranchIT  Branch = "IT"
	BranchECE Branch = "ECE"
	BranchME  Branch = "ME"
	BranchCE  Branch = "CE"
	BranchEE  Branch = "EE"
)

// DefaultBranch is used when the operator does not pick one.
const DefaultBranch = BranchCSE

// Branches lists every valid branch in display order.
var Branches = []Branch{BranchCSE, BranchIT, BranchECE, BranchME, BranchCE, BranchEE}

var (
	ErrIdentityRequired = errors.New("name and enrollment number are required")
	ErrMissingFields    = errors.New("missing required fields")
	ErrTooFewImages     = errors.New("too few images")
	ErrUnknownBranch    = errors.New("unknown branch")
	ErrInvalidFees      = errors.New("fees must be a number")
)

// ParseBranch accepts a branch name in any case. Empty input yields the default.
func ParseBranch(s string) (Branch, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultBranch, nil
	}
	for _, b := range Branches {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBranch, s)
}

// Form is the registration form. Section and Semester identify the class the
// student is trained into; Semester is sent to the backend as "year".
type Form struct {
	Name             string `json:"name"`
	EnrollmentNumber string `json:"enrollment_number"`
	Section          string `json:"section"`
	Semester         string `json:"semester"`
	Branch           Branch `json:"branch,omitempty"`
	Email            string `json:"email,omitempty"`
	Mobile           string `json:"mobile,omitempty"`
	Fees             string `json:"fees,omitempty"`
}

var upper = cases.Upper(language.Und)

// Normalize trims every field, composes the name to NFC, upper-cases the
// section and defaults the branch.
func (f Form) Normalize() Form {
	f.Name = norm.NFC.String(strings.Join(strings.Fields(f.Name), " "))
	f.EnrollmentNumber = strings.TrimSpace(f.EnrollmentNumber)
	f.Section = upper.String(strings.TrimSpace(f.Section))
	f.Semester = strings.TrimSpace(f.Semester)
	f.Email = strings.TrimSpace(f.Email)
	f.Mobile = strings.TrimSpace(f.Mobile)
	f.Fees = strings.TrimSpace(f.Fees)
	if strings.TrimSpace(string(f.Branch)) == "" {
		f.Branch = DefaultBranch
	} else {
		f.Branch = Branch(strings.ToUpper(strings.TrimSpace(string(f.Branch))))
	}
	return f
}

// ValidateIdentity gates opening the camera: name and enrollment number must
// be present.
func (f Form) ValidateIdentity() error {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.EnrollmentNumber) == "" {
		return ErrIdentityRequired
	}
	return nil
}

// Validate checks required and typed fields.
func (f Form) Validate() error {
	var missing []string
	if strings.TrimSpace(f.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(f.EnrollmentNumber) == "" {
		missing = append(missing, "enrollment_number")
	}
	if strings.TrimSpace(f.Section) == "" {
		missing = append(missing, "section")
	}
	if strings.TrimSpace(f.Semester) == "" {
		missing = append(missing, "semester")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	if _, err := ParseBranch(string(f.Branch)); err != nil {
		return err
	}
	if f.Fees != "" {
		if _, err := strconv.ParseFloat(f.Fees, 64); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidFees, f.Fees)
		}
	}
	return nil
}

// ValidateSubmit is the submission gate: at least minImages images and a
// valid form. The image count is checked first.
func ValidateSubmit(f Form, images, minImages int) error {
	if images < minImages {
		return fmt.Errorf("%w: captured %d, need at least %d", ErrTooFewImages, images, minImages)
	}
	return f.Validate()
}

// Registration converts the form to the backend request fields.
func (f Form) Registration() backend.StudentRegistration {
	branch := f.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	return backend.StudentRegistration{
		Name:             f.Name,
		EnrollmentNumber: f.EnrollmentNumber,
		Section:          f.Section,
		Year:             f.Semester,
		Branch:           string(branch),
		Email:            f.Email,
		Mobile:           f.Mobile,
		Fees:             f.Fees,
	}
}
