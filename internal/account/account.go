// Package account keeps dashboard users and their sessions in process memory.
package account

import (
	"regexp"
	"strings"

	"github.com/joelkehle/contract-analyzer/internal/apperr"
)

type Role string

const (
	RoleClient Role = "client"
	RoleLawyer Role = "lawyer"
)

const MinPasswordChars = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User is the public view of an account.
type User struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       Role   `json:"role"`
	FirmName   string `json:"firm_name,omitempty"`
	Country    string `json:"country,omitempty"`
	BarNumber  string `json:"bar_number,omitempty"`
	IsVerified bool   `json:"is_verified"`
}

// DemoUser stands in for callers without a session.
func DemoUser() User {
	return User{Name: "Demo User", Role: RoleClient}
}

type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            Role   `json:"role"`
	TermsAccepted   bool   `json:"terms_accepted"`
	FirmName        string `json:"firm_name"`
	Country         string `json:"country"`
	BarNumber       string `json:"bar_number"`
}

type LoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TermsAccepted bool   `json:"terms_accepted"`
}

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func invalid(msg string) error {
	return apperr.New(apperr.CodeValidation, msg)
}

// Validate checks a signup form in the order the form reports problems; only the first
// problem is returned.
func (r SignupRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	email := strings.TrimSpace(r.Email)
	if name == "" || email == "" || r.Password == "" || r.ConfirmPassword == "" || r.Role == "" {
		return invalid("Please fill in all required fields")
	}
	if r.Role != RoleClient && r.Role != RoleLawyer {
		return invalid("Please select a valid role")
	}
	if !ValidEmail(email) {
		return invalid("Please enter a valid email address")
	}
	if r.Password != r.ConfirmPassword {
		return invalid("Passwords do not match")
	}
	if len([]rune(r.Password)) < MinPasswordChars {
		return invalid("Password must be at least 8 characters")
	}
	if !r.TermsAccepted {
		return invalid("Please accept Terms & Conditions")
	}
	if r.Role == RoleLawyer && (strings.TrimSpace(r.FirmName) == "" || strings.TrimSpace(r.Country) == "") {
		return invalid("Please fill in firm details")
	}
	return nil
}

func (r LoginRequest) Validate() error {
	if !r.TermsAccepted {
		return invalid("Please accept Terms & Conditions")
	}
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return invalid("Please fill in all fields")
	}
	if !ValidEmail(strings.TrimSpace(r.Email)) {
		return invalid("Please enter a valid email address")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
