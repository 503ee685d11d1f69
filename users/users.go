package users

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-tab-session/authapi"
)

// RoleType is the user's role within the restaurant
type RoleType string

const (
	RoleAdmin    RoleType = "admin"    // Manages staff, menus and settings
	RoleStaff    RoleType = "staff"    // Handles orders and reservations
	RoleCustomer RoleType = "customer" // Places orders; the default for self-registration
)

const minPasswordLength = 6

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	Role         RoleType  `json:"role"`
	DateJoined   time.Time `json:"date_joined,omitempty"`
	LastLogin    time.Time `json:"last_login,omitempty"`
	Blocked      bool      `json:"blocked,omitempty"`
}

// Identity is the public view of the user returned to clients
func (u *User) Identity() authapi.Identity {
	return authapi.Identity{
		Email: u.Email,
		ID:    u.ID,
		Role:  string(u.Role),
	}
}

// NormalizeEmail lower-cases and trims an email address for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials checks the fields required to register
func ValidateCredentials(email, password string) error {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return errors.New("A valid email address is required")
	}
	if len(password) < minPasswordLength {
		return errors.Errorf("Password must be at least %d characters long", minPasswordLength)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a password against the user's hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}
