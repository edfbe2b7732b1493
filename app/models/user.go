package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"

	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	OrganizationID   uint       `gorm:"not null;index" json:"organization_id"`
	Name             string     `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email            string     `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password         string     `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role             string     `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status           string     `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active disabled"`
	APIKeyHash       string     `gorm:"type:varchar(64);index" json:"-"`
	APIKeyLastUsedAt *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt      *time.Time `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(orgID uint, name string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		OrganizationID: orgID,
		Name:           name,
		Email:          email,
		Password:       pw,
		Role:           ROLE_USER,
		Status:         STATUS_ACTIVE,
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// GenerateAPIKey creates a new random API key, stores its hash on the user
// and returns the plaintext key. The plaintext is never persisted.
func (u *User) GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	key := "sk_" + hex.EncodeToString(b)
	u.APIKeyHash = HashAPIKey(key)
	return key, nil
}

// HashAPIKey returns the hex SHA-256 digest used to look up API keys.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}
