package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/sitesmith/sitesmith/app/models"
	"github.com/sitesmith/sitesmith/internal/pkg/billing"
	"github.com/sitesmith/sitesmith/internal/pkg/database"
)

// AuthController handles account registration and API key issuance. Keys are
// the only credential the API accepts; the plaintext is returned exactly once
// and only its hash is stored.
type AuthController struct {
	repo     billing.Repository
	validate *validator.Validate
}

func NewAuthController(repo billing.Repository) *AuthController {
	return &AuthController{repo: repo, validate: validator.New()}
}

type registerRequest struct {
	OrganizationName string `json:"organization_name" validate:"required,min=2,max=150"`
	Name             string `json:"name" validate:"required,min=3,max=150"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=6"`
}

// Register creates an organization with its first user. New organizations
// start on the free plan; the subscription row appears on first use.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}
	if err := ac.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	db := database.GetDB()

	var existing models.User
	if err := db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email_taken", "message": "Email is already registered"})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[Auth] email lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	var user *models.User
	var apiKey string
	err := db.Transaction(func(tx *gorm.DB) error {
		org := &models.Organization{Name: req.OrganizationName, BillingEmail: req.Email}
		if err := tx.Create(org).Error; err != nil {
			return err
		}

		u, err := models.CreateUser(org.ID, req.Name, req.Email, req.Password)
		if err != nil {
			return err
		}
		key, err := u.GenerateAPIKey()
		if err != nil {
			return err
		}
		if err := tx.Create(u).Error; err != nil {
			return err
		}

		user = u
		apiKey = key
		return nil
	})
	if err != nil {
		log.Errorf("[Auth] registration failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Registration failed"})
	}

	// Seed the free subscription row outside the transaction; the reconciler
	// would create it on first webhook anyway.
	if _, err := ac.repo.GetOrCreateSubscription(user.OrganizationID); err != nil {
		log.Warnf("[Auth] failed to seed subscription for org %d: %v", user.OrganizationID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user_id":         user.ID,
		"organization_id": user.OrganizationID,
		"api_key":         apiKey,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login verifies the password and rotates the user's API key. The previous
// key stops working immediately.
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}
	if err := ac.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	db := database.GetDB()

	var user models.User
	if err := db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
	}
	if !models.CheckPasswordHash(req.Password, user.Password) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
	}
	if !user.IsActive() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "User inactive"})
	}

	apiKey, err := user.GenerateAPIKey()
	if err != nil {
		log.Errorf("[Auth] api key generation failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}

	now := time.Now()
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"api_key_hash": user.APIKeyHash, "last_login_at": now}).Error; err != nil {
		log.Errorf("[Auth] failed to persist api key for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Login failed"})
	}

	return c.JSON(fiber.Map{
		"user_id":         user.ID,
		"organization_id": user.OrganizationID,
		"api_key":         apiKey,
	})
}
