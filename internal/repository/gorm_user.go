package repository

import (
	"fmt"

	userPkg "github.com/finsight/scripts-backend/internal/user"
	"github.com/finsight/scripts-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormUserRepository implements the user.Repository interface with GORM optimizations
type gormUserRepository struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewGORMUserRepository creates a new GORM-based user repository
func NewGORMUserRepository(db *gorm.DB, log *logger.Logger) userPkg.Repository {
	return &gormUserRepository{
		db:     db,
		logger: log.WithComponent("gorm-user-repository"),
	}
}

func (r *gormUserRepository) Create(user *userPkg.User) error {
	r.logger.Info("Creating user " + user.ID.String() + " with username " + user.Username)

	if err := r.db.Create(user).Error; err != nil {
		r.logger.Error("Failed to create user " + user.Username + ": " + err.Error())
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Info("User created successfully: " + user.ID.String())

	return nil
}

func (r *gormUserRepository) FindByID(id uuid.UUID) (*userPkg.User, error) {
	var user userPkg.User

	// Use primary key lookup for optimal performance
	err := r.db.First(&user, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			r.logger.Info("User not found by ID: " + id.String())
			return nil, fmt.Errorf("user not found")
		}

		r.logger.Error("Database error finding user by ID " + id.String() + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &user, nil
}

func (r *gormUserRepository) FindByIdentifier(identifier string) (*userPkg.User, error) {
	var user userPkg.User

	// Login identifier may be either username or email
	err := r.db.Where("username = ? OR email = ?", identifier, identifier).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			r.logger.Info("User not found by identifier: " + identifier)
			return nil, fmt.Errorf("user not found")
		}

		r.logger.Error("Database error finding user by identifier " + identifier + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &user, nil
}

func (r *gormUserRepository) FindByUniqueFields(username, email, phoneNumber string) (*userPkg.User, error) {
	var user userPkg.User

	err := r.db.Where("username = ? OR email = ? OR phone_number = ?", username, email, phoneNumber).
		First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}

		r.logger.Error("Database error checking unique fields for " + username + ": " + err.Error())
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &user, nil
}

func (r *gormUserRepository) Update(user *userPkg.User) error {
	// Use Save() for updates with GORM optimizations
	if err := r.db.Save(user).Error; err != nil {
		r.logger.Error("Failed to update user " + user.ID.String() + ": " + err.Error())
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}
