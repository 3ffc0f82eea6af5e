package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/sujalbistaa/krishi/internal/errorz"
	"github.com/sujalbistaa/krishi/internal/models"
)

var (
	ErrPhoneTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Phone      string
	Password   string
	Name       string
	Region     models.Region
	Background models.Background
}

// ProfileInput lists the fields a user may change on their own profile.
type ProfileInput struct {
	Name       *string
	Region     *models.Region
	Background *models.Background
}

// Service manages the identity store.
type Service struct {
	db  *gorm.DB
	cfg Config
}

func NewService(db *gorm.DB, cfg Config) *Service {
	return &Service{db: db, cfg: cfg}
}

// Register creates a farmer account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, string, error) {
	phone := strings.TrimSpace(in.Phone)
	switch {
	case phone == "":
		return models.User{}, "", errorz.Required("phone")
	case in.Password == "":
		return models.User{}, "", errorz.Required("password")
	case strings.TrimSpace(in.Name) == "":
		return models.User{}, "", errorz.Required("name")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return models.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Phone:        phone,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         models.RoleFarmer,
		Region:       in.Region,
		Background:   in.Background,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("phone = ?", phone).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrPhoneTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPhoneTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.User{}, "", err
	}

	token, err := GenerateToken(s.cfg, user)
	if err != nil {
		return models.User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return user, token, nil
}

// Login checks a phone/password pair and returns the user with a fresh token.
func (s *Service) Login(ctx context.Context, phone, password string) (models.User, string, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("phone = ?", strings.TrimSpace(phone)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, "", ErrInvalidCredentials
		}
		return models.User{}, "", err
	}
	if !CheckPassword(password, user.PasswordHash) {
		return models.User{}, "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.cfg, user)
	if err != nil {
		return models.User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return user, token, nil
}

// Profile returns the user with the given id.
func (s *Service) Profile(ctx context.Context, userID uint) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, errorz.NotFound("user", userID)
		}
		return models.User{}, err
	}
	return user, nil
}

// UpdateProfile changes name, region and background. Role, approval,
// reputation and counters are never touched here.
func (s *Service) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (models.User, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return models.User{}, errorz.Required("name")
		}
		updates["name"] = name
	}
	if r := in.Region; r != nil {
		updates["region_state"] = r.State
		updates["region_district"] = r.District
		updates["region_village"] = r.Village
	}
	if b := in.Background; b != nil {
		updates["background_age"] = b.Age
		updates["background_land_holding"] = b.LandHolding
		updates["background_income"] = b.Income
		updates["background_farmer_type"] = b.FarmerType
		updates["background_category"] = b.Category
		updates["background_gender"] = b.Gender
	}

	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			return models.User{}, res.Error
		}
	}
	return s.Profile(ctx, userID)
}
