// Package store persists the resource registries and the allocation ledger
// behind gorm, and owns the transactional admission path that keeps the
// per-resource quota from being overshot by concurrent requests.
package store

import (
	"errors"
	"fmt"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ziyixi/slotify/slot"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Sentinel errors the HTTP layer maps to status codes. Wrapped errors keep
// the underlying detail; callers test with errors.Is.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation error")
	ErrDuplicateKey       = errors.New("duplicate natural key")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

const (
	bcryptCost        = 10
	minPasswordLength = 6
)

// Config selects the backing database. DatabaseURL takes precedence (Postgres
// deployments); otherwise SQLitePath is opened, defaulting to an in-memory
// database when empty.
type Config struct {
	SQLitePath  string
	DatabaseURL string
}

// Storage wraps the gorm handle together with the allocation policy applied
// inside the admission transaction.
type Storage struct {
	db     *gorm.DB
	policy slot.Policy
}

// Open connects to the configured database, runs migrations and returns a
// ready Storage.
func Open(cfg Config, policy slot.Policy) (*Storage, error) {
	var dialector gorm.Dialector
	switch {
	case cfg.DatabaseURL != "":
		dialector = postgres.Open(cfg.DatabaseURL)
	case cfg.SQLitePath != "":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		dialector = sqlite.Open(":memory:")
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if db.Dialector.Name() == "sqlite" {
		// gorm declares the cascading foreign keys; SQLite only honors them
		// with the pragma on.
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := db.AutoMigrate(&User{}, &Phone{}, &IP{}, &Slot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Infof("Database ready (%s)", db.Dialector.Name())
	return New(db, policy), nil
}

// New wraps an already-open gorm handle. Used by tests with in-memory SQLite.
func New(db *gorm.DB, policy slot.Policy) *Storage {
	return &Storage{db: db, policy: policy}
}

// Policy returns the allocation policy this storage enforces.
func (s *Storage) Policy() slot.Policy {
	return s.policy
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}

// ===== Phone registry =====

// PhoneUpdate carries the patchable phone fields; nil means "leave unchanged".
type PhoneUpdate struct {
	PhoneNumber *string
	Email       *string
	Remark      *string
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	if err := checkmail.ValidateFormat(email); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, email)
	}
	return nil
}

// CreatePhone registers a new phone. The phone number must be non-empty and
// unique; a collision surfaces as ErrDuplicateKey.
func (s *Storage) CreatePhone(phone *Phone) error {
	if phone.PhoneNumber == "" {
		return fmt.Errorf("%w: phone number is required", ErrValidation)
	}
	if err := validateEmail(phone.Email); err != nil {
		return err
	}
	return translate(s.db.Create(phone).Error)
}

// GetPhone fetches one phone by id.
func (s *Storage) GetPhone(id string) (*Phone, error) {
	var phone Phone
	if err := s.db.First(&phone, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &phone, nil
}

// ListPhones returns all phones, newest first.
func (s *Storage) ListPhones() ([]Phone, error) {
	var phones []Phone
	if err := s.db.Order("created_at DESC").Find(&phones).Error; err != nil {
		return nil, err
	}
	return phones, nil
}

// UpdatePhone patches metadata in place. The natural key may change but stays
// unique.
func (s *Storage) UpdatePhone(id string, upd PhoneUpdate) (*Phone, error) {
	changes := map[string]interface{}{}
	if upd.PhoneNumber != nil {
		if *upd.PhoneNumber == "" {
			return nil, fmt.Errorf("%w: phone number is required", ErrValidation)
		}
		changes["phone_number"] = *upd.PhoneNumber
	}
	if upd.Email != nil {
		if err := validateEmail(*upd.Email); err != nil {
			return nil, err
		}
		changes["email"] = *upd.Email
	}
	if upd.Remark != nil {
		changes["remark"] = *upd.Remark
	}

	if _, err := s.GetPhone(id); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		if err := s.db.Model(&Phone{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return nil, translate(err)
		}
	}
	return s.GetPhone(id)
}

// DeletePhone removes a phone and, in the same transaction, every allocation
// referencing it.
func (s *Storage) DeletePhone(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&Phone{}, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if err := tx.Where("phone_id = ?", id).Delete(&Slot{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Phone{}, "id = ?", id).Error
	})
}

// ===== IP registry =====

// IPUpdate carries the patchable IP fields; nil means "leave unchanged".
type IPUpdate struct {
	IPAddress *string
	Port      *string
	Username  *string
	Password  *string
	Provider  *string
	Remark    *string
}

// CreateIP registers a new IP. The address must be non-empty and unique.
func (s *Storage) CreateIP(ip *IP) error {
	if ip.IPAddress == "" {
		return fmt.Errorf("%w: IP address is required", ErrValidation)
	}
	return translate(s.db.Create(ip).Error)
}

// GetIP fetches one IP by id.
func (s *Storage) GetIP(id string) (*IP, error) {
	var ip IP
	if err := s.db.First(&ip, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &ip, nil
}

// ListIPs returns all IPs, newest first.
func (s *Storage) ListIPs() ([]IP, error) {
	var ips []IP
	if err := s.db.Order("created_at DESC").Find(&ips).Error; err != nil {
		return nil, err
	}
	return ips, nil
}

// UpdateIP patches metadata in place.
func (s *Storage) UpdateIP(id string, upd IPUpdate) (*IP, error) {
	changes := map[string]interface{}{}
	if upd.IPAddress != nil {
		if *upd.IPAddress == "" {
			return nil, fmt.Errorf("%w: IP address is required", ErrValidation)
		}
		changes["ip_address"] = *upd.IPAddress
	}
	if upd.Port != nil {
		changes["port"] = *upd.Port
	}
	if upd.Username != nil {
		changes["username"] = *upd.Username
	}
	if upd.Password != nil {
		changes["password"] = *upd.Password
	}
	if upd.Provider != nil {
		changes["provider"] = *upd.Provider
	}
	if upd.Remark != nil {
		changes["remark"] = *upd.Remark
	}

	if _, err := s.GetIP(id); err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		if err := s.db.Model(&IP{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return nil, translate(err)
		}
	}
	return s.GetIP(id)
}

// DeleteIP removes an IP and its allocations atomically.
func (s *Storage) DeleteIP(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&IP{}, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if err := tx.Where("ip_id = ?", id).Delete(&Slot{}).Error; err != nil {
			return err
		}
		return tx.Delete(&IP{}, "id = ?", id).Error
	})
}

// ===== Users =====

// CreateUser registers a credential, hashing the password with bcrypt.
func (s *Storage) CreateUser(username, password string) (*User, error) {
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &User{Username: username, Password: string(hash)}
	if err := s.db.Create(user).Error; err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// GetUserByUsername fetches one user by its login name.
func (s *Storage) GetUserByUsername(username string) (*User, error) {
	var user User
	if err := s.db.First(&user, "username = ?", username).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Authenticate verifies a username/password pair. A missing user and a wrong
// password both return ErrInvalidCredentials so callers cannot enumerate
// accounts.
func (s *Storage) Authenticate(username, password string) (*User, error) {
	user, err := s.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword rotates a user's password after verifying the current one.
func (s *Storage) ChangePassword(username, current, next string) error {
	if len(next) < minPasswordLength {
		return ErrWeakPassword
	}
	user, err := s.Authenticate(username, current)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.db.Model(&User{}).Where("id = ?", user.ID).Update("password", string(hash)).Error
}

// SeedAdmin creates the bootstrap admin account if no user with that name
// exists yet.
func (s *Storage) SeedAdmin(username, password string) error {
	_, err := s.GetUserByUsername(username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := s.CreateUser(username, password); err != nil {
		return err
	}
	log.Warnf("Seeded user %q with the default password; change it after first login", username)
	return nil
}
