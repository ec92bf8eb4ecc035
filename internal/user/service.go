package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/user/entity"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Store is the persistence the service needs. *repo.UserRepo satisfies it.
// Lookups report a missing row as sql.ErrNoRows.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
}

// UpdateInput carries a partial profile update; nil fields are left alone.
type UpdateInput struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Password  *string `json:"password"`
}

const invalidCredentials = "invalid email or password"

// UserService is the credential store: registration, password verification
// and profile updates.
type UserService struct {
	store    Store
	hasher   PasswordHasher
	validate *validator.Validate
	logger   *zap.SugaredLogger
	// dummyHash is compared against when the email is unknown so both
	// failure branches cost one hash comparison.
	dummyHash string
}

func NewUserService(store Store, hasher PasswordHasher, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: DefaultBcryptCost}
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	dummy, _, _ := hasher.Hash("dummy-Password-1!")
	return &UserService{store: store, hasher: hasher, validate: v, logger: logger, dummyHash: dummy}
}

var (
	ErrDuplicateEmail = apperr.New(apperr.ErrConflict, "email already registered")
	ErrBadCredentials = apperr.New(apperr.ErrAuthentication, invalidCredentials)
)

// Register validates the payload, hashes the password once and stores the user.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	if err := s.validate.Struct(in); err != nil {
		return nil, fieldErrors(err)
	}
	if err := CheckPasswordPolicy(in.Password); err != nil {
		return nil, err
	}

	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{
		Email:        in.Email,
		PasswordHash: hash,
		PasswordAlgo: algo,
		FirstName:    in.FirstName,
		LastName:     optional(in.LastName),
	}
	if err := s.store.Create(ctx, u); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, apperr.Storage("create user", err)
	}
	s.logger.Infow("user registered", "user_id", u.ID)
	return u, nil
}

// Verify checks an email/password pair. Both failure branches return the
// same ErrBadCredentials; only the log line tells them apart.
func (s *UserService) Verify(ctx context.Context, email, password string) (*entity.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.hasher.Verify(s.dummyHash, password)
			s.logger.Debugw("login failed", "reason", "unknown email")
			return nil, ErrBadCredentials
		}
		return nil, apperr.Storage("get user by email", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		s.logger.Debugw("login failed", "reason", "password mismatch", "user_id", u.ID)
		return nil, ErrBadCredentials
	}
	return u, nil
}

// Get returns the user with the given id.
func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.Storage("get user", err)
	}
	return u, nil
}

// Update applies a partial profile update. A present password is checked
// against the policy and hashed exactly once before the write.
func (s *UserService) Update(ctx context.Context, id int64, in UpdateInput) (*entity.User, error) {
	fields := map[string]string{}
	if in.Email != nil {
		e := normalizeEmail(*in.Email)
		if err := s.validate.Var(e, "required,email,max=254"); err != nil {
			fields["email"] = "must be a valid email address"
		}
		in.Email = &e
	}
	if in.FirstName != nil {
		f := strings.TrimSpace(*in.FirstName)
		if f == "" {
			fields["first_name"] = "required"
		}
		in.FirstName = &f
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}
	if in.Password != nil {
		if err := CheckPasswordPolicy(*in.Password); err != nil {
			return nil, err
		}
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = optional(*in.LastName)
	}
	if in.Password != nil {
		hash, algo, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash, u.PasswordAlgo = hash, algo
	}

	if err := s.store.Update(ctx, u); err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, ErrDuplicateEmail
		case errors.Is(err, sql.ErrNoRows):
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.Storage("update user", err)
	}
	s.logger.Infow("user updated", "user_id", u.ID, "password_changed", in.Password != nil)
	return u, nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(map[string]string{"_": err.Error()})
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields[fe.Field()] = "required"
		case "email":
			fields[fe.Field()] = "must be a valid email address"
		default:
			fields[fe.Field()] = "invalid (" + fe.Tag() + ")"
		}
	}
	return apperr.Validation(fields)
}
