// Package mutate is the write facade for the reference entities. Every
// mutation validates before it touches the document store, and every
// caller-visible failure is a sentinel error handlers can map to a status
// code without string matching.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/mizan/internal/docstore"
	"github.com/dukerupert/mizan/internal/identity"
	"github.com/dukerupert/mizan/internal/model"
)

var (
	ErrDuplicateName  = errors.New("name already in use")
	ErrDuplicateEmail = errors.New("email already in use")
	ErrInvalidPeriod  = errors.New("invalid evaluation period")
	ErrInvalidType    = errors.New("unknown item type")
	ErrNotFound       = docstore.ErrNotFound
)

type Service struct {
	store    *docstore.Store
	identity *identity.Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(store *docstore.Store, idsvc *identity.Service, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		identity: idsvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type FamilyInput struct {
	FamilyName string `json:"familyName" validate:"required"`
	Saint      string `json:"saint" validate:"required"`
}

// AddFamily creates a family. Family names are unique, compared exactly.
func (s *Service) AddFamily(ctx context.Context, in FamilyInput) (string, error) {
	if err := s.validate.Struct(in); err != nil {
		return "", fmt.Errorf("validate family: %w", err)
	}
	if err := s.checkNameFree(ctx, docstore.ColFamilies, "familyName", in.FamilyName, ""); err != nil {
		return "", err
	}

	id, err := s.store.Add(ctx, docstore.ColFamilies, in)
	if err != nil {
		return "", fmt.Errorf("add family: %w", err)
	}
	s.logger.Info("family created", "id", id, "name", in.FamilyName)
	return id, nil
}

func (s *Service) UpdateFamily(ctx context.Context, id string, in FamilyInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("validate family: %w", err)
	}
	if err := s.checkNameFree(ctx, docstore.ColFamilies, "familyName", in.FamilyName, id); err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.ColFamilies, id, map[string]any{
		"familyName": in.FamilyName,
		"saint":      in.Saint,
	})
}

// DeleteFamily removes the family document. Members and evaluations that
// reference it are left in place.
func (s *Service) DeleteFamily(ctx context.Context, id string) error {
	return s.store.Delete(ctx, docstore.ColFamilies, id)
}

type ItemInput struct {
	ItemName string         `json:"itemName" validate:"required"`
	Type     model.ItemType `json:"itemType" validate:"required"`
	Price    float64        `json:"price" validate:"gte=0"`
}

func (s *Service) AddItem(ctx context.Context, in ItemInput) (string, error) {
	if err := s.validateItem(in); err != nil {
		return "", err
	}
	if err := s.checkNameFree(ctx, docstore.ColItems, "itemName", in.ItemName, ""); err != nil {
		return "", err
	}

	id, err := s.store.Add(ctx, docstore.ColItems, in)
	if err != nil {
		return "", fmt.Errorf("add item: %w", err)
	}
	s.logger.Info("item created", "id", id, "name", in.ItemName, "type", in.Type)
	return id, nil
}

func (s *Service) UpdateItem(ctx context.Context, id string, in ItemInput) error {
	if err := s.validateItem(in); err != nil {
		return err
	}
	if err := s.checkNameFree(ctx, docstore.ColItems, "itemName", in.ItemName, id); err != nil {
		return err
	}
	return s.store.Update(ctx, docstore.ColItems, id, map[string]any{
		"itemName": in.ItemName,
		"itemType": string(in.Type),
		"price":    in.Price,
	})
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.store.Delete(ctx, docstore.ColItems, id)
}

func (s *Service) validateItem(in ItemInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("validate item: %w", err)
	}
	if !model.ValidItemType(in.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidType, in.Type)
	}
	return nil
}

// SetPeriod replaces the single active evaluation period. Both bounds are
// calendar dates and the range must not be inverted.
func (s *Service) SetPeriod(ctx context.Context, from, to string) error {
	doc, err := model.NewPeriodDoc(from, to)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPeriod, err)
	}
	if doc.To.Before(doc.From) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidPeriod, to, from)
	}
	if err := s.store.Set(ctx, docstore.ColPeriods, docstore.DocCurrentPeriod, doc); err != nil {
		return fmt.Errorf("set period: %w", err)
	}
	s.logger.Info("evaluation period set", "from", from, "to", to)
	return nil
}

// SetControls replaces the evaluation controls singleton.
func (s *Service) SetControls(ctx context.Context, c model.EvaluationControls) error {
	if err := s.store.Set(ctx, docstore.ColSettings, docstore.DocControls, c); err != nil {
		return fmt.Errorf("set controls: %w", err)
	}
	s.logger.Info("evaluation controls set", "saveEnabled", c.SaveEnabled)
	return nil
}

type UserInput struct {
	FullName string       `json:"fullName" validate:"required"`
	Email    string       `json:"email" validate:"required,email"`
	Password string       `json:"password" validate:"required,min=8"`
	FamilyID string       `json:"familyId" validate:"required"`
	Role     model.Role   `json:"role" validate:"required,oneof=admin member"`
	Status   model.Status `json:"status" validate:"required,oneof=active inactive"`
}

// AddUser provisions an auth account for the new member and stores their
// user document. Provisioning runs server-side, so the acting admin stays
// signed in throughout.
func (s *Service) AddUser(ctx context.Context, in UserInput) (string, error) {
	if err := s.validate.Struct(in); err != nil {
		return "", fmt.Errorf("validate user: %w", err)
	}
	if err := s.checkEmailFree(ctx, in.Email, ""); err != nil {
		return "", err
	}

	uid, err := s.identity.Provision(ctx, in.Email, in.Password, in.FullName)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return "", ErrDuplicateEmail
		}
		return "", fmt.Errorf("provision account: %w", err)
	}

	id, err := s.store.Add(ctx, docstore.ColUsers, model.User{
		UID:      uid,
		FullName: in.FullName,
		Email:    in.Email,
		FamilyID: in.FamilyID,
		Role:     in.Role,
		Status:   in.Status,
	})
	if err != nil {
		return "", fmt.Errorf("add user: %w", err)
	}
	s.logger.Info("user created", "id", id, "uid", uid, "role", in.Role)
	return id, nil
}

type UserUpdate struct {
	FullName string       `json:"fullName" validate:"required"`
	FamilyID string       `json:"familyId" validate:"required"`
	Role     model.Role   `json:"role" validate:"required,oneof=admin member"`
	Status   model.Status `json:"status" validate:"required,oneof=active inactive"`
}

// UpdateUser rewrites the mutable fields of a user document. Email and UID
// are fixed at provisioning time.
func (s *Service) UpdateUser(ctx context.Context, id string, in UserUpdate) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("validate user: %w", err)
	}
	return s.store.Update(ctx, docstore.ColUsers, id, map[string]any{
		"fullName": in.FullName,
		"familyId": in.FamilyID,
		"role":     string(in.Role),
		"status":   string(in.Status),
	})
}

// DeleteUser removes the user document and the auth account behind it.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	doc, err := s.store.Get(ctx, docstore.ColUsers, id)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if doc == nil {
		return ErrNotFound
	}

	var u model.User
	if err := doc.Decode(&u); err != nil {
		return fmt.Errorf("decode user: %w", err)
	}

	if err := s.store.Delete(ctx, docstore.ColUsers, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if u.UID != "" {
		if err := s.identity.DeleteAccount(ctx, u.UID); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
	}
	s.logger.Info("user deleted", "id", id, "uid", u.UID)
	return nil
}

type SignUpInput struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FamilyID string `json:"familyId" validate:"required"`
}

// SignUp is public enrollment. The new user starts as an inactive member and
// gets no session; an admin activates the account before it can do anything.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (string, error) {
	if err := s.validate.Struct(in); err != nil {
		return "", fmt.Errorf("validate signup: %w", err)
	}
	if err := s.checkEmailFree(ctx, in.Email, ""); err != nil {
		return "", err
	}

	uid, err := s.identity.Register(ctx, in.Email, in.Password, in.FullName)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return "", ErrDuplicateEmail
		}
		return "", fmt.Errorf("register account: %w", err)
	}

	id, err := s.store.Add(ctx, docstore.ColUsers, model.User{
		UID:      uid,
		FullName: in.FullName,
		Email:    in.Email,
		FamilyID: in.FamilyID,
		Role:     model.RoleMember,
		Status:   model.StatusInactive,
	})
	if err != nil {
		return "", fmt.Errorf("add user: %w", err)
	}
	s.logger.Info("user signed up", "id", id, "uid", uid)
	return id, nil
}

func (s *Service) checkNameFree(ctx context.Context, collection, field, name, selfID string) error {
	docs, err := s.store.Query(ctx, collection, docstore.Where(field, name))
	if err != nil {
		return fmt.Errorf("check %s: %w", field, err)
	}
	for _, doc := range docs {
		if doc.ID != selfID {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
	}
	return nil
}

func (s *Service) checkEmailFree(ctx context.Context, email, selfID string) error {
	docs, err := s.store.Query(ctx, docstore.ColUsers, docstore.Where("email", email))
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	for _, doc := range docs {
		if doc.ID != selfID {
			return fmt.Errorf("%w: %q", ErrDuplicateEmail, email)
		}
	}
	return nil
}
