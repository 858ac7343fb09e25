package buyers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
)

const tempPasswordLength = 24

// Identity is the guest checkout contact supplied in place of a session.
type Identity struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Country string `json:"country" validate:"required"`
}

// Directory resolves guest identities to buyer accounts.
type Directory struct {
	store    Store
	hasher   *security.Hasher
	validate *validator.Validate
}

// NewDirectory builds a directory over store.
func NewDirectory(store Store, password config.PasswordConfig) *Directory {
	return &Directory{store: store, hasher: security.NewHasher(password), validate: validator.New()}
}

// FindOrCreate returns the buyer owning identity.Email, creating a minimal
// account with a random, never-disclosed password when none exists.
func (d *Directory) FindOrCreate(ctx context.Context, identity Identity) (uuid.UUID, error) {
	identity = normalize(identity)
	if field := d.invalidField(identity); field != "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeIncompleteBuyerInfo, "buyer name, email and country are required").
			WithDetails(map[string]any{"field": field})
	}

	existing, err := d.store.FindByEmail(ctx, identity.Email)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return uuid.Nil, fmt.Errorf("find buyer: %w", err)
	}

	temp, err := security.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate buyer password: %w", err)
	}
	hash, err := d.hasher.Hash(temp)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash buyer password: %w", err)
	}

	buyer := &models.Buyer{
		ID:           uuid.New(),
		Name:         identity.Name,
		Email:        identity.Email,
		Country:      identity.Country,
		PasswordHash: hash,
	}
	err = d.store.Create(ctx, buyer)
	if errors.Is(err, ErrEmailTaken) {
		existing, findErr := d.store.FindByEmail(ctx, identity.Email)
		if findErr != nil {
			return uuid.Nil, fmt.Errorf("find buyer after conflict: %w", findErr)
		}
		return existing.ID, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("create buyer: %w", err)
	}
	return buyer.ID, nil
}

func (d *Directory) invalidField(identity Identity) string {
	err := d.validate.Struct(identity)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return strings.ToLower(verrs[0].Field())
	}
	return "buyer"
}

func normalize(identity Identity) Identity {
	return Identity{
		Name:    strings.TrimSpace(identity.Name),
		Email:   strings.ToLower(strings.TrimSpace(identity.Email)),
		Country: strings.TrimSpace(identity.Country),
	}
}
