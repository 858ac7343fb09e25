package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	VendorID string
	JTI      string
}

// AccessTokenClaims is the typed JWT presented by buyers, vendors and admins.
// VendorID is set only for vendor tokens.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	Role     enums.ActorRole `json:"role"`
	VendorID string          `json:"vendor_id,omitempty"`
	jwt.RegisteredClaims
}
