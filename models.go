package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// Claim types whose values count as policies.
const (
	ClaimTypePermission = "Permission"
	ClaimTypePolicy     = "policy"
)

// Account is the persisted user identity. DeletedAt marks a soft deleted row;
// every store query filters on it.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID                 string     `bun:"id,pk" json:"id"`
	Username           string     `bun:"username,nullzero" json:"username,omitempty"`
	NormalizedUsername string     `bun:"normalized_username,nullzero" json:"-"`
	Email              string     `bun:"email,nullzero" json:"email,omitempty"`
	NormalizedEmail    string     `bun:"normalized_email,nullzero" json:"-"`
	PhoneNumber        string     `bun:"phone_number,nullzero" json:"phone_number,omitempty"`
	PasswordHash       string     `bun:"password_hash,nullzero" json:"-"`
	SecurityStamp      string     `bun:"security_stamp" json:"-"`
	ConcurrencyStamp   string     `bun:"concurrency_stamp" json:"-"`
	AccessFailedCount  int        `bun:"access_failed_count,notnull,default:0" json:"access_failed_count"`
	LockoutEnd         *time.Time `bun:"lockout_end,nullzero" json:"lockout_end,omitempty"`
	LockoutEnabled     bool       `bun:"lockout_enabled,notnull,default:true" json:"lockout_enabled"`
	EmailConfirmed     bool       `bun:"email_confirmed,notnull,default:false" json:"email_confirmed"`
	TwoFactorEnabled   bool       `bun:"two_factor_enabled,notnull,default:false" json:"two_factor_enabled"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
	DeletedAt          *time.Time `bun:"deleted_at,nullzero" json:"deleted_at,omitempty"`
}

// HasPassword reports whether the account can authenticate with a password.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// RotateStamps issues fresh security and concurrency stamps.
func (a *Account) RotateStamps() {
	a.SecurityStamp = NewSecurityStamp()
	a.ConcurrencyStamp = uuid.NewString()
}

// Role groups claims under a unique normalized name.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`

	ID             string      `bun:"id,pk" json:"id"`
	Name           string      `bun:"name,notnull" json:"name"`
	NormalizedName string      `bun:"normalized_name,notnull,unique" json:"-"`
	Claims         []RoleClaim `bun:"rel:has-many,join:id=role_id" json:"claims,omitempty"`
	CreatedAt      time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Claim is a (type, value) assertion.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IsPolicy reports whether the claim carries a non empty policy value.
func (c Claim) IsPolicy() bool {
	if strings.TrimSpace(c.Value) == "" {
		return false
	}
	return strings.EqualFold(c.Type, ClaimTypePermission) || strings.EqualFold(c.Type, ClaimTypePolicy)
}

// RoleClaim is a claim attached to a role.
type RoleClaim struct {
	bun.BaseModel `bun:"table:role_claims,alias:rcl"`

	ID         string `bun:"id,pk" json:"id"`
	RoleID     string `bun:"role_id,notnull" json:"role_id"`
	ClaimType  string `bun:"claim_type,nullzero" json:"claim_type"`
	ClaimValue string `bun:"claim_value,nullzero" json:"claim_value"`
}

// Claim returns the domain claim.
func (c RoleClaim) Claim() Claim {
	return Claim{Type: c.ClaimType, Value: c.ClaimValue}
}

// UserClaim is a claim attached directly to an account.
type UserClaim struct {
	bun.BaseModel `bun:"table:user_claims,alias:ucl"`

	ID         string `bun:"id,pk" json:"id"`
	AccountID  string `bun:"account_id,notnull" json:"account_id"`
	ClaimType  string `bun:"claim_type,nullzero" json:"claim_type"`
	ClaimValue string `bun:"claim_value,nullzero" json:"claim_value"`
}

// Claim returns the domain claim.
func (c UserClaim) Claim() Claim {
	return Claim{Type: c.ClaimType, Value: c.ClaimValue}
}

// AccountRole joins accounts and roles. AssignmentID is a ULID so rows sort in
// assignment order.
type AccountRole struct {
	bun.BaseModel `bun:"table:account_roles,alias:acr"`

	AccountID    string `bun:"account_id,pk" json:"account_id"`
	RoleID       string `bun:"role_id,pk" json:"role_id"`
	AssignmentID string `bun:"assignment_id,notnull" json:"assignment_id"`
}

// ExternalLogin binds a (provider, provider key) pair to one account.
type ExternalLogin struct {
	bun.BaseModel `bun:"table:external_logins,alias:exl"`

	ID          string    `bun:"id,pk" json:"id"`
	AccountID   string    `bun:"account_id,notnull" json:"account_id"`
	Provider    string    `bun:"provider,notnull" json:"provider"`
	ProviderKey string    `bun:"provider_key,notnull" json:"provider_key"`
	DisplayName string    `bun:"display_name,nullzero" json:"display_name,omitempty"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// UserToken is a single purpose value stored per (account, provider, name).
type UserToken struct {
	bun.BaseModel `bun:"table:user_tokens,alias:utk"`

	AccountID string     `bun:"account_id,pk" json:"account_id"`
	Provider  string     `bun:"provider,pk" json:"provider"`
	Name      string     `bun:"name,pk" json:"name"`
	Value     string     `bun:"value,notnull" json:"-"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// NewID returns a new sortable identifier.
func NewID() string {
	return ulid.Make().String()
}

// NewSecurityStamp returns an opaque upper case stamp.
func NewSecurityStamp() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Normalize returns the lookup form of a username or email.
func Normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
