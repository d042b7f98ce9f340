package identity

import "golang.org/x/crypto/bcrypt"

// DefaultPasswordCost is the bcrypt work factor used when none is configured.
const DefaultPasswordCost = bcrypt.DefaultCost

// BcryptHasher implements PasswordHasher with a fixed work factor.
type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = BcryptHasher{}

// NewBcryptHasher returns a hasher using cost, clamped to bcrypt's bounds.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return BcryptHasher{cost: cost}
}

// Cost returns the configured work factor.
func (h BcryptHasher) Cost() int {
	return h.cost
}

// Hash will generate a salted password hash.
func (h BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", NewError(ErrValidation, CodeValidation, MsgPasswordRequired, "field", "password")
	}

	cost := h.cost
	if cost == 0 {
		cost = DefaultPasswordCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", Internal(err, "hash password")
	}
	return string(hash), nil
}

// Compare reports whether plaintext matches hash. An empty hash never
// matches.
func (h BcryptHasher) Compare(plaintext, hash string) bool {
	if hash == "" || plaintext == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
