package admins

import (
	"strings"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/higai/site-admin/pkg/logger"
)

// AuthSource says how an admin signs in.
type AuthSource string

const (
	AuthSourceLocal AuthSource = "local"
	AuthSourceOIDC  AuthSource = "oidc"
)

// Admin is a console account. There are no roles: a signed-in admin may do
// everything the console offers.
type Admin struct {
	ID         string     `bson:"_id,omitempty" json:"id"`
	Sub        string     `bson:"sub" json:"sub"`
	Email      string     `bson:"email" json:"email"`
	Name       string     `bson:"name" json:"name"`
	Password   string     `bson:"password,omitempty" json:"-"`
	AuthSource AuthSource `bson:"authSource" json:"authSource"`
	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// HashPassword returns the argon2id hash of password.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// VerifyPassword compares password with the stored hash in constant time.
func (a *Admin) VerifyPassword(password string) bool {
	if a.Password == "" {
		return false
	}
	match, err := argon2id.ComparePasswordAndHash(password, a.Password)
	if err != nil {
		logger.Errorf("admins: verify password for %s: %v", a.Email, err)
		return false
	}
	return match
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }
