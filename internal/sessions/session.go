package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is a console sign-in that can mint new access tokens. Only the
// digest of the refresh token is persisted.
type Session struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	RefreshHash string    `bson:"refreshHash" json:"refreshHash"`
	Sub         string    `bson:"sub" json:"sub"`
	Email       string    `bson:"email" json:"email"`
	UserAgent   string    `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	ExpiresAt   time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

func (s *Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// digest is the lookup key for a refresh or access token.
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
