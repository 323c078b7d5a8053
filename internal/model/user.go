package model

import "time"

// User represents an account as stored in the `users` table. Accounts are
// never removed; deleting one clears IsActive, and inactive users cannot
// authenticate.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique email address, used as the login.
//  PasswordHash – bcrypt hash of the password.
//  IsAdmin      – administrators manage inventory and see every ticket.
//  IsActive     – false once the account has been deleted.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    `json:"id"`                                     // users.id
	Email        string    `json:"email" validate:"required,email,max=254"` // users.email
	PasswordHash string    `json:"-"`                                      // users.password_hash
	IsAdmin      bool      `json:"is_admin"`                               // users.is_admin
	IsActive     bool      `json:"is_active"`                              // users.is_active
	CreatedAt    time.Time `json:"-"`                                      // users.created_at
	UpdatedAt    time.Time `json:"-"`                                      // users.updated_at
}

// Principal returns the identity the access policy works with.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, IsAdmin: u.IsAdmin}
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the token handed to the client is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Principal is the authenticated caller of a request. The zero value is the
// anonymous caller.
type Principal struct {
	ID      uint64
	IsAdmin bool
}

func (p Principal) Anonymous() bool { return p.ID == 0 }

// CanSee reports whether p may see a record held by holderID.
func (p Principal) CanSee(holderID uint64) bool {
	return p.IsAdmin || (!p.Anonymous() && p.ID == holderID)
}
