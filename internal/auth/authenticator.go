package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relabel/relabel/internal/db"
	"github.com/relabel/relabel/internal/model"
)

const (
	codeLength       = 6
	lockoutThreshold = 5
	lockoutCooldown  = 5 * time.Minute
)

// ErrCodeRejected covers every client-auth failure: bad format, no match,
// inactive code, locked code. Handlers must not distinguish between them.
var ErrCodeRejected = errors.New("access code rejected")

// CodeVerifier authenticates client requests by access code. Codes are
// stored hashed, so verification compares the presented code against every
// active, unlocked candidate.
type CodeVerifier struct {
	db     *sql.DB
	pepper string
}

func NewCodeVerifier(database *sql.DB, pepper string) *CodeVerifier {
	return &CodeVerifier{db: database, pepper: pepper}
}

// Verify resolves code to the access code row it matches. Failures count
// against every candidate that was compared, since a hashed store cannot
// attribute a bad guess to one specific code.
func (v *CodeVerifier) Verify(code string) (*model.AccessCode, error) {
	if !ValidCodeFormat(code) {
		return nil, ErrCodeRejected
	}
	now := time.Now().UTC()
	candidates, err := db.ListVerifiableCodes(v.db, now)
	if err != nil {
		return nil, fmt.Errorf("list access codes: %w", err)
	}
	for _, c := range candidates {
		ok, scheme := VerifySecret(c.CodeHash, code, v.pepper)
		if !ok {
			continue
		}
		if scheme == SchemeLegacy {
			v.upgradeHash(c.ID, code)
		}
		if err := db.MarkCodeVerified(v.db, c.ID); err != nil {
			return nil, fmt.Errorf("mark code verified: %w", err)
		}
		matched := c
		return &matched, nil
	}
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	if err := db.RecordFailedAttempt(v.db, ids, lockoutThreshold, now.Add(lockoutCooldown)); err != nil {
		slog.Warn("record failed auth attempt", "error", err)
	}
	return nil, ErrCodeRejected
}

func (v *CodeVerifier) upgradeHash(id int64, code string) {
	newHash, err := HashSecret(code, v.pepper)
	if err != nil {
		slog.Warn("rehash access code", "code_id", id, "error", err)
		return
	}
	if err := db.UpdateCodeHash(v.db, id, newHash); err != nil {
		slog.Warn("store upgraded code hash", "code_id", id, "error", err)
	}
}

// ValidCodeFormat reports whether code is exactly six ASCII digits.
func ValidCodeFormat(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
