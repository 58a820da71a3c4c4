// Package referral holds the referral-code rules and the points formulas.
package referral

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/sreeduggirala/polytrade/internal/ports"
)

const (
	// GeneratedLength is the length of auto-generated codes.
	GeneratedLength = 7
	// MinLength and MaxLength bound user-chosen custom codes.
	MinLength = 3
	MaxLength = 7

	// maxGenerateAttempts bounds the unique-code search; beyond it the
	// caller gets a hard failure instead of an unbounded loop.
	maxGenerateAttempts = 10

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode returns a random 7-character uppercase alphanumeric code.
func GenerateCode() string {
	b := make([]byte, GeneratedLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// NormalizeCode validates a referral code and returns its canonical
// (trimmed, uppercase) form. Codes are 3-7 alphanumeric characters,
// case-insensitive.
func NormalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) < MinLength || len(code) > MaxLength {
		return "", fmt.Errorf("code must be %d-%d characters: %w", MinLength, MaxLength, ports.ErrInvalidCode)
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return "", fmt.Errorf("code must be alphanumeric: %w", ports.ErrInvalidCode)
		}
	}
	return strings.ToUpper(code), nil
}

// UniqueCode generates a code that no existing wallet holds, probing the
// repository up to maxGenerateAttempts times. A residual race with a
// concurrent insert is caught by the UNIQUE constraint at write time; the
// caller retries with a fresh code on ErrDuplicateEntry.
func UniqueCode(ctx context.Context, wallets ports.WalletRepository) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code := GenerateCode()
		existing, err := wallets.FindByReferralCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("probing referral code: %w", err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", ports.ErrCodeExhausted
}
