package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrCodeGenerationExhausted = errors.New("failed to generate a unique reference code")

var referenceCodePattern = regexp.MustCompile(`^[A-Z0-9]+$`)

const (
	referencePrefix    = "QCG"
	minReferenceLength = 8
	codeAlphabet       = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type ReferenceCodeIndex interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// ReferenceService generates buyer-facing reference codes. A code is the
// QCG prefix, the last four digits of the buyer's phone, a time-derived
// component and four random characters, always uppercase.
type ReferenceService struct {
	index ReferenceCodeIndex
	nowFn func() time.Time
}

func NewReferenceService(index ReferenceCodeIndex) *ReferenceService {
	return &ReferenceService{
		index: index,
		nowFn: time.Now,
	}
}

// Generate returns a fresh code that is not yet in use. Uniqueness is
// checked against the index with a bounded retry.
func (s *ReferenceService) Generate(ctx context.Context, phone string) (string, error) {
	const maxAttempts = 10

	last4 := phone
	if len(phone) > 4 {
		last4 = phone[len(phone)-4:]
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		timePart := strings.ToUpper(strconv.FormatInt(s.nowFn().Unix(), 36))
		if len(timePart) > 4 {
			timePart = timePart[len(timePart)-4:]
		}

		random := make([]byte, 4)
		for i := range random {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
			if err != nil {
				return "", fmt.Errorf("generate reference suffix: %w", err)
			}
			random[i] = codeAlphabet[n.Int64()]
		}

		code := referencePrefix + last4 + timePart + string(random)

		taken, err := s.index.Exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check reference code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeGenerationExhausted
}

// ValidFormat reports whether a code could have been produced by Generate.
// It rejects obviously malformed input before any database lookup.
func ValidFormat(code string) bool {
	if len(code) < minReferenceLength {
		return false
	}
	if !strings.HasPrefix(code, referencePrefix) {
		return false
	}
	return referenceCodePattern.MatchString(code)
}
