/*
coupon.go - Coupon code generation

PURPOSE:
  Generates the presentable codes that identify a claim for offline /
  in-person validation (staff punches the code in at the front desk).

REQUIREMENTS:
  - Non-guessable: codes come from crypto/rand, never math/rand.
  - Globally unique: randomness makes collisions negligible, and the
    store additionally enforces a unique constraint, and the engine
    regenerates and retries on conflict rather than trusting probability.
  - Human-friendly: an alphabet with the easily-confused characters
    (0/O, 1/I/L) removed, in a fixed FIT-XXXXXXXXXX shape.
*/
package engine

import (
	"crypto/rand"
	"fmt"
)

const (
	couponPrefix   = "FIT-"
	couponBodyLen  = 10
	couponAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ" // no 0/O/1/I/L
)

// maxCouponAttempts bounds regeneration when the store reports a code
// collision before the claim fails outright.
const maxCouponAttempts = 5

// NewCouponCode generates a fresh presentable coupon code.
func NewCouponCode() (string, error) {
	buf := make([]byte, couponBodyLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	body := make([]byte, couponBodyLen)
	for i, b := range buf {
		body[i] = couponAlphabet[int(b)%len(couponAlphabet)]
	}
	return couponPrefix + string(body), nil
}
