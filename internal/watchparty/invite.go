// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package watchparty

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// inviteAlphabet omits 0/O and 1/I/L.
const inviteAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateInviteCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	n := big.NewInt(int64(len(inviteAlphabet)))
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		b.WriteByte(inviteAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode upper-cases and trims a user-supplied code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
