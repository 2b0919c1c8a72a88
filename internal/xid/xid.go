package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// BillNumber produces a human-readable invoice number. Uniqueness is still
// enforced by the store; the random suffix just makes collisions unlikely.
func BillNumber() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("BILL-%d", time.Now().UnixMilli())
	}
	return fmt.Sprintf("BILL-%d-%s", time.Now().UnixMilli(), strings.ToUpper(hex.EncodeToString(buf)))
}
