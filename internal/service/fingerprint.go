package service

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	jsoncanonicalizer "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/zeebo/blake3"
)

// requestFingerprint hashes the normalized creation request so a replayed
// idempotency key can be told apart from a reused one.
func requestFingerprint(in CreateTicketInput) (string, error) {
	fields := in.Context
	if fields == nil {
		fields = map[string]string{}
	}
	raw, err := json.Marshal(map[string]any{
		"category": in.Category,
		"severity": in.Severity,
		"summary":  in.Summary,
		"context":  fields,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize request: %w", err)
	}
	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
