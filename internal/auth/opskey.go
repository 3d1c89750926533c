package auth

import "golang.org/x/crypto/bcrypt"

// OpsKeyHeader carries the operations key for maintenance endpoints.
const OpsKeyHeader = "X-Ops-Key"

// HashOpsKey hashes a plaintext ops key with the given cost.
func HashOpsKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// OpsKeyVerifier checks presented keys against a bcrypt hash. A verifier
// without a hash rejects everything.
type OpsKeyVerifier struct {
	hash []byte
}

// NewOpsKeyVerifier builds a verifier for hash.
func NewOpsKeyVerifier(hash string) *OpsKeyVerifier {
	return &OpsKeyVerifier{hash: []byte(hash)}
}

// Verify reports whether key matches.
func (v *OpsKeyVerifier) Verify(key string) bool {
	if v == nil || len(v.hash) == 0 || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(key)) == nil
}
