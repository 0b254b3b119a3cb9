package auth

import (
	"testing"
	"time"
)

// ─── Secret hashing (Argon2id, intentionally slow) ──────────────────

func BenchmarkHashSecret(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HashSecret("correct-horse-battery-staple") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifySecret(b *testing.B) {
	hash, err := HashSecret("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashSecret: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifySecret("correct-horse-battery-staple", hash) //nolint:errcheck // benchmark
	}
}

// ─── JWT tokens (per-connection hot path) ───────────────────────────

func BenchmarkGenerateAccessToken(b *testing.B) {
	issuer := NewTokenIssuer("benchmark-secret-key-32-bytes-xx", 15*time.Minute, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		issuer.GenerateAccessToken("dev-bench", RoleDevice) //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyCredential(b *testing.B) {
	issuer := NewTokenIssuer("benchmark-secret-key-32-bytes-xx", 15*time.Minute, 0)

	token, err := issuer.GenerateAccessToken("dev-bench", RoleDevice)
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		issuer.VerifyCredential(token) //nolint:errcheck // benchmark
	}
}
