package auth

import "testing"

// ─── Password hashing (Argon2id — intentionally slow) ───────────────

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HashPassword("umurenge-device-2026") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("umurenge-device-2026")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifyPassword("umurenge-device-2026", hash) //nolint:errcheck // benchmark
	}
}

// ─── JWT tokens (per-request hot path) ──────────────────────────────

const benchSecret = "benchmark-secret-key-32-bytes-xx"

func BenchmarkGenerateAccessToken(b *testing.B) {
	user := &User{ID: "usr-bench", Username: "bench", Role: RoleAdmin}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GenerateAccessToken(user, benchSecret, 15) //nolint:errcheck // benchmark
	}
}

func BenchmarkParseToken(b *testing.B) {
	user := &User{ID: "usr-bench", Username: "bench", Role: RoleAdmin}

	token, err := GenerateAccessToken(user, benchSecret, 15)
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseToken(token, benchSecret) //nolint:errcheck // benchmark
	}
}

func BenchmarkGenerateRefreshToken(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateRefreshToken() //nolint:errcheck // benchmark
	}
}
