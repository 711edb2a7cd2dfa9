package identity_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/lumora-social/lumora/internal/identity"
)

// testParams keeps derivation cheap enough for the unit suite.
var testParams = identity.Argon2Params{Time: 1, MemoryKB: 64, Parallelism: 1}

func TestHashVerifyRoundTrip(t *testing.T) {
	hasher := identity.NewArgon2Hasher(testParams)

	secrets := []string{"secret123", "correct horse battery staple", "päss-wörd", "密码也可以"}
	for _, secret := range secrets {
		digest, err := hasher.Hash(secret)
		if err != nil {
			t.Fatalf("Hash(%q) error = %v", secret, err)
		}
		if digest == secret || digest == "" {
			t.Fatalf("digest must be non-empty and distinct from the secret")
		}
		if !strings.HasPrefix(digest, "$argon2id$") {
			t.Fatalf("expected PHC argon2id digest, got %q", digest)
		}
		ok, err := hasher.Verify(secret, digest)
		if err != nil {
			t.Fatalf("Verify error = %v", err)
		}
		if !ok {
			t.Fatalf("Verify(%q, hash(%q)) = false, want true", secret, secret)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	hasher := identity.NewArgon2Hasher(testParams)

	digest, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash error = %v", err)
	}
	ok, err := hasher.Verify("secret124", digest)
	if err != nil {
		t.Fatalf("Verify error = %v", err)
	}
	if ok {
		t.Fatalf("Verify accepted a wrong secret")
	}
}

func TestHashSaltsEachDigest(t *testing.T) {
	hasher := identity.NewArgon2Hasher(testParams)

	first, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash error = %v", err)
	}
	second, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash error = %v", err)
	}
	if first == second {
		t.Fatalf("two digests of the same secret must differ by salt")
	}
}

func TestVerifyHonorsEmbeddedParameters(t *testing.T) {
	// A digest created under one cost profile must verify under a hasher
	// configured with a different one.
	origin := identity.NewArgon2Hasher(identity.Argon2Params{Time: 2, MemoryKB: 128, Parallelism: 1})
	digest, err := origin.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash error = %v", err)
	}

	other := identity.NewArgon2Hasher(testParams)
	ok, err := other.Verify("secret123", digest)
	if err != nil {
		t.Fatalf("Verify error = %v", err)
	}
	if !ok {
		t.Fatalf("digest parameters were not honored on verification")
	}
}

func TestMalformedInputFailsWithEncodingError(t *testing.T) {
	hasher := identity.NewArgon2Hasher(testParams)

	if _, err := hasher.Hash("bad\x00secret"); !errors.Is(err, identity.ErrEncoding) {
		t.Fatalf("Hash with control character: err = %v, want ErrEncoding", err)
	}

	for _, digest := range []string{"", "plaintext", "$bcrypt$whatever", "$argon2id$v=19$m=64,t=1,p=1$notbase64!$x"} {
		if _, err := hasher.Verify("secret123", digest); !errors.Is(err, identity.ErrEncoding) {
			t.Fatalf("Verify(%q): err = %v, want ErrEncoding", digest, err)
		}
	}
}
