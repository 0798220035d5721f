package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDigest(t *testing.T) {
	got := Digest([]byte("abc"))
	want := "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if !MatchesDigest(want, []byte("abc")) {
		t.Fatalf("expected digest to match")
	}
	if MatchesDigest(want, []byte("abd")) {
		t.Fatalf("expected digest mismatch")
	}
}

func TestSignAndVerify(t *testing.T) {
	priv, pub, err := KeyPairFromSeed(bytes.Repeat([]byte{0x01}, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	s := NewSigner(priv)
	if !bytes.Equal(s.PublicKey(), pub) {
		t.Fatalf("expected matching public key")
	}

	body := []byte(`{"type":"com.coitrack.document.approved"}`)
	header := s.Sign(body)

	ok, err := VerifySignature(pub, body, header)
	if err != nil || !ok {
		t.Fatalf("expected signature to verify: ok=%v err=%v", ok, err)
	}
	ok, err = VerifySignature(pub, []byte("tampered"), header)
	if err != nil || ok {
		t.Fatalf("expected verification failure: ok=%v err=%v", ok, err)
	}
	if _, err := VerifySignature(pub, body, "hmac=abc"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if _, err := VerifySignature(pub, body, "ed25519=***"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestKeyPairFromSeedInvalidSize(t *testing.T) {
	if _, _, err := KeyPairFromSeed([]byte{0x01}); !errors.Is(err, ErrInvalidSeedSize) {
		t.Fatalf("expected ErrInvalidSeedSize, got %v", err)
	}
}

func TestLoadSigningKey(t *testing.T) {
	dir := t.TempDir()
	seed := bytes.Repeat([]byte{0x02}, 32)
	wantPriv, _, err := KeyPairFromSeed(seed)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}

	cases := map[string][]byte{
		"raw":    seed,
		"hex":    []byte("hex:" + hex.EncodeToString(seed)),
		"barehx": []byte(hex.EncodeToString(seed) + "\n"),
		"full":   wantPriv,
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := LoadSigningKey(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if !bytes.Equal(got, wantPriv) {
			t.Fatalf("%s: key mismatch", name)
		}
	}

	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSigningKey(empty); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := LoadSigningKey(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
