package mfa

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateBackupCodesFormatAndUniqueness(t *testing.T) {
	codes, err := GenerateBackupCodes("u1", 10)
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}

	seen := map[string]bool{}
	for _, c := range codes {
		if len(c.Display) != 9 || c.Display[4] != '-' {
			t.Fatalf("unexpected format %q", c.Display)
		}
		canonical := CanonicalizeBackupCode(c.Display)
		for _, r := range canonical {
			if !strings.ContainsRune(BackupCodeAlphabet, r) {
				t.Fatalf("code %q uses character outside alphabet", c.Display)
			}
		}
		if seen[canonical] {
			t.Fatalf("duplicate code %q", c.Display)
		}
		seen[canonical] = true
		if c.Hash != BackupCodeHash("u1", canonical) {
			t.Fatalf("hash does not match canonical code for %q", c.Display)
		}
	}
}

func TestBackupCodeHashIsUserScoped(t *testing.T) {
	h1 := BackupCodeHash("user-1", "ABCDEFGH")
	h2 := BackupCodeHash("user-2", "ABCDEFGH")
	if bytes.Equal(h1[:], h2[:]) {
		t.Fatal("expected different hashes for different users")
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	if got := CanonicalizeBackupCode(" abcd-efgh "); got != "ABCDEFGH" {
		t.Fatalf("unexpected canonical form %q", got)
	}
}

func TestNumericCodeAndOpaqueToken(t *testing.T) {
	code, err := NewNumericCode(6)
	if err != nil || len(code) != 6 || !isDigits(code) {
		t.Fatalf("unexpected code %q err=%v", code, err)
	}
	if _, err := NewNumericCode(4); err == nil {
		t.Fatal("expected short code length to fail")
	}

	tok, err := NewOpaqueToken(32)
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != 32 {
		t.Fatalf("unexpected token %q", tok)
	}

	a := HashOTP("u1", "login", "123456")
	b := HashOTP("u1", "forgot_password", "123456")
	if a == b {
		t.Fatal("expected purpose to be part of the otp hash")
	}
}

func TestSealerRoundTripAndBinding(t *testing.T) {
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := s.Seal([]byte("JBSWY3DPEHPK3PXP"), []byte("u1"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	plain, err := s.Open(sealed, []byte("u1"))
	if err != nil || string(plain) != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("Open: %q err=%v", plain, err)
	}
	if _, err := s.Open(sealed, []byte("u2")); err != ErrUnseal {
		t.Fatalf("expected ErrUnseal for wrong binding, got %v", err)
	}
	if _, err := NewSealer([]byte("short")); err == nil {
		t.Fatal("expected short key to fail")
	}
}

func TestQRCodePNG(t *testing.T) {
	out, err := QRCodePNG("otpauth://totp/x:y?secret=JBSWY3DPEHPK3PXP", 0)
	if err != nil {
		t.Fatalf("QRCodePNG: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(out)
	if err != nil || !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Fatalf("expected base64 PNG, err=%v", err)
	}
}
