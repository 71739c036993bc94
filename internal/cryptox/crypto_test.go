package cryptox

import (
	"bytes"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	// Cheap parameters keep the test fast; production defaults are heavier.
	params := KDFParams{Time: 1, MemoryKiB: 8, Threads: 1, KeyLen: 32}
	return DeriveKey([]byte("secret-password"), []byte("fixed-salt-16byt"), params)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	params := KDFParams{Time: 1, MemoryKiB: 8, Threads: 1, KeyLen: 32}
	key1 := DeriveKey([]byte("secret-password"), []byte("salt-1"), params)
	key2 := DeriveKey([]byte("secret-password"), []byte("salt-1"), params)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key1))
	}
}

func TestDeriveKeyDifferentSalts(t *testing.T) {
	params := KDFParams{Time: 1, MemoryKiB: 8, Threads: 1, KeyLen: 32}
	key1 := DeriveKey([]byte("secret-password"), []byte("salt-1"), params)
	key2 := DeriveKey([]byte("secret-password"), []byte("salt-2"), params)

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestKDFParamsRoundTrip(t *testing.T) {
	encoded, err := DefaultKDFParams().Encode()
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	decoded, err := DecodeKDFParams(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded != DefaultKDFParams() {
		t.Errorf("expected %+v, got %+v", DefaultKDFParams(), decoded)
	}
}

func TestDecodeKDFParamsRejectsZeroKeyLen(t *testing.T) {
	if _, err := DecodeKDFParams([]byte(`{"time":1,"memoryKiB":8,"threads":1}`)); err == nil {
		t.Errorf("expected error for zero key length")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte(`{"records":{}}`)

	blob, err := EncryptBlob(plaintext, key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Fatalf("ciphertext contains plaintext")
	}

	decrypted, err := DecryptBlob(blob, key)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := testKey(t)
	blob, err := EncryptBlob([]byte("payload"), key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}

	wrong := make([]byte, len(key))
	copy(wrong, key)
	wrong[0] ^= 0xff

	if _, err := DecryptBlob(blob, wrong); err == nil {
		t.Errorf("expected decryption failure with wrong key")
	}
}

func TestDecryptTamperedBlobFails(t *testing.T) {
	key := testKey(t)
	blob, err := EncryptBlob([]byte("payload"), key)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	blob[len(blob)-1] ^= 0x01

	if _, err := DecryptBlob(blob, key); err == nil {
		t.Errorf("expected decryption failure for tampered blob")
	}
}

func TestDecryptTruncatedBlobFails(t *testing.T) {
	if _, err := DecryptBlob([]byte("short"), testKey(t)); err == nil {
		t.Errorf("expected error for truncated blob")
	}
}
