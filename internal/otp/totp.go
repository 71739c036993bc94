// Package otp implements RFC 6238 time-based one-time passwords and the
// single-use recovery codes that back up a lost authenticator.
package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	secretBytes = 20
	digits      = 6
	period      = 30
	// window is the number of adjacent periods accepted on either side of
	// now, to tolerate clock skew between the client and the server.
	window = 1
	issuer = "vaultsync"
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh base32-encoded TOTP secret.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if err := fillRandom(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// NormalizeCode strips whitespace from a user-entered code.
func NormalizeCode(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(code, " ", ""))
}

func validCode(code string) bool {
	if len(code) != digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// VerifyCode reports whether code matches the secret at time now, within the
// configured skew window. Comparison is constant-time.
func VerifyCode(secret, code string, now time.Time) bool {
	code = NormalizeCode(code)
	if !validCode(code) {
		return false
	}
	for i := -window; i <= window; i++ {
		at := now.Add(time.Duration(i*period) * time.Second)
		expected, err := codeAt(secret, at)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

func codeAt(secret string, at time.Time) (string, error) {
	decoded, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", err
	}

	counter := uint64(at.Unix() / period)
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, decoded)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	binCode := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)
	return fmt.Sprintf("%06d", binCode%1000000), nil
}

// AuthURL builds the otpauth:// provisioning URL encoded into enrollment
// QR codes.
func AuthURL(secret, accountLabel string) string {
	label := url.PathEscape(issuer + ":" + accountLabel)
	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", issuer)
	values.Set("algorithm", "SHA1")
	values.Set("digits", strconv.Itoa(digits))
	values.Set("period", strconv.Itoa(period))
	return "otpauth://totp/" + label + "?" + values.Encode()
}
