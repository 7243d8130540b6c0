package storefs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-pagepdf/export"
)

// HMACSigner signs download URLs with a shared secret.
type HMACSigner struct {
	Secret []byte
	Now    func() time.Time
}

// SignURL returns BaseURL/Key?expires=<unix>&signature=<hex>. Each key
// segment is path escaped; the signature covers the raw key.
func (s HMACSigner) SignURL(input SignedURLInput) (string, error) {
	if len(s.Secret) == 0 {
		return "", export.NewError(export.KindValidation, "signing secret is required", nil)
	}
	expires := strconv.FormatInt(input.ExpiresAt.Unix(), 10)
	query := url.Values{}
	query.Set("expires", expires)
	query.Set("signature", s.sign(input.Key, expires))
	return input.BaseURL + "/" + escapeKey(input.Key) + "?" + query.Encode(), nil
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// Verify checks a signature produced by SignURL.
func (s HMACSigner) Verify(key, expires, signature string) error {
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return export.NewError(export.KindValidation, "invalid expiry", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if now().After(time.Unix(unix, 0)) {
		return export.NewError(export.KindNotFound, "download link expired", nil)
	}
	expected := s.sign(key, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return export.NewError(export.KindValidation, "invalid signature", nil)
	}
	return nil
}

func (s HMACSigner) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}
