package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"regexp"
	"strings"

	"github.com/nevindra/ductor"
)

// Authenticate implements spec §4.7's per-hook auth check: bearer
// token or fully parameterized HMAC, both via constant-time compare.
func Authenticate(auth ductor.WebhookAuth, globalToken string, headers map[string]string, body []byte) bool {
	switch auth.Kind {
	case "bearer":
		return authenticateBearer(auth, globalToken, headers)
	case "hmac":
		return authenticateHMAC(auth, headers, body)
	default:
		return false
	}
}

func authenticateBearer(auth ductor.WebhookAuth, globalToken string, headers map[string]string) bool {
	want := auth.Token
	if want == "" {
		want = globalToken
	}
	if want == "" {
		return false
	}
	got := headerValue(headers, "Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	got = strings.TrimPrefix(got, prefix)
	return hmac.Equal([]byte(got), []byte(want))
}

func authenticateHMAC(auth ductor.WebhookAuth, headers map[string]string, body []byte) bool {
	if auth.Secret == "" || auth.SignatureHeader == "" {
		return false
	}
	raw := headerValue(headers, auth.SignatureHeader)
	if raw == "" {
		return false
	}

	var sig string
	if auth.SignatureRegex != "" {
		re, err := regexp.Compile(auth.SignatureRegex)
		if err != nil {
			return false
		}
		m := re.FindStringSubmatch(raw)
		if len(m) < 2 {
			return false
		}
		sig = m[1]
	} else if auth.SignaturePrefix != "" {
		if !strings.HasPrefix(raw, auth.SignaturePrefix) {
			return false
		}
		sig = strings.TrimPrefix(raw, auth.SignaturePrefix)
	} else {
		sig = raw
	}

	payload := body
	if auth.PayloadPrefixRegex != "" {
		re, err := regexp.Compile(auth.PayloadPrefixRegex)
		if err != nil {
			return false
		}
		m := re.FindStringSubmatch(raw)
		if len(m) >= 2 {
			payload = []byte(m[1] + "." + string(body))
		}
	}

	var h func() hash.Hash
	switch auth.Algorithm {
	case "sha1":
		h = sha1.New
	case "sha512":
		h = sha512.New
	default:
		h = sha256.New
	}
	mac := hmac.New(h, []byte(auth.Secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	var expectedStr string
	switch auth.Encoding {
	case "base64":
		expectedStr = base64.StdEncoding.EncodeToString(expected)
	default:
		expectedStr = hex.EncodeToString(expected)
	}

	return hmac.Equal([]byte(sig), []byte(expectedStr))
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
