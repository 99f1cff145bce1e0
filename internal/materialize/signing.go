package materialize

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Signed request headers used between the rewriter and the materialization
// service.
const (
	HeaderTimestamp = "X-Raw-Timestamp"
	HeaderSignature = "X-Raw-Signature"
)

// AttachSignedHeaders adds the timestamp and HMAC signature headers.
func AttachSignedHeaders(req *http.Request, secret string, body []byte, now time.Time) {
	ts := strconv.FormatInt(now.UTC().Unix(), 10)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, signRequest(req.Method, req.URL.Path, ts, body, secret))
}

// VerifySignedHeaders validates timestamp freshness and request signature.
func VerifySignedHeaders(req *http.Request, secret string, body []byte, now time.Time, maxSkew time.Duration) error {
	tsRaw := req.Header.Get(HeaderTimestamp)
	if tsRaw == "" {
		return fmt.Errorf("missing %s", HeaderTimestamp)
	}
	timestamp, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", HeaderTimestamp, err)
	}

	skew := now.UTC().Sub(time.Unix(timestamp, 0).UTC())
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return fmt.Errorf("request timestamp outside allowed skew")
	}

	got := req.Header.Get(HeaderSignature)
	if got == "" {
		return fmt.Errorf("missing %s", HeaderSignature)
	}
	if !hmac.Equal([]byte(got), []byte(signRequest(req.Method, req.URL.Path, tsRaw, body, secret))) {
		return fmt.Errorf("invalid request signature")
	}
	return nil
}

func signRequest(method, path, ts string, body []byte, secret string) string {
	bodyDigest := sha256.Sum256(body)
	payload := method + "\n" + path + "\n" + ts + "\n" + hex.EncodeToString(bodyDigest[:])

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
