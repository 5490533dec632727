package mcp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	headerAgentID   = "x-agent-id"
	headerTimestamp = "x-ts"
	headerSignature = "x-signature"
	headerNonce     = "x-nonce"

	// hmacWindowMS bounds the clock skew between signer and verifier.
	hmacWindowMS = int64(300_000)
)

// canonicalString is the legacy signing payload: millisecond
// timestamp, uppercased method, URL path and raw body.
func canonicalString(ts, method, path string, body []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + path + "\n" + string(body)
}

// canonicalStringV2 additionally binds the agent id and a per-request
// nonce, which is what lets the replay guard reject a captured frame.
func canonicalStringV2(ts, method, path, agentID, nonce string, body []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + path + "\n" + agentID + "\n" + nonce + "\n" + string(body)
}

func signHMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// hmacVerification carries what the replay guard needs once a request
// checks out.
type hmacVerification struct {
	AgentID   string
	Signature string
}

// verifyHMAC checks the request signature. The V2 form is tried first;
// the legacy form only when allowLegacy is set.
func verifyHMAC(r *http.Request, body []byte, secret string, allowLegacy bool, now time.Time) (hmacVerification, error) {
	ts := r.Header.Get(headerTimestamp)
	sig := r.Header.Get(headerSignature)
	agentID := r.Header.Get(headerAgentID)
	nonce := r.Header.Get(headerNonce)

	if ts == "" || sig == "" {
		return hmacVerification{}, fmt.Errorf("missing %s or %s header", headerTimestamp, headerSignature)
	}
	tsMS, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return hmacVerification{}, fmt.Errorf("bad %s header", headerTimestamp)
	}
	if d := now.UnixMilli() - tsMS; d > hmacWindowMS || d < -hmacWindowMS {
		return hmacVerification{}, fmt.Errorf("timestamp outside the %ds window", hmacWindowMS/1000)
	}

	path := r.URL.Path
	wantV2 := signHMAC(secret, canonicalStringV2(ts, r.Method, path, agentID, nonce, body))
	if hmac.Equal([]byte(wantV2), []byte(sig)) {
		return hmacVerification{AgentID: agentID, Signature: sig}, nil
	}
	if allowLegacy {
		want := signHMAC(secret, canonicalString(ts, r.Method, path, body))
		if hmac.Equal([]byte(want), []byte(sig)) {
			return hmacVerification{AgentID: agentID, Signature: sig}, nil
		}
	}
	return hmacVerification{}, fmt.Errorf("signature mismatch")
}

// allowLegacyHMAC resolves the legacy-signature policy. The env var
// wins; without it, staging and production refuse legacy signatures
// and every other environment accepts them.
func allowLegacyHMAC() bool {
	switch strings.ToLower(os.Getenv("GC_MCP_HMAC_ALLOW_LEGACY")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	switch strings.ToLower(os.Getenv("DEPLOY_ENV")) {
	case "staging", "production":
		return false
	}
	return true
}
