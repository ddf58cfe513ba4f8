// Package telemetry ships usage snapshots to an Azure Log Analytics
// workspace through the HTTP Data Collector API.
package telemetry

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const resourcePath = "/api/logs"

// BuildSignature computes the SharedKey authorization value for a Data
// Collector request: an HMAC-SHA256 over the canonical string
// "METHOD\ncontentLength\ncontentType\nx-ms-date:date\nresource", keyed with
// the base64-decoded workspace shared key.
func BuildSignature(workspaceId string, sharedKey string, method string, contentLength int, contentType string, date string) (signature string, err error) {
	var key []byte
	if key, err = base64.StdEncoding.DecodeString(sharedKey); err != nil {
		return "", fmt.Errorf("shared key is not valid base64: %w", err)
	}
	var canonical = fmt.Sprintf("%s\n%d\n%s\nx-ms-date:%s\n%s",
		method, contentLength, contentType, date, resourcePath)
	var mac = hmac.New(sha256.New, key)
	mac.Write([]byte(canonical))
	var encoded = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	signature = fmt.Sprintf("SharedKey %s:%s", workspaceId, encoded)
	return
}
