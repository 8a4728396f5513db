package outreach

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"reachloop/config"
)

// TrackingToken derives the open/click token for an execution id. The
// token is stateless so tracking hits can be verified without a lookup.
func TrackingToken(executionID uint) string {
	mac := hmac.New(sha256.New, []byte(config.AppConfig.TrackingSecret))
	fmt.Fprintf(mac, "execution:%d", executionID)
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

// VerifyTrackingToken checks a token in constant time.
func VerifyTrackingToken(executionID uint, token string) bool {
	expected := TrackingToken(executionID)
	return hmac.Equal([]byte(expected), []byte(token))
}

// InjectOpenPixel appends the 1x1 tracking pixel to an HTML email body.
func InjectOpenPixel(body, baseURL string, executionID uint) string {
	pixel := fmt.Sprintf(`<img src="%s/track/open/%d/%s" width="1" height="1" style="display:none" alt=""/>`,
		baseURL, executionID, TrackingToken(executionID))
	if idx := strings.LastIndex(strings.ToLower(body), "</body>"); idx != -1 {
		return body[:idx] + pixel + body[idx:]
	}
	return body + pixel
}

var hrefRe = regexp.MustCompile(`href="(https?://[^"]+)"`)

// RewriteLinks routes outbound links through the click endpoint.
func RewriteLinks(body, baseURL string, executionID uint) string {
	token := TrackingToken(executionID)
	return hrefRe.ReplaceAllStringFunc(body, func(match string) string {
		url := hrefRe.FindStringSubmatch(match)[1]
		return fmt.Sprintf(`href="%s/track/click/%d/%s?url=%s"`, baseURL, executionID, token, url)
	})
}
