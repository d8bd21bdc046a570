package browser

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockRateLimit  BlockType = "unusual_traffic"
)

// ErrBlocked wraps responses that look like an anti-bot interstitial rather
// than real content.
type ErrBlocked struct {
	Type BlockType
}

func (e *ErrBlocked) Error() string { return "browser: blocked (" + string(e.Type) + ")" }

// CaptchaWidgetSelector matches the embedded challenge widgets. Result pages
// that merely mention a captcha vendor have none of these elements.
const CaptchaWidgetSelector = `.g-recaptcha, .h-captcha, ` +
	`iframe[src*="recaptcha/api"], iframe[src*="hcaptcha.com/captcha"], ` +
	`script[src*="recaptcha/api.js"], script[src*="hcaptcha.com/1/api.js"]`

// Widget markers as they appear in raw markup.
var captchaMarkup = []string{
	`class="g-recaptcha"`,
	`class="h-captcha"`,
	`recaptcha/api.js`,
	`hcaptcha.com/1/api.js`,
}

// DetectBlock checks an HTTP response for signs of anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable) {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("server") == "cloudflare" {
			return BlockCloudflare
		}
	}
	if bt := DetectBlockText(string(body)); bt != BlockNone {
		return bt
	}
	lower := strings.ToLower(string(body))
	for _, m := range captchaMarkup {
		if strings.Contains(lower, m) {
			return BlockCaptcha
		}
	}
	return BlockNone
}

// DetectBlockText checks rendered page text for interstitial wording. Only
// phrases that a results page does not carry in its own snippets are
// matched; captcha widgets are detected from markup instead.
func DetectBlockText(text string) BlockType {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "unusual traffic from your computer network"),
		strings.Contains(lower, "our systems have detected unusual traffic"):
		return BlockRateLimit
	case strings.Contains(lower, "checking your browser before accessing"),
		strings.Contains(lower, "cf-browser-verification"):
		return BlockCloudflare
	}
	return BlockNone
}
