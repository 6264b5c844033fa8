package decoding

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// qrReadPrompt is the shared prompt used by all vision providers
const qrReadPrompt = `You are looking at a photo or scan that should contain a QR code, typically on a barangay ID badge, certificate or pickup slip.

Read the QR code and return the exact text it encodes. Do not guess characters you cannot see and do not transcribe any printed text outside the QR code.

Return ONLY valid JSON in this exact format:
{
  "payload": "decoded text"
}

Important:
- If there is no QR code, or it cannot be read reliably, use null for payload
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// visionResponse is the JSON shape requested from vision providers
type visionResponse struct {
	Payload *string `json:"payload"`
}

// encodePNG encodes img for upload to a vision provider
func encodePNG(img image.Image) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	// buf goes back to the pool
	return append([]byte(nil), buf.B...), nil
}

// parseVisionResponse extracts the payload from a provider's text reply.
// A null or blank payload yields ErrNoCode.
func parseVisionResponse(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var resp visionResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return "", fmt.Errorf("unmarshaling json: %w", err)
	}

	if resp.Payload == nil || strings.TrimSpace(*resp.Payload) == "" {
		return "", ErrNoCode
	}
	return *resp.Payload, nil
}
