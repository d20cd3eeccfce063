package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyPaymentSignature checks the gateway signature over "orderID|paymentID".
// Comparison is constant time.
func VerifyPaymentSignature(keySecret, orderID, paymentID, signature string) bool {
	if keySecret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := signHex(keySecret, []byte(orderID+"|"+paymentID))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the gateway signature over the raw request
// body. The body must be the exact bytes received, before any JSON decoding.
func VerifyWebhookSignature(webhookSecret string, body []byte, signature string) bool {
	if webhookSecret == "" || len(body) == 0 || signature == "" {
		return false
	}
	expected := signHex(webhookSecret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func signHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
