package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte(`{"reference":"evt-1","amount":10000}`)

	sig := svc.Sign("secret-1", payload)
	assert.NotEmpty(t, sig)
	assert.True(t, svc.Verify("secret-1", payload, sig))
}

func TestHMACSignatureService_Verify_Rejects(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte(`{"reference":"evt-1","amount":10000}`)
	sig := svc.Sign("secret-1", payload)

	assert.False(t, svc.Verify("wrong-secret", payload, sig), "different secret")
	assert.False(t, svc.Verify("secret-1", []byte(`tampered`), sig), "tampered payload")
	assert.False(t, svc.Verify("secret-1", payload, "deadbeef"), "forged signature")
}

func TestHMACSignatureService_Deterministic(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte("payload")

	assert.Equal(t, svc.Sign("k", payload), svc.Sign("k", payload))
	assert.NotEqual(t, svc.Sign("k", payload), svc.Sign("k2", payload))
}
