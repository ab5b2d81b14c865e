package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2PinService_HashAndVerify(t *testing.T) {
	svc := NewArgon2PinService()

	hash, err := svc.Hash("4821")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := svc.Verify("4821", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify("0000", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2PinService_UniqueSalts(t *testing.T) {
	svc := NewArgon2PinService()

	h1, err := svc.Hash("4821")
	require.NoError(t, err)
	h2, err := svc.Hash("4821")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2, "same PIN must hash differently per salt")
}

func TestArgon2PinService_Verify_MalformedHash(t *testing.T) {
	svc := NewArgon2PinService()

	_, err := svc.Verify("4821", "not-a-hash")
	assert.Error(t, err)

	_, err = svc.Verify("4821", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA")
	assert.Error(t, err)
}
