package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeIDValidator(t *testing.T) {
	type payload struct {
		Reference string `json:"reference" binding:"required,safe_id"`
	}

	valid := []string{"txn-1", "evt_2026.08", "paygate:evt-7", "ABC123"}
	for _, ref := range valid {
		err := binding.JSON.BindBody([]byte(`{"reference":"`+ref+`"}`), &payload{})
		assert.NoError(t, err, "expected %q to be accepted", ref)
	}

	invalid := []string{"txn 1", "evt;drop", "ref<script>", "a/b"}
	for _, ref := range invalid {
		err := binding.JSON.BindBody([]byte(`{"reference":"`+ref+`"}`), &payload{})
		assert.Error(t, err, "expected %q to be rejected", ref)
	}
}

func TestSanitizeStruct(t *testing.T) {
	desc := "  <b>rent</b>  "
	type req struct {
		Reference   string
		Description *string
	}
	r := &req{Reference: " txn-1 ", Description: &desc}

	SanitizeStruct(r)

	assert.Equal(t, "txn-1", r.Reference)
	require.NotNil(t, r.Description)
	assert.Equal(t, "&lt;b&gt;rent&lt;/b&gt;", *r.Description)
}

func TestSanitizeStruct_NonStructIsNoop(t *testing.T) {
	s := "unchanged"
	SanitizeStruct(&s)
	assert.Equal(t, "unchanged", s)
}
