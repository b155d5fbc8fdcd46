package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAddressNormalizes(t *testing.T) {
	addr := NewAddress("0xDAC17F958D2EE523A2206206994597C13D831EC7", "ethereum", time.Unix(1700000000, 0))

	assert.Equal(t, "0xdac17f958d2ee523a2206206994597c13d831ec7", addr.Address)
	assert.Equal(t, int64(1700000000), addr.FirstSeen)
	assert.Equal(t, int64(1700000000), addr.LastUpdated)
	assert.Empty(t, addr.Tags)
}

func TestSetTagClassificationDisplacement(t *testing.T) {
	addr := NewAddress("0xabc0000000000000000000000000000000000001", "ethereum", time.Now())

	addr.SetTag(TagEOA)
	assert.True(t, addr.HasTag(TagEOA))
	assert.False(t, addr.IsContract())

	// Re-classification must never leave both tags behind.
	addr.SetTag(TagContract)
	assert.True(t, addr.IsContract())
	assert.False(t, addr.HasTag(TagEOA))

	addr.SetTag(TagEOA)
	assert.True(t, addr.HasTag(TagEOA))
	assert.False(t, addr.HasTag(TagContract))
}

func TestSetTagVerificationDisplacement(t *testing.T) {
	addr := NewAddress("0xabc0000000000000000000000000000000000002", "ethereum", time.Now())
	addr.SetTag(TagContract)

	addr.SetTag(TagUnverified)
	assert.True(t, addr.HasTag(TagUnverified))

	addr.SetTag(TagVerified)
	assert.True(t, addr.HasTag(TagVerified))
	assert.False(t, addr.HasTag(TagUnverified))

	// Once verified, an Unverified re-tag is ignored.
	addr.SetTag(TagUnverified)
	assert.True(t, addr.HasTag(TagVerified))
	assert.False(t, addr.HasTag(TagUnverified))
}

func TestSetTagIdempotent(t *testing.T) {
	addr := NewAddress("0xabc0000000000000000000000000000000000003", "ethereum", time.Now())
	addr.SetTag(TagContract)
	addr.SetTag(TagContract)
	addr.SetTag(TagProxy)
	addr.SetTag(TagProxy)

	assert.Equal(t, []string{"Contract", "Proxy"}, addr.Tags)
}

func TestIsClassified(t *testing.T) {
	addr := NewAddress("0xabc0000000000000000000000000000000000004", "ethereum", time.Now())
	assert.False(t, addr.IsClassified())

	addr.SetTag(TagProxy)
	assert.False(t, addr.IsClassified())

	addr.SetTag(TagEOA)
	assert.True(t, addr.IsClassified())
}
