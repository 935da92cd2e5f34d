package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTypes(t *testing.T) {
	assert.Nil(t, parseTypes(""))
	assert.Nil(t, parseTypes(" , "))

	got := parseTypes("reward_paid, transfer_failed")
	assert.Equal(t, map[string]bool{"reward_paid": true, "transfer_failed": true}, got)

	c := &wsConn{types: got}
	assert.True(t, c.wants("reward_paid"))
	assert.False(t, c.wants("thanks_posted"))
	assert.True(t, (&wsConn{}).wants("thanks_posted"))
}
