package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnection_MarkDeliveredAndAlreadyDelivered(t *testing.T) {
	c := &Connection{deliveredSet: make(map[string]struct{})}

	assert.False(t, c.AlreadyDelivered("m1"))
	c.MarkDelivered("m1")
	assert.True(t, c.AlreadyDelivered("m1"))
}

func TestConnection_MarkDeliveredEvictsOldestBeyondWindow(t *testing.T) {
	c := &Connection{deliveredSet: make(map[string]struct{})}

	for i := 0; i < dedupWindowSize+1; i++ {
		c.MarkDelivered(string(rune('a' + i%26)) + "-" + string(rune(i)))
	}

	assert.Len(t, c.delivered, dedupWindowSize)
}
