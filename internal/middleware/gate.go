package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// Backup operations close the store file, so they must never overlap with
// repository traffic. Requests share one RWMutex: normal handlers take the
// read side, backup handlers and the scheduler take the write side.

// ReadGate holds the shared gate's read lock for the request duration.
func ReadGate(gate *sync.RWMutex) gin.HandlerFunc {
	return func(c *gin.Context) {
		gate.RLock()
		defer gate.RUnlock()
		c.Next()
	}
}

// WriteGate holds the exclusive lock for the request duration.
func WriteGate(gate *sync.RWMutex) gin.HandlerFunc {
	return func(c *gin.Context) {
		gate.Lock()
		defer gate.Unlock()
		c.Next()
	}
}
