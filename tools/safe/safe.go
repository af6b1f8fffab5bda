package safe

import (
	"PGateway/logger"
)

// Go starts a new goroutine that recovers from panic,
// so that a misbehaving handler doesn't crash the entire gateway.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] %s panic recovered: %v", name, r)
			}
		}()
		f()
	}()
}
