// Package register collects setup hooks from package init functions so a
// provider can resolve them once it is constructed.
package register

import "sync"

type funcRegister struct {
	mu       sync.RWMutex
	handlers map[any][]any
}

var fr = &funcRegister{
	handlers: make(map[any][]any),
}

type Handler[T any] func(T)

// RegisterFunc adds handler under key, handlers keep their registration order.
func RegisterFunc[T any](key any, handler Handler[T]) {
	fr.mu.Lock()
	fr.handlers[key] = append(fr.handlers[key], handler)
	fr.mu.Unlock()
}

// ResolveFuncHandlers returns the handlers of key that accept T, others are skipped.
func ResolveFuncHandlers[T any](key any) []Handler[T] {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	var result []Handler[T]
	for _, v := range fr.handlers[key] {
		if h, ok := v.(Handler[T]); ok {
			result = append(result, h)
		}
	}
	return result
}
