package transport

// Closable is implemented by long lived objects owning goroutines.
type Closable interface {
	Close() error
	Done() <-chan struct{}
}
