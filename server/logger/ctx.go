package logger

// Ctx holds key-value pairs attached to a log entry.
type Ctx map[string]interface{}

// WithCtx returns the union of both contexts, newCtx taking precedence.
// Neither context is modified.
func (c Ctx) WithCtx(newCtx Ctx) Ctx {
	switch {
	case c == nil:
		return newCtx
	case newCtx == nil:
		return c
	}

	ret := make(Ctx, len(c)+len(newCtx))

	for k, v := range c {
		ret[k] = v
	}

	for k, v := range newCtx {
		ret[k] = v
	}

	return ret
}
