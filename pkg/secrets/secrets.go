package secrets

import (
	"context"
	"errors"
)

var ErrEmptySecret = errors.New("secret value is empty")

type Provider interface {
	APIKey(ctx context.Context) (string, error)
}

// Static serves a key that was already known at startup, e.g. from configuration.
type Static struct {
	key string
}

func NewStatic(key string) Static {
	return Static{key: key}
}

func (s Static) APIKey(context.Context) (string, error) {
	if s.key == "" {
		return "", ErrEmptySecret
	}
	return s.key, nil
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context) (string, error)

func (f Func) APIKey(ctx context.Context) (string, error) {
	return f(ctx)
}
