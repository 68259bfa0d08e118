package system

import "context"

type envKey struct{}

// WithEnv returns a context carrying env. Request handlers pass it down so
// that every lookup within one request sees the same registry.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// FromContext returns the Env carried by ctx.
func FromContext(ctx context.Context) (*Env, bool) {
	env, ok := ctx.Value(envKey{}).(*Env)
	return env, ok && env != nil
}
