package core

import "context"

type contextKey string

const (
	ctxKeyActor     contextKey = "audit_actor"
	ctxKeyIPAddress contextKey = "audit_ip"
	ctxKeyUserAgent contextKey = "audit_ua"
)

// RequestMeta identifies who triggered an operation, for audit entries.
type RequestMeta struct {
	Actor     string `json:"actor,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ContextWithActor adds the acting principal (API key name, user) to ctx.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, actor)
}

// ContextWithIPAddress adds the client IP address to ctx.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent adds the client User-Agent to ctx.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// MetaFromContext collects the request metadata stored in ctx.
func MetaFromContext(ctx context.Context) RequestMeta {
	var m RequestMeta
	m.Actor, _ = ctx.Value(ctxKeyActor).(string)
	m.IPAddress, _ = ctx.Value(ctxKeyIPAddress).(string)
	m.UserAgent, _ = ctx.Value(ctxKeyUserAgent).(string)
	return m
}

// contextWithMeta copies request metadata onto a fresh background context,
// so work outliving the request keeps its attribution.
func contextWithMeta(ctx context.Context, m RequestMeta) context.Context {
	if m.Actor != "" {
		ctx = ContextWithActor(ctx, m.Actor)
	}
	if m.IPAddress != "" {
		ctx = ContextWithIPAddress(ctx, m.IPAddress)
	}
	if m.UserAgent != "" {
		ctx = ContextWithUserAgent(ctx, m.UserAgent)
	}
	return ctx
}
