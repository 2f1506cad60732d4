package odoo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrPrincipalNotConnected is returned before the principal session exists.
	ErrPrincipalNotConnected = errors.New("odoo: principal catalog not connected")
	// ErrBranchNotConnected is returned before the branch session exists.
	ErrBranchNotConnected = errors.New("odoo: branch catalog not connected")
)

// Registry owns the two long-lived gateway sessions. A session is replaced
// wholesale when new credentials authenticate successfully; a failed attempt
// leaves the previous session in place.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	principal *Client
	branch    *Client
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// ConnectPrincipal authenticates against the principal catalog and installs
// the session on success.
func (r *Registry) ConnectPrincipal(ctx context.Context, creds Credentials) (*ConnectionInfo, error) {
	client := NewClient(creds, r.logger.With(slog.String("catalog", "principal")))
	info, err := client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.principal = client
	r.mu.Unlock()
	return info, nil
}

// ConnectBranch authenticates against the branch catalog and installs the
// session on success.
func (r *Registry) ConnectBranch(ctx context.Context, creds Credentials) (*ConnectionInfo, error) {
	client := NewClient(creds, r.logger.With(slog.String("catalog", "branch")))
	info, err := client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.branch = client
	r.mu.Unlock()
	return info, nil
}

// Principal returns the principal session.
func (r *Registry) Principal() (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.principal == nil {
		return nil, ErrPrincipalNotConnected
	}
	return r.principal, nil
}

// Branch returns the branch session.
func (r *Registry) Branch() (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.branch == nil {
		return nil, ErrBranchNotConnected
	}
	return r.branch, nil
}

// Status reports which sessions are live.
func (r *Registry) Status() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]bool{
		"principal": r.principal != nil && r.principal.Authenticated(),
		"branch":    r.branch != nil && r.branch.Authenticated(),
	}
}
