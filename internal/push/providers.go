package push

import (
	"context"
	"sync"

	"vn.io.arda/storefront-notifier/internal/domain"
)

// Unsupported is the provider for platforms without push messaging.
type Unsupported struct{}

func (Unsupported) Supported() bool { return false }

func (Unsupported) Permission(context.Context) (domain.Permission, error) {
	return domain.PermissionDefault, ErrUnsupported
}

func (Unsupported) RequestPermission(context.Context) (domain.Permission, error) {
	return domain.PermissionDefault, ErrUnsupported
}

func (Unsupported) Token(context.Context) (string, error) { return "", ErrUnsupported }

func (Unsupported) DeleteToken(context.Context) error { return ErrUnsupported }

// Static is a headless provider whose permission and token come from configuration.
// It cannot prompt: RequestPermission reports the configured permission unchanged.
type Static struct {
	mu         sync.Mutex
	permission domain.Permission
	token      string
}

// NewStatic creates a Static provider. An unknown permission is treated as default.
func NewStatic(permission domain.Permission, token string) *Static {
	switch permission {
	case domain.PermissionGranted, domain.PermissionDenied:
	default:
		permission = domain.PermissionDefault
	}
	return &Static{permission: permission, token: token}
}

func (s *Static) Supported() bool { return true }

func (s *Static) Permission(context.Context) (domain.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission, nil
}

func (s *Static) RequestPermission(ctx context.Context) (domain.Permission, error) {
	return s.Permission(ctx)
}

func (s *Static) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *Static) DeleteToken(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
