package dispatch_test

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/jmcleod/ironca/ca"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Generate(ctx context.Context, host string, opts ca.GenerateOptions) (*ca.Certificate, error) {
	args := m.Called(ctx, host, opts)
	return nil, args.Error(0)
}

func (m *mockService) Sign(ctx context.Context, host string, allowDNSAltNames bool) (*ca.Certificate, error) {
	args := m.Called(ctx, host, allowDNSAltNames)
	return nil, args.Error(0)
}

func (m *mockService) Verify(ctx context.Context, host string) error {
	return m.Called(ctx, host).Error(0)
}

func (m *mockService) List(ctx context.Context, hosts ...string) ([]string, error) {
	args := m.Called(ctx, hosts)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockService) Waiting(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockService) Print(ctx context.Context, host string) (string, error) {
	args := m.Called(ctx, host)
	return args.String(0), args.Error(1)
}

func (m *mockService) Destroy(ctx context.Context, host string) error {
	return m.Called(ctx, host).Error(0)
}

func (m *mockService) Revoke(ctx context.Context, host string) error {
	return m.Called(ctx, host).Error(0)
}

func (m *mockService) Digest(ctx context.Context, host, algorithm string) (string, error) {
	args := m.Called(ctx, host, algorithm)
	return args.String(0), args.Error(1)
}

func (m *mockService) Reinventory(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// memoryStore serves fixed requests and certificates.
type memoryStore struct {
	requests map[string]*ca.CertificateRequest
	certs    map[string]*ca.Certificate
}

func (s *memoryStore) FindCertificate(host string) (*ca.Certificate, error) {
	if c, ok := s.certs[host]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: cert %s", ca.ErrNotFound, host)
}

func (s *memoryStore) FindRequest(host string) (*ca.CertificateRequest, error) {
	if r, ok := s.requests[host]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: request %s", ca.ErrNotFound, host)
}
