package dispatch_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironca/operation"
)

// blockRevoke makes Revoke of host wait until release is closed. entered is
// closed once Revoke has started and done is set when it returns.
func blockRevoke(h *harness, host string) (entered, release chan struct{}, done *atomic.Bool) {
	entered = make(chan struct{})
	release = make(chan struct{})
	done = &atomic.Bool{}
	h.svc.On("Revoke", mock.Anything, host).Run(func(mock.Arguments) {
		close(entered)
		<-release
		done.Store(true)
	}).Return(nil).Once()
	return entered, release, done
}

func assertBlocked(t *testing.T, errs <-chan error) {
	t.Helper()
	select {
	case err := <-errs:
		t.Fatalf("operation finished while a revoke held the authority: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListWaitsForRevoke(t *testing.T) {
	h := newHarness()
	h.addCert("a")
	entered, release, revoked := blockRevoke(h, "a")

	observe := func(mock.Arguments) {
		assert.True(t, revoked.Load(), "list ran while revoke was in progress")
	}
	h.svc.On("Waiting", mock.Anything).Run(observe).Return([]string{}, nil)
	h.svc.On("List", mock.Anything, []string(nil)).Run(observe).Return([]string{"a"}, nil)
	h.svc.On("Verify", mock.Anything, "a").Run(observe).Return(nil)

	revoke, err := operation.New("revoke", operation.Hosts("a"), operation.Options{})
	require.NoError(t, err)
	list, err := operation.New("list", operation.All(), operation.Options{Output: []string{"base"}})
	require.NoError(t, err)

	revokeErr := make(chan error, 1)
	go func() { revokeErr <- h.d.Apply(t.Context(), revoke) }()
	<-entered

	listErr := make(chan error, 1)
	go func() { listErr <- h.d.Apply(t.Context(), list) }()
	assertBlocked(t, listErr)

	close(release)
	require.NoError(t, <-revokeErr)
	require.NoError(t, <-listErr)
	assert.Equal(t, "+ \"a\"\n", h.out.String())
}

func TestMutationsAreSerialized(t *testing.T) {
	h := newHarness()
	entered, release, revoked := blockRevoke(h, "a")
	h.svc.On("Destroy", mock.Anything, "b").Run(func(mock.Arguments) {
		assert.True(t, revoked.Load(), "destroy ran while revoke was in progress")
	}).Return(nil).Once()

	revoke, err := operation.New("revoke", operation.Hosts("a"), operation.Options{})
	require.NoError(t, err)
	destroy, err := operation.New("destroy", operation.Hosts("b"), operation.Options{})
	require.NoError(t, err)

	revokeErr := make(chan error, 1)
	go func() { revokeErr <- h.d.Apply(t.Context(), revoke) }()
	<-entered

	destroyErr := make(chan error, 1)
	go func() { destroyErr <- h.d.Apply(t.Context(), destroy) }()
	assertBlocked(t, destroyErr)

	close(release)
	require.NoError(t, <-revokeErr)
	require.NoError(t, <-destroyErr)
	h.svc.AssertExpectations(t)
}

func TestReadsShareTheAuthority(t *testing.T) {
	h := newHarness()
	entered := make(chan struct{})
	release := make(chan struct{})
	h.svc.On("Verify", mock.Anything, "a").Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(nil).Once()
	h.svc.On("Verify", mock.Anything, "b").Return(nil).Once()

	slow, err := operation.New("verify", operation.Hosts("a"), operation.Options{})
	require.NoError(t, err)
	fast, err := operation.New("verify", operation.Hosts("b"), operation.Options{})
	require.NoError(t, err)

	slowErr := make(chan error, 1)
	go func() { slowErr <- h.d.Apply(t.Context(), slow) }()
	<-entered

	require.NoError(t, h.d.Apply(t.Context(), fast))
	close(release)
	require.NoError(t, <-slowErr)
}
