package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/pkg/workflow"
)

func TestIdentity(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Identity Suite")
}

type fakeRoleSource struct {
	roles   map[string]workflow.ApproverRole
	lookups int
}

func (f *fakeRoleSource) LookupRole(_ context.Context, userID string) (workflow.ApproverRole, error) {
	f.lookups++
	role, ok := f.roles[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return role, nil
}

var _ = Describe("CachedIdentity", func() {
	var (
		mr     *miniredis.Miniredis
		client *redis.Client
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	})

	AfterEach(func() {
		mr.Close()
	})

	It("resolves from the source on a cache miss and caches the result", func() {
		src := &fakeRoleSource{roles: map[string]workflow.ApproverRole{"u1": workflow.RoleSLM}}
		id := NewCachedIdentity(src, client, time.Minute)

		role, err := id.ResolveRole(context.Background(), "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal(workflow.RoleSLM))
		Expect(src.lookups).To(Equal(1))

		role, err = id.ResolveRole(context.Background(), "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(role).To(Equal(workflow.RoleSLM))
		Expect(src.lookups).To(Equal(1), "second resolve should be served from cache")
	})

	It("propagates a source lookup failure as store_unavailable", func() {
		src := &fakeRoleSource{roles: map[string]workflow.ApproverRole{}}
		id := NewCachedIdentity(src, client, time.Minute)

		_, err := id.ResolveRole(context.Background(), "missing")
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeStoreUnavailable)).To(BeTrue())
	})
})
