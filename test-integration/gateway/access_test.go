package integration

import (
	"net/http"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/toolhive-gateway/internal/access"
	"github.com/stacklok/toolhive-gateway/internal/api/admin"
	"github.com/stacklok/toolhive-gateway/internal/store"
	"github.com/stacklok/toolhive-gateway/test-integration/gateway/helpers"
)

var _ = Describe("Access Enforcement", Label("access"), func() {
	var (
		tempDir      string
		serverHelper *helpers.ServerTestHelper
		prefix       string
		premiumPath  string
		freePath     string
	)

	// recordID waits for the catalog sync to record path and returns its id
	recordID := func(path string) string {
		var id string
		Eventually(func(g Gomega) {
			resp, err := serverHelper.Get("/admin/endpoints?search="+url.QueryEscape(path), "root")
			g.Expect(err).NotTo(HaveOccurred())
			var page store.ListResult
			g.Expect(helpers.DecodeJSON(resp, &page)).To(Succeed())
			g.Expect(page.Records).NotTo(BeEmpty())
			for _, rec := range page.Records {
				if rec.Path == path {
					id = rec.ID.String()
				}
			}
			g.Expect(id).NotTo(BeEmpty())
		}, 10*time.Second, 100*time.Millisecond).Should(Succeed())
		return id
	}

	setStatus := func(path string, status store.Status) {
		resp, err := serverHelper.Do(http.MethodPatch, "/admin/endpoints/status", "root", admin.BulkStatusRequest{
			IDs:    []string{recordID(path)},
			Status: status,
		})
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	}

	BeforeEach(func() {
		tempDir = createTempDir("gateway-access-test-")
		prefix = helpers.UniquePrefix("access")
		premiumPath = prefix + "/premium"
		freePath = prefix + "/free"

		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, tempDir)
		Expect(err).NotTo(HaveOccurred())
		serverHelper.WriteManifest("access.yaml", helpers.NewStaticManifest("access", premiumPath, freePath))

		serverHelper.PutUser("root", store.RoleAdmin, nil)
		serverHelper.PutUser("alice", store.RoleUser, nil)
		future := time.Now().Add(24 * time.Hour)
		serverHelper.PutUser("vic", store.RoleVIP, &future)
		past := time.Now().Add(-time.Hour)
		serverHelper.PutUser("lapsed", store.RoleVIP, &past)

		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
	})

	Context("with a premium endpoint", func() {
		BeforeEach(func() {
			setStatus(premiumPath, store.StatusPremium)
		})

		It("should require a login from anonymous callers", func() {
			resp, err := serverHelper.Get(premiumPath, "")
			Expect(err).NotTo(HaveOccurred())
			var denial access.Denial
			Expect(helpers.DecodeJSON(resp, &denial)).To(Succeed())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(denial.Reason).To(Equal(access.ReasonLoginRequired))
			Expect(denial.VIPRequired).To(BeTrue())
		})

		It("should ask regular users to upgrade", func() {
			resp, err := serverHelper.Get(premiumPath, "alice")
			Expect(err).NotTo(HaveOccurred())
			var denial access.Denial
			Expect(helpers.DecodeJSON(resp, &denial)).To(Succeed())
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(denial.Reason).To(Equal(access.ReasonUpgradeRequired))
		})

		It("should report an expired vip membership", func() {
			resp, err := serverHelper.Get(premiumPath, "lapsed")
			Expect(err).NotTo(HaveOccurred())
			var denial access.Denial
			Expect(helpers.DecodeJSON(resp, &denial)).To(Succeed())
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(denial.Reason).To(Equal(access.ReasonExpired))
		})

		It("should allow active vips and admins", func() {
			Expect(serverHelper.StatusOf(premiumPath, "vic")).To(Equal(http.StatusOK))
			Expect(serverHelper.StatusOf(premiumPath, "root")).To(Equal(http.StatusOK))
		})

		It("should leave free endpoints open", func() {
			Expect(serverHelper.StatusOf(freePath, "")).To(Equal(http.StatusOK))
			Expect(serverHelper.StatusOf(freePath, "alice")).To(Equal(http.StatusOK))
		})

		It("should apply a role change on the next request", func() {
			Expect(serverHelper.StatusOf(premiumPath, "alice")).To(Equal(http.StatusForbidden))

			future := time.Now().Add(time.Hour)
			resp, err := serverHelper.Do(http.MethodPut, "/admin/users/alice/role", "root", admin.RoleRequest{
				Role:         store.RoleVIP,
				VIPExpiresAt: &future,
			})
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Expect(serverHelper.StatusOf(premiumPath, "alice")).To(Equal(http.StatusOK))
		})
	})

	Context("with a disabled endpoint", func() {
		BeforeEach(func() {
			setStatus(freePath, store.StatusDisabled)
		})

		It("should deny everyone except admins", func() {
			Expect(serverHelper.StatusOf(freePath, "")).To(Equal(http.StatusUnauthorized))
			Expect(serverHelper.StatusOf(freePath, "vic")).To(Equal(http.StatusForbidden))
			Expect(serverHelper.StatusOf(freePath, "root")).To(Equal(http.StatusOK))
		})

		It("should reopen the endpoint when set back to free", func() {
			setStatus(freePath, store.StatusFree)
			Expect(serverHelper.StatusOf(freePath, "")).To(Equal(http.StatusOK))
		})
	})

	It("should never serve a route declared with a pattern segment", func() {
		dynamic := helpers.NewStaticManifest("users", prefix+"/users/{id}")
		serverHelper.WriteManifest("users.yaml", dynamic)
		serverHelper.WriteManifest("accounts.yaml", helpers.NewStaticManifest("accounts", prefix+"/accounts"))

		Eventually(func() (int, error) {
			return serverHelper.StatusOf(prefix+"/accounts", "")
		}, 10*time.Second, 100*time.Millisecond).Should(Equal(http.StatusOK))

		Expect(serverHelper.StatusOf(prefix+"/users/5", "")).To(Equal(http.StatusNotFound))
		Expect(serverHelper.StatusOf(prefix+"/users/5", "alice")).To(Equal(http.StatusNotFound))
	})

	It("should reject a token for an unknown user", func() {
		setStatus(premiumPath, store.StatusVIP)
		Expect(serverHelper.StatusOf(premiumPath, "ghost")).To(Equal(http.StatusUnauthorized))
	})
})
