package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/toolhive-gateway/internal/api"
	"github.com/stacklok/toolhive-gateway/internal/registry"
	"github.com/stacklok/toolhive-gateway/test-integration/gateway/helpers"
)

var _ = Describe("Hot Reload", Label("reload"), func() {
	var (
		tempDir      string
		serverHelper *helpers.ServerTestHelper
		prefix       string
	)

	BeforeEach(func() {
		tempDir = createTempDir("gateway-reload-test-")
		prefix = helpers.UniquePrefix("reload")

		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, tempDir)
		Expect(err).NotTo(HaveOccurred())
		serverHelper.WriteManifest("base.yaml", helpers.NewStaticManifest("base", prefix+"/first"))

		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
	})

	Context("when the manifest directory changes", func() {
		It("should serve the initial routes", func() {
			Expect(serverHelper.StatusOf(prefix+"/first", "")).To(Equal(http.StatusOK))
			Expect(serverHelper.StatusOf(prefix+"/missing", "")).To(Equal(http.StatusNotFound))
		})

		It("should serve routes of a newly added manifest", func() {
			serverHelper.WriteManifest("extra.yaml", helpers.NewStaticManifest("extra", prefix+"/second"))

			Eventually(func() (int, error) {
				return serverHelper.StatusOf(prefix+"/second", "")
			}, 10*time.Second, 100*time.Millisecond).Should(Equal(http.StatusOK))
			Expect(serverHelper.StatusOf(prefix+"/first", "")).To(Equal(http.StatusOK))
		})

		It("should stop serving routes of a removed manifest", func() {
			serverHelper.WriteManifest("extra.yaml", helpers.NewStaticManifest("extra", prefix+"/second"))
			Eventually(func() (int, error) {
				return serverHelper.StatusOf(prefix+"/second", "")
			}, 10*time.Second, 100*time.Millisecond).Should(Equal(http.StatusOK))

			serverHelper.RemoveManifest("extra.yaml")

			Eventually(func() (int, error) {
				return serverHelper.StatusOf(prefix+"/second", "")
			}, 10*time.Second, 100*time.Millisecond).Should(Equal(http.StatusNotFound))
		})

		It("should keep healthy modules when one manifest is broken", func() {
			serverHelper.WriteRawManifest("broken.yaml", []byte("name: broken\nroutes: [\n"))
			serverHelper.WriteManifest("extra.yaml", helpers.NewStaticManifest("extra", prefix+"/second"))

			Eventually(func() (int, error) {
				return serverHelper.StatusOf(prefix+"/second", "")
			}, 10*time.Second, 100*time.Millisecond).Should(Equal(http.StatusOK))
			Expect(serverHelper.StatusOf(prefix+"/first", "")).To(Equal(http.StatusOK))

			resp, err := serverHelper.Get("/health", "")
			Expect(err).NotTo(HaveOccurred())
			var health api.HealthResponse
			Expect(helpers.DecodeJSON(resp, &health)).To(Succeed())
			Expect(health.Reload.State).To(Equal(registry.StateReady))
			Expect(health.Reload.ModuleFailures).To(Equal(1))
		})
	})

	Context("when reloading through the admin API", func() {
		BeforeEach(func() {
			serverHelper.PutUser("root", "admin", nil)
		})

		It("should publish a new generation", func() {
			before := serverHelper.App().Components().Registry.Active().Number

			resp, err := serverHelper.Do(http.MethodPost, "/admin/reload", "root", nil)
			Expect(err).NotTo(HaveOccurred())
			var result registry.Result
			Expect(helpers.DecodeJSON(resp, &result)).To(Succeed())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(result.Success).To(BeTrue())
			Expect(result.Generation).To(BeNumerically(">", before))
		})

		It("should reject callers who are not admins", func() {
			serverHelper.PutUser("bob", "user", nil)

			resp, err := serverHelper.Do(http.MethodPost, "/admin/reload", "bob", nil)
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))

			resp, err = serverHelper.Do(http.MethodPost, "/admin/reload", "", nil)
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})
})
