package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/merchantiq/storesync/internal/api/v1"
	"github.com/merchantiq/storesync/test-integration/storesync-api/helpers"
)

var _ = Describe("API Surface", Label("api"), func() {
	var (
		tempDir      string
		commerceMock *helpers.CommerceBackend
		indexMock    *helpers.IndexBackend
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("api-test-")
		commerceMock = helpers.NewCommerceBackend()
		indexMock = helpers.NewIndexBackend()

		configFile := helpers.WriteConfigYAML(tempDir, commerceMock.URL(), indexMock.URL(), nil)
		serverHelper = helpers.NewServerTestHelper(ctx, configFile, helpers.FreePort())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		commerceMock.Close()
		indexMock.Close()
		cleanupTempDir(tempDir)
	})

	Context("System Endpoints", func() {
		It("should report healthy and ready", func() {
			resp, err := serverHelper.GetHealth()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var health map[string]string
			helpers.DecodeJSON(resp, &health)
			Expect(health).To(HaveKeyWithValue("status", "healthy"))

			resp, err = serverHelper.GetReadiness()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var readiness map[string]string
			helpers.DecodeJSON(resp, &readiness)
			Expect(readiness).To(HaveKeyWithValue("status", "ready"))
		})

		It("should report build information", func() {
			resp, err := serverHelper.GetVersion()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var version map[string]string
			helpers.DecodeJSON(resp, &version)
			Expect(version).To(HaveKey("version"))
			Expect(version["go_version"]).NotTo(BeEmpty())
			Expect(version["platform"]).NotTo(BeEmpty())
		})
	})

	Context("Store Registration", func() {
		It("should register a store and seed its sync job", func() {
			storeID := helpers.UniqueStoreID("register")

			resp, err := serverHelper.RegisterStore(storeID, "Acme Outfitters", "shopify", "tok-acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var job v1.JobResponse
			helpers.DecodeJSON(resp, &job)
			Expect(job.StoreID).To(Equal(storeID))
			// A never-synced store is maximally stale
			Expect(job.Priority).To(Equal("high"))
			Expect(job.Status).To(Equal("pending"))
			Expect(job.RetryCount).To(BeZero())
			Expect(job.NextRunAt).To(BeTemporally("~", time.Now(), time.Minute))
		})

		It("should reject incomplete registrations", func() {
			resp, err := serverHelper.RegisterStore("", "No ID", "shopify", "tok")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			_ = resp.Body.Close()

			resp, err = serverHelper.RegisterStore(helpers.UniqueStoreID("bad"), "No Platform", "", "tok")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			_ = resp.Body.Close()

			resp, err = serverHelper.RegisterStore(helpers.UniqueStoreID("bad"), "No Token", "shopify", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			_ = resp.Body.Close()
		})

		It("should list a job snapshot per registered store", func() {
			first := helpers.UniqueStoreID("list-a")
			second := helpers.UniqueStoreID("list-b")

			for _, id := range []string{first, second} {
				resp, err := serverHelper.RegisterStore(id, "Store "+id, "woocommerce", "tok-"+id)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				_ = resp.Body.Close()
			}

			resp, err := serverHelper.GetJobs()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var list v1.JobListResponse
			helpers.DecodeJSON(resp, &list)
			Expect(list.Count).To(Equal(2))

			seen := make(map[string]bool, len(list.Jobs))
			for _, job := range list.Jobs {
				seen[job.StoreID] = true
			}
			Expect(seen).To(HaveKey(first))
			Expect(seen).To(HaveKey(second))
		})

		It("should answer 404 for an unknown job", func() {
			resp, err := serverHelper.GetJob("never-registered")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			_ = resp.Body.Close()
		})
	})

	Context("Lock Listing", func() {
		It("should start with no active locks", func() {
			resp, err := serverHelper.GetLocks()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var list v1.LockListResponse
			helpers.DecodeJSON(resp, &list)
			Expect(list.Count).To(BeZero())
			Expect(list.Locks).To(BeEmpty())
		})
	})
})
