package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/merchantiq/storesync/internal/api/v1"
	"github.com/merchantiq/storesync/internal/commerce"
	"github.com/merchantiq/storesync/internal/index"
	"github.com/merchantiq/storesync/test-integration/storesync-api/helpers"
)

var _ = Describe("Store Removal", Label("stores"), func() {
	var (
		tempDir      string
		commerceMock *helpers.CommerceBackend
		indexMock    *helpers.IndexBackend
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("stores-test-")
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

	It("should tear down the job and index namespaces", func() {
		storeID := helpers.UniqueStoreID("removal")
		helpers.SeedAllEntityTypes(commerceMock)

		resp, err := serverHelper.RegisterStore(storeID, "Doomed Store", "shopify", "tok-doomed")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		_ = resp.Body.Close()

		syncResp, err := serverHelper.TriggerSync(storeID)
		Expect(err).NotTo(HaveOccurred())
		var run v1.SyncRunResponse
		helpers.DecodeJSON(syncResp, &run)
		Expect(run.Success).To(BeTrue(), "run error: %s", run.Error)
		Expect(indexMock.DocumentCount(index.Namespace(storeID, "products"))).To(BeNumerically(">", 0))

		removeResp, err := serverHelper.RemoveStore(storeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(removeResp.StatusCode).To(Equal(http.StatusNoContent))
		_ = removeResp.Body.Close()

		jobResp, err := serverHelper.GetJob(storeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(jobResp.StatusCode).To(Equal(http.StatusNotFound))
		_ = jobResp.Body.Close()

		deleted := indexMock.DeletedNamespaces()
		for _, entityType := range commerce.EntityTypes() {
			Expect(deleted).To(ContainElement(index.Namespace(storeID, string(entityType))))
			Expect(indexMock.DocumentCount(index.Namespace(storeID, string(entityType)))).To(BeZero())
		}
	})

	It("should allow re-registration after removal", func() {
		storeID := helpers.UniqueStoreID("rebirth")

		for attempt := 0; attempt < 2; attempt++ {
			resp, err := serverHelper.RegisterStore(storeID, "Recurring Store", "woocommerce", "tok-again")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var job v1.JobResponse
			helpers.DecodeJSON(resp, &job)
			Expect(job.Status).To(Equal("pending"))

			removeResp, err := serverHelper.RemoveStore(storeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(removeResp.StatusCode).To(Equal(http.StatusNoContent))
			_ = removeResp.Body.Close()
		}
	})

	It("should remove idempotently and answer 404 for unknown-store lookups", func() {
		// Teardown can be retried, so removing an absent store succeeds.
		resp, err := serverHelper.RemoveStore("never-registered")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		_ = resp.Body.Close()

		jobResp, err := serverHelper.GetJob("never-registered")
		Expect(err).NotTo(HaveOccurred())
		Expect(jobResp.StatusCode).To(Equal(http.StatusNotFound))
		_ = jobResp.Body.Close()

		triggerResp, err := serverHelper.TriggerSync("never-registered")
		Expect(err).NotTo(HaveOccurred())
		Expect(triggerResp.StatusCode).To(Equal(http.StatusNotFound))
		_ = triggerResp.Body.Close()
	})
})
