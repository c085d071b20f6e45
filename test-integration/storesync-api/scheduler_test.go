package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/merchantiq/storesync/internal/api/v1"
	"github.com/merchantiq/storesync/internal/index"
	"github.com/merchantiq/storesync/test-integration/storesync-api/helpers"
)

var _ = Describe("Scheduled Sync", Label("scheduler"), func() {
	var (
		tempDir      string
		commerceMock *helpers.CommerceBackend
		indexMock    *helpers.IndexBackend
		serverHelper *helpers.ServerTestHelper
		storeID      string
	)

	BeforeEach(func() {
		tempDir = createTempDir("scheduler-test-")
		commerceMock = helpers.NewCommerceBackend()
		indexMock = helpers.NewIndexBackend()
		storeID = helpers.UniqueStoreID("scheduled")

		// A fast tick and the 1ms backoff base let the loop run several
		// rounds within the spec timeout.
		configFile := helpers.WriteConfigYAML(tempDir, commerceMock.URL(), indexMock.URL(),
			&helpers.ConfigOverrides{TickInterval: "200ms"})
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

	currentJob := func() v1.JobResponse {
		resp, err := serverHelper.GetJob(storeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var job v1.JobResponse
		helpers.DecodeJSON(resp, &job)
		return job
	}

	jobStatus := func() string {
		resp, err := serverHelper.GetJob(storeID)
		if err != nil {
			return ""
		}
		var job v1.JobResponse
		helpers.DecodeJSON(resp, &job)
		return job.Status
	}

	It("should sync a registered store without a manual trigger", func() {
		counts := helpers.SeedAllEntityTypes(commerceMock)

		resp, err := serverHelper.RegisterStore(storeID, "Background Store", "shopify", "tok-bg")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		_ = resp.Body.Close()

		Eventually(jobStatus, 15*time.Second, 200*time.Millisecond).Should(Equal("completed"))

		for entityType, count := range counts {
			namespace := index.Namespace(storeID, entityType)
			Expect(indexMock.DocumentCount(namespace)).To(Equal(count), "namespace %s", namespace)
		}
		Expect(currentJob().RetryCount).To(BeZero())
	})

	It("should pause a failing store after the retry budget and resume after reconnection", func() {
		commerceMock.FailAllWith(http.StatusBadGateway)

		resp, err := serverHelper.RegisterStore(storeID, "Flaky Store", "shopify", "tok-flaky")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		_ = resp.Body.Close()

		Eventually(jobStatus, 15*time.Second, 200*time.Millisecond).Should(Equal("paused"))
		Expect(currentJob().RetryCount).To(Equal(3))

		commerceMock.FailAllWith(0)
		helpers.SeedAllEntityTypes(commerceMock)

		// The final failing run can still hold its lock for an instant
		// after the pause lands; the reconnect conflicts until released.
		Eventually(func() int {
			resp, err := serverHelper.Reconnect(storeID, "tok-rotated")
			if err != nil {
				return 0
			}
			defer func() { _ = resp.Body.Close() }()
			return resp.StatusCode
		}, 5*time.Second, 100*time.Millisecond).Should(Equal(http.StatusOK))

		// The re-armed pending job is due immediately; the next tick
		// picks it up.
		Eventually(jobStatus, 15*time.Second, 200*time.Millisecond).Should(Equal("completed"))
		Expect(indexMock.DocumentCount(index.Namespace(storeID, "products"))).To(BeNumerically(">", 0))
	})
})
