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

var _ = Describe("Manual Sync", Label("sync"), func() {
	var (
		tempDir      string
		commerceMock *helpers.CommerceBackend
		indexMock    *helpers.IndexBackend
		serverHelper *helpers.ServerTestHelper
		storeID      string
		overrides    *helpers.ConfigOverrides
	)

	registerStore := func(token string) {
		resp, err := serverHelper.RegisterStore(storeID, "Sync Spec Store", "shopify", token)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		_ = resp.Body.Close()
	}

	triggerSync := func() v1.SyncRunResponse {
		resp, err := serverHelper.TriggerSync(storeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var run v1.SyncRunResponse
		helpers.DecodeJSON(resp, &run)
		return run
	}

	currentJob := func() v1.JobResponse {
		resp, err := serverHelper.GetJob(storeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var job v1.JobResponse
		helpers.DecodeJSON(resp, &job)
		return job
	}

	BeforeEach(func() {
		tempDir = createTempDir("sync-test-")
		commerceMock = helpers.NewCommerceBackend()
		indexMock = helpers.NewIndexBackend()
		storeID = helpers.UniqueStoreID("sync")
		overrides = nil
	})

	// Contexts adjust overrides in their own BeforeEach; the server
	// starts after every BeforeEach has run.
	JustBeforeEach(func() {
		configFile := helpers.WriteConfigYAML(tempDir, commerceMock.URL(), indexMock.URL(), overrides)
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

	Context("Successful Runs", func() {
		It("should index every entity type and complete the job", func() {
			commerceMock.RequireToken("tok-happy")
			counts := helpers.SeedAllEntityTypes(commerceMock)
			registerStore("tok-happy")

			run := triggerSync()
			Expect(run.Success).To(BeTrue(), "run error: %s", run.Error)
			Expect(run.StoreID).To(Equal(storeID))
			Expect(run.SyncedCounts).To(Equal(counts))

			for entityType, count := range counts {
				namespace := index.Namespace(storeID, entityType)
				Expect(indexMock.DocumentCount(namespace)).To(Equal(count), "namespace %s", namespace)
			}

			doc, ok := indexMock.Document(index.Namespace(storeID, "products"), "product-1")
			Expect(ok).To(BeTrue())
			Expect(doc.Fields).To(HaveKeyWithValue("title", "Product 1"))
			Expect(doc.Fields).To(HaveKeyWithValue("sku", "SKU-0001"))
			Expect(doc.Fields).To(HaveKey("updated_at"))

			job := currentJob()
			Expect(job.Status).To(Equal("completed"))
			Expect(job.RetryCount).To(BeZero())
			Expect(job.LastError).To(BeEmpty())
			Expect(job.NextRunAt).To(BeTemporally(">", time.Now()))
		})

		It("should fetch incrementally after the first run", func() {
			helpers.SeedAllEntityTypes(commerceMock)
			registerStore("tok-incremental")

			Expect(triggerSync().Success).To(BeTrue())
			Expect(triggerSync().Success).To(BeTrue())

			requests := commerceMock.Requests()
			Expect(requests).To(HaveLen(6))
			for _, uri := range requests[:3] {
				Expect(uri).NotTo(ContainSubstring("updated_since="), "first run: %s", uri)
			}
			for _, uri := range requests[3:] {
				Expect(uri).To(ContainSubstring("updated_since="), "second run: %s", uri)
			}
		})

		It("should skip malformed records and index the rest", func() {
			products := helpers.CreateProductEntities(2)
			products = append(products, commerce.Entity{
				Attributes: map[string]any{"title": "No ID"},
			})
			commerceMock.SetEntities(commerce.EntityProducts, products)
			registerStore("tok-malformed")

			run := triggerSync()
			Expect(run.Success).To(BeTrue())
			Expect(run.SyncedCounts).To(HaveKeyWithValue("products", 2))
			Expect(indexMock.DocumentCount(index.Namespace(storeID, "products"))).To(Equal(2))
		})
	})

	Context("Failure Handling", func() {
		Context("with a production-scale backoff base", func() {
			BeforeEach(func() {
				overrides = &helpers.ConfigOverrides{RetryBackoffBase: "1m"}
			})

			It("should back off after a transient failure", func() {
				commerceMock.FailAllWith(http.StatusInternalServerError)
				registerStore("tok-transient")

				run := triggerSync()
				Expect(run.Success).To(BeFalse())
				Expect(run.Error).NotTo(BeEmpty())

				job := currentJob()
				Expect(job.Status).To(Equal("failed"))
				Expect(job.RetryCount).To(Equal(1))
				Expect(job.LastError).NotTo(BeEmpty())
				// First failure delays the next run by 3^1 x 1m.
				Expect(job.NextRunAt).To(BeTemporally(">", time.Now().Add(2*time.Minute)))
			})
		})

		It("should pause after exhausting retries and recover on reconnection", func() {
			commerceMock.FailAllWith(http.StatusServiceUnavailable)
			registerStore("tok-exhausted")

			for i := 0; i < 3; i++ {
				Expect(triggerSync().Success).To(BeFalse())
			}

			job := currentJob()
			Expect(job.Status).To(Equal("paused"))
			Expect(job.RetryCount).To(Equal(3))

			commerceMock.FailAllWith(0)
			counts := helpers.SeedAllEntityTypes(commerceMock)

			resp, err := serverHelper.Reconnect(storeID, "tok-fresh")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var rearmed v1.JobResponse
			helpers.DecodeJSON(resp, &rearmed)
			Expect(rearmed.Status).To(Equal("pending"))
			Expect(rearmed.RetryCount).To(BeZero())

			run := triggerSync()
			Expect(run.Success).To(BeTrue(), "run error: %s", run.Error)
			Expect(run.SyncedCounts).To(Equal(counts))
			Expect(currentJob().Status).To(Equal("completed"))
		})

		It("should pause immediately on a validation failure", func() {
			commerceMock.FailAllWith(http.StatusUnprocessableEntity)
			registerStore("tok-validation")

			run := triggerSync()
			Expect(run.Success).To(BeFalse())

			job := currentJob()
			Expect(job.Status).To(Equal("paused"))
			Expect(job.RetryCount).To(Equal(1))
		})
	})

	Context("Lock Conflicts", func() {
		It("should reject a concurrent trigger with a structured conflict", func() {
			helpers.SeedAllEntityTypes(commerceMock)
			registerStore("tok-conflict")

			commerceMock.Block()
			firstRun := make(chan *http.Response, 1)
			go func() {
				defer GinkgoRecover()
				resp, err := serverHelper.TriggerSync(storeID)
				Expect(err).NotTo(HaveOccurred())
				firstRun <- resp
			}()

			Eventually(func() int {
				resp, err := serverHelper.GetLocks()
				if err != nil {
					return -1
				}
				var list v1.LockListResponse
				helpers.DecodeJSON(resp, &list)
				return list.Count
			}, 5*time.Second, 100*time.Millisecond).Should(Equal(1))

			locksResp, err := serverHelper.GetLocks()
			Expect(err).NotTo(HaveOccurred())
			var held v1.LockListResponse
			helpers.DecodeJSON(locksResp, &held)
			Expect(held.Locks[0].OperationClass).To(Equal("manual_sync"))
			Expect(currentJob().Status).To(Equal("running"))

			conflictResp, err := serverHelper.TriggerSync(storeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(conflictResp.StatusCode).To(Equal(http.StatusConflict))

			var conflict v1.ConflictResponse
			helpers.DecodeJSON(conflictResp, &conflict)
			Expect(conflict.Success).To(BeFalse())
			Expect(conflict.StoreID).To(Equal(storeID))
			Expect(conflict.HeldBy).To(Equal("manual_sync"))
			Expect(conflict.ExpiresAt).NotTo(BeNil())

			commerceMock.Release()

			var resp *http.Response
			Eventually(firstRun, 10*time.Second).Should(Receive(&resp))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var run v1.SyncRunResponse
			helpers.DecodeJSON(resp, &run)
			Expect(run.Success).To(BeTrue(), "run error: %s", run.Error)

			Expect(currentJob().Status).To(Equal("completed"))

			finalLocks, err := serverHelper.GetLocks()
			Expect(err).NotTo(HaveOccurred())
			var final v1.LockListResponse
			helpers.DecodeJSON(finalLocks, &final)
			Expect(final.Count).To(BeZero())
		})
	})
})
