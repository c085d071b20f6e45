package helpers

import (
	"fmt"
	"time"

	"github.com/merchantiq/storesync/internal/commerce"
)

// fixtureTime anchors entity timestamps so attribute assertions are stable.
var fixtureTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// UniqueStoreID generates a store identifier that will not collide
// across specs sharing a server.
func UniqueStoreID(prefix string) string {
	return fmt.Sprintf("%s-store-%d", prefix, time.Now().UnixNano())
}

// CreateProductEntities builds n product records in the platform format.
func CreateProductEntities(n int) []commerce.Entity {
	entities := make([]commerce.Entity, 0, n)
	for i := 1; i <= n; i++ {
		entities = append(entities, commerce.Entity{
			ID:        fmt.Sprintf("product-%d", i),
			UpdatedAt: fixtureTime.Add(time.Duration(i) * time.Minute),
			Attributes: map[string]any{
				"title": fmt.Sprintf("Product %d", i),
				"sku":   fmt.Sprintf("SKU-%04d", i),
				"price": 9.99 + float64(i),
			},
		})
	}
	return entities
}

// CreateOrderEntities builds n order records in the platform format.
func CreateOrderEntities(n int) []commerce.Entity {
	entities := make([]commerce.Entity, 0, n)
	for i := 1; i <= n; i++ {
		entities = append(entities, commerce.Entity{
			ID:        fmt.Sprintf("order-%d", i),
			UpdatedAt: fixtureTime.Add(time.Duration(i) * time.Minute),
			Attributes: map[string]any{
				"number":   fmt.Sprintf("ORD-%05d", i),
				"total":    25.00 * float64(i),
				"currency": "USD",
			},
		})
	}
	return entities
}

// CreateCustomerEntities builds n customer records in the platform format.
func CreateCustomerEntities(n int) []commerce.Entity {
	entities := make([]commerce.Entity, 0, n)
	for i := 1; i <= n; i++ {
		entities = append(entities, commerce.Entity{
			ID:        fmt.Sprintf("customer-%d", i),
			UpdatedAt: fixtureTime.Add(time.Duration(i) * time.Minute),
			Attributes: map[string]any{
				"email": fmt.Sprintf("customer%d@example.com", i),
				"name":  fmt.Sprintf("Customer %d", i),
			},
		})
	}
	return entities
}

// SeedAllEntityTypes loads the backend with a small catalog of every
// entity type and returns the per-type counts.
func SeedAllEntityTypes(backend *CommerceBackend) map[string]int {
	backend.SetEntities(commerce.EntityProducts, CreateProductEntities(3))
	backend.SetEntities(commerce.EntityOrders, CreateOrderEntities(2))
	backend.SetEntities(commerce.EntityCustomers, CreateCustomerEntities(4))
	return map[string]int{
		string(commerce.EntityProducts):  3,
		string(commerce.EntityOrders):    2,
		string(commerce.EntityCustomers): 4,
	}
}
