package service

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/btsutskiridze/OnlineStore/internal/orders/catalog"
)

// normalizeItems collapses duplicate product ids by summing quantities and
// sorts by product id, producing the canonical form of the request: item
// ordering or duplicated lines never change the fingerprint or the outcome.
func normalizeItems(items []ItemRequest) []catalog.QuantityItem {
	byProduct := make(map[int64]int, len(items))
	for _, item := range items {
		byProduct[item.ProductID] += item.Quantity
	}

	normalized := make([]catalog.QuantityItem, 0, len(byProduct))
	for productID, quantity := range byProduct {
		normalized = append(normalized, catalog.QuantityItem{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].ProductID < normalized[j].ProductID
	})
	return normalized
}

// requestFingerprint hashes the normalized item list so a reused idempotency
// key with a different payload can be detected.
func requestFingerprint(items []catalog.QuantityItem) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(strconv.FormatInt(item.ProductID, 10))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(item.Quantity))
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
