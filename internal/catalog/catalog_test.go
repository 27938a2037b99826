package catalog

import (
	"testing"

	"github.com/densematrix/resumeforge/internal/config"
	"go.uber.org/zap"
)

func loadTestCatalog(t *testing.T, cfg config.Config) *Catalog {
	t.Helper()
	cat, err := Load(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func TestListComputesDiscounts(t *testing.T) {
	cat := loadTestCatalog(t, config.Config{})

	listed := cat.List()
	if len(listed) != 3 {
		t.Fatalf("expected 3 products, got %d", len(listed))
	}
	byID := map[string]ListedProduct{}
	for _, p := range listed {
		byID[p.SKU] = p
	}

	// starter_30 carries the worst per-unit price, so it gets no discount tag.
	if byID["starter_30"].DiscountPercent != nil {
		t.Fatalf("expected no discount on starter_30, got %d", *byID["starter_30"].DiscountPercent)
	}
	// pro_100: 6.99 vs 9.9667 per unit, truncated to 29.
	if d := byID["pro_100"].DiscountPercent; d == nil || *d != 29 {
		t.Fatalf("expected pro_100 discount 29, got %v", d)
	}
	// unlimited_monthly: 1.0 vs 9.9667 per unit, truncated to 89.
	if d := byID["unlimited_monthly"].DiscountPercent; d == nil || *d != 89 {
		t.Fatalf("expected unlimited_monthly discount 89, got %v", d)
	}
}

func TestGet(t *testing.T) {
	cat := loadTestCatalog(t, config.Config{})

	p, ok := cat.Get("pro_100")
	if !ok || p.PriceCents != 699 || p.Generations != 100 {
		t.Fatalf("unexpected product: ok=%v %+v", ok, p)
	}
	if _, ok := cat.Get("missing"); ok {
		t.Fatal("expected miss for unknown sku")
	}
	// Keys tolerate surrounding whitespace.
	if _, ok := cat.Get(" starter_30 "); !ok {
		t.Fatal("expected trimmed lookup to hit")
	}
}

func TestProviderProductIDMapping(t *testing.T) {
	cat := loadTestCatalog(t, config.Config{
		CreemProductIDs: `{"starter_30": "prod_abc", "pro_100": "  "}`,
	})

	id, ok := cat.ProviderProductID("starter_30")
	if !ok || id != "prod_abc" {
		t.Fatalf("expected prod_abc, got ok=%v id=%q", ok, id)
	}
	if _, ok := cat.ProviderProductID("pro_100"); ok {
		t.Fatal("expected blank mapping to count as unconfigured")
	}
	if _, ok := cat.ProviderProductID("unlimited_monthly"); ok {
		t.Fatal("expected absent mapping to count as unconfigured")
	}
}

func TestProviderProductIDInvalidJSON(t *testing.T) {
	cat := loadTestCatalog(t, config.Config{CreemProductIDs: `not-json`})

	if _, ok := cat.ProviderProductID("starter_30"); ok {
		t.Fatal("expected mapping disabled on invalid JSON")
	}
}
