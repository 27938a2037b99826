// Package catalog holds the static product catalog. It is loaded once at
// process start and never mutated at runtime.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/densematrix/resumeforge/internal/config"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Product is one purchasable token pack.
type Product struct {
	SKU         string `json:"sku" mapstructure:"sku"`
	Name        string `json:"name" mapstructure:"name"`
	PriceCents  int64  `json:"price_cents" mapstructure:"price_cents"`
	Generations int64  `json:"generations" mapstructure:"generations"`
}

// ListedProduct is a Product with its derived discount. DiscountPercent is nil
// for the SKU with the worst per-unit price.
type ListedProduct struct {
	Product
	DiscountPercent *int `json:"discount_percent,omitempty"`
}

// Catalog is the immutable runtime view of the product configuration.
type Catalog struct {
	products    []Product
	bySKU       map[string]Product
	providerIDs map[string]string
}

// DefaultProducts mirrors the launch catalog. The unlimited pack is a very
// large grant, not a recurring entitlement.
func DefaultProducts() []Product {
	return []Product{
		{SKU: "starter_30", Name: "Starter Pack", PriceCents: 299, Generations: 30},
		{SKU: "pro_100", Name: "Pro Pack", PriceCents: 699, Generations: 100},
		{SKU: "unlimited_monthly", Name: "Unlimited Monthly", PriceCents: 999, Generations: 999},
	}
}

// Load builds the catalog from products.yml when present, falling back to the
// defaults, and attaches the provider product-id mapping from configuration.
func Load(cfg config.Config, log *zap.Logger) (*Catalog, error) {
	products := DefaultProducts()

	v := viper.New()
	v.SetConfigName("products")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/resumeforge")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read product catalog: %w", err)
		}
	} else {
		var fileProducts []Product
		if err := v.UnmarshalKey("products", &fileProducts); err != nil {
			return nil, fmt.Errorf("parse product catalog: %w", err)
		}
		if len(fileProducts) > 0 {
			products = fileProducts
			log.Info("product catalog loaded from file", zap.String("file", v.ConfigFileUsed()))
		}
	}

	bySKU := make(map[string]Product, len(products))
	for _, p := range products {
		if strings.TrimSpace(p.SKU) == "" || p.PriceCents <= 0 || p.Generations <= 0 {
			return nil, fmt.Errorf("invalid product %q in catalog", p.SKU)
		}
		if _, exists := bySKU[p.SKU]; exists {
			return nil, fmt.Errorf("duplicate product sku %q in catalog", p.SKU)
		}
		bySKU[p.SKU] = p
	}

	providerIDs := map[string]string{}
	if raw := strings.TrimSpace(cfg.CreemProductIDs); raw != "" {
		if err := json.Unmarshal([]byte(raw), &providerIDs); err != nil {
			log.Warn("invalid CREEM_PRODUCT_IDS, provider mapping disabled", zap.Error(err))
			providerIDs = map[string]string{}
		}
	}

	return &Catalog{
		products:    products,
		bySKU:       bySKU,
		providerIDs: providerIDs,
	}, nil
}

// Get returns the product for sku.
func (c *Catalog) Get(sku string) (Product, bool) {
	p, ok := c.bySKU[strings.TrimSpace(sku)]
	return p, ok
}

// ProviderProductID returns the payment-provider product id configured for sku.
func (c *Catalog) ProviderProductID(sku string) (string, bool) {
	id, ok := c.providerIDs[strings.TrimSpace(sku)]
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}

// List returns the catalog with per-SKU discount percentages, computed against
// the worst per-unit price across all SKUs and truncated to an integer.
func (c *Catalog) List() []ListedProduct {
	out := make([]ListedProduct, 0, len(c.products))

	var worst float64
	if len(c.products) > 1 {
		for _, p := range c.products {
			perUnit := float64(p.PriceCents) / float64(p.Generations)
			if perUnit > worst {
				worst = perUnit
			}
		}
	}

	for _, p := range c.products {
		item := ListedProduct{Product: p}
		if worst > 0 {
			perUnit := float64(p.PriceCents) / float64(p.Generations)
			if perUnit < worst {
				discount := int((worst - perUnit) / worst * 100)
				item.DiscountPercent = &discount
			}
		}
		out = append(out, item)
	}
	return out
}

var Module = fx.Module("catalog",
	fx.Provide(Load),
)
