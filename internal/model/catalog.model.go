package model

import (
	"errors"
	"sort"
)

var ErrServiceNotFound = errors.New("service not found or inactive")

// PricingTier maps a minimum quantity to a unit price. The tier with the
// greatest MinQuantity not exceeding the requested quantity wins.
type PricingTier struct {
	MinQuantity int     `json:"min_quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Label       string  `json:"label,omitempty"`
}

// ServiceType is one sellable product category (exam board), with its
// optional sub-variants and quantity-tiered pricing.
type ServiceType struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Code         string        `json:"code"`
	SellingPrice float64       `json:"selling_price"`
	ExamTypes    []ExamType    `json:"exam_types,omitempty"`
	PricingTiers []PricingTier `json:"pricing_tiers"`
	Active       bool          `json:"active"`
}

// ExamType is an optional sub-variant of a service (e.g. exam year).
type ExamType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Catalog is the immutable set of services and prices the shop sells.
// It is built once at startup and injected; pricing is never read from
// process-global state.
type Catalog struct {
	services map[string]ServiceType
	ordered  []ServiceType
}

func NewCatalog(services []ServiceType) *Catalog {
	c := &Catalog{services: make(map[string]ServiceType, len(services))}
	for _, s := range services {
		tiers := make([]PricingTier, len(s.PricingTiers))
		copy(tiers, s.PricingTiers)
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinQuantity < tiers[j].MinQuantity })
		s.PricingTiers = tiers
		c.services[s.ID] = s
		c.ordered = append(c.ordered, s)
	}
	return c
}

// Services lists the active catalog entries in registration order.
func (c *Catalog) Services() []ServiceType {
	out := make([]ServiceType, 0, len(c.ordered))
	for _, s := range c.ordered {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// Service returns an active service by ID.
func (c *Catalog) Service(id string) (ServiceType, error) {
	s, ok := c.services[id]
	if !ok || !s.Active {
		return ServiceType{}, ErrServiceNotFound
	}
	return s, nil
}

// UnitPrice resolves the unit price for a quantity from the service's tiers.
// With no tier at or below the quantity, the base selling price applies.
func (c *Catalog) UnitPrice(serviceID string, quantity int) (float64, error) {
	s, err := c.Service(serviceID)
	if err != nil {
		return 0, err
	}
	price := s.SellingPrice
	for _, t := range s.PricingTiers {
		if t.MinQuantity > quantity {
			break
		}
		price = t.UnitPrice
	}
	return price, nil
}
