package config

import (
	"encoding/json"
	"os"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/pkg/errors"
)

// LoadCatalog reads the sellable service definitions from a JSON file.
// With no file at the path the built-in defaults apply, so a dev instance
// runs without any provisioning.
func LoadCatalog(path string) (*model.Catalog, error) {
	if path == "" {
		return model.NewCatalog(defaultServices()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("catalog file not found, using built-in defaults", "path", path)
			return model.NewCatalog(defaultServices()), nil
		}
		return nil, errors.Wrap(err, "read catalog file")
	}

	var services []model.ServiceType
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, errors.Wrap(err, "parse catalog file")
	}
	if len(services) == 0 {
		return nil, errors.New("catalog file defines no services")
	}

	logger.Info("catalog loaded", "path", path, "services", len(services))
	return model.NewCatalog(services), nil
}

func defaultServices() []model.ServiceType {
	return []model.ServiceType{
		{
			ID:           "waec",
			Name:         "WAEC Results Checker",
			Code:         "WAEC",
			SellingPrice: 20,
			PricingTiers: []model.PricingTier{
				{MinQuantity: 1, UnitPrice: 20},
				{MinQuantity: 10, UnitPrice: 17.5, Label: "bulk"},
				{MinQuantity: 50, UnitPrice: 15, Label: "wholesale"},
			},
			Active: true,
		},
		{
			ID:           "bece",
			Name:         "BECE Results Checker",
			Code:         "BECE",
			SellingPrice: 15,
			PricingTiers: []model.PricingTier{
				{MinQuantity: 1, UnitPrice: 15},
				{MinQuantity: 10, UnitPrice: 13},
			},
			Active: true,
		},
	}
}
