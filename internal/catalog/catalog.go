// Package catalog loads and validates the static model catalogue: the
// YAML mapping from model id to backend container, gateway template, and
// gateway-exposed model name.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zheng/gpuswitch/pkg/models"
)

// Load reads and validates the catalogue at path.
func Load(path string) (*models.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var cat models.Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	if err := validate(&cat); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}

	return &cat, nil
}

func validate(cat *models.Catalog) error {
	if len(cat.Models) == 0 {
		return fmt.Errorf("no models defined")
	}
	if cat.ComfyContainer == "" {
		return fmt.Errorf("comfy_container must be set")
	}
	if cat.GatewayContainer == "" {
		return fmt.Errorf("gateway_container must be set")
	}

	seen := make(map[string]bool, len(cat.Models))
	for _, m := range cat.Models {
		if m.ID == "" {
			return fmt.Errorf("model entry with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		if m.ContainerName == "" {
			return fmt.Errorf("model %q: container_name must be set", m.ID)
		}
		if m.Template == "" {
			return fmt.Errorf("model %q: template must be set", m.ID)
		}
		if m.GatewayModel == "" {
			return fmt.Errorf("model %q: gateway_model must be set", m.ID)
		}
	}

	return nil
}

// Known reports whether id names a model in the catalogue.
func Known(cat *models.Catalog, id string) bool {
	_, ok := cat.ByID(id)
	return ok
}
