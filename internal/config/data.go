package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bazaar/internal/models"
)

// experimentData is the on-disk shape of a static experiment data file. The
// profiles come from an external generator; they are validated but never
// produced here.
type experimentData struct {
	Businesses []models.Business `yaml:"businesses"`
	Customers  []models.Customer `yaml:"customers"`
}

// LoadExperimentData reads business and customer profiles from a YAML file
// and validates each one.
func LoadExperimentData(path string) ([]models.AgentProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment data %s: %w", path, err)
	}
	var parsed experimentData
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse experiment data %s: %w", path, err)
	}

	profiles := make([]models.AgentProfile, 0, len(parsed.Businesses)+len(parsed.Customers))
	for _, b := range parsed.Businesses {
		profiles = append(profiles, models.NewBusinessProfile(b))
	}
	for _, c := range parsed.Customers {
		profiles = append(profiles, models.NewCustomerProfile(c))
	}
	for i := range profiles {
		if err := profiles[i].Validate(); err != nil {
			return nil, fmt.Errorf("experiment data %s: %w", path, err)
		}
	}
	return profiles, nil
}
