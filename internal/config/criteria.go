package config

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/callsense/callsense/internal/model"
)

// LoadCriteriaSeed reads a criteria seed file (yaml or json) declaring
// the portal's criterion groups, criteria and categories by name.
func LoadCriteriaSeed(path string) (model.CriteriaSeed, error) {
	var seed model.CriteriaSeed

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return seed, eris.Wrapf(err, "config: read criteria seed %s", path)
	}
	if err := v.Unmarshal(&seed); err != nil {
		return seed, eris.Wrapf(err, "config: unmarshal criteria seed %s", path)
	}

	groups := make(map[string]bool, len(seed.Groups))
	for _, g := range seed.Groups {
		if g.Name == "" {
			return seed, eris.Errorf("config: criteria seed %s: group with empty name", path)
		}
		groups[g.Name] = true
	}
	names := make(map[string]bool, len(seed.Criteria))
	for _, c := range seed.Criteria {
		if c.Name == "" || c.Prompt == "" {
			return seed, eris.Errorf("config: criteria seed %s: criterion needs a name and a prompt", path)
		}
		if !groups[c.Group] {
			return seed, eris.Errorf("config: criteria seed %s: criterion %q references unknown group %q", path, c.Name, c.Group)
		}
		names[c.Name] = true
	}
	for _, c := range seed.Categories {
		if c.Name == "" || c.Prompt == "" {
			return seed, eris.Errorf("config: criteria seed %s: category needs a name and a prompt", path)
		}
		for _, n := range c.Criteria {
			if !names[n] {
				return seed, eris.Errorf("config: criteria seed %s: category %q references unknown criterion %q", path, c.Name, n)
			}
		}
	}

	return seed, nil
}
