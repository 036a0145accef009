package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML overlay shape. Only set fields are applied, so a
// partial file can pin a few values while the rest comes from the env.
type fileConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	RP         struct {
		ID      string   `yaml:"id"`
		Name    string   `yaml:"name"`
		Origins []string `yaml:"origins"`
	} `yaml:"rp"`
	SignInURL     string `yaml:"signin_url"`
	SessionExpiry string `yaml:"session_expiry"`
	CookieSecure  *bool  `yaml:"cookie_secure"`
	TokenSecret   string `yaml:"token_secret"`
	DBPath        string `yaml:"db_path"`
	SweepSchedule string `yaml:"sweep_schedule"`
	LogJSON       *bool  `yaml:"log_json"`
}

// ApplyFile overlays settings from a YAML file onto the config.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.RP.ID != "" {
		c.RPID = fc.RP.ID
	}
	if fc.RP.Name != "" {
		c.RPName = fc.RP.Name
	}
	if len(fc.RP.Origins) > 0 {
		c.RPOrigins = fc.RP.Origins
	}
	if fc.SignInURL != "" {
		c.SignInURL = fc.SignInURL
	}
	if fc.SessionExpiry != "" {
		d, err := time.ParseDuration(fc.SessionExpiry)
		if err != nil {
			return fmt.Errorf("config file session_expiry: %w", err)
		}
		c.SessionExpiry = d
	}
	if fc.CookieSecure != nil {
		c.CookieSecure = *fc.CookieSecure
	}
	if fc.TokenSecret != "" {
		c.TokenSecret = fc.TokenSecret
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.SweepSchedule != "" {
		c.SweepSchedule = fc.SweepSchedule
	}
	if fc.LogJSON != nil {
		c.LogJSON = *fc.LogJSON
	}
	return nil
}
