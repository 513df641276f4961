package server

import (
	"time"

	"github.com/spf13/viper"

	"github.com/sqrl-go/sqrl/pkg/crypto"
)

// Config is the server's runtime configuration, loadable from file, env,
// or flags via viper — the config layer the protocol design itself never
// mentions but every real deployment of it needs.
type Config struct {
	Passcode     string        `mapstructure:"passcode"`
	NutLifetime  time.Duration `mapstructure:"nut_lifetime"`
	LinkTemplate string        `mapstructure:"link_template"`
	FriendlyName string        `mapstructure:"friendly_name"`
}

// defaultConfig mirrors the reference server's out-of-the-box values.
func defaultConfig() Config {
	return Config{
		NutLifetime:  15 * time.Minute,
		LinkTemplate: "https://example.com/sqrl?sfn=" + markerSFN + "&nut=" + markerNut,
		FriendlyName: "SQRL Demo",
	}
}

// LoadConfig reads server configuration through v, falling back to
// defaultConfig for anything unset — mirrors the cmd/ layer's
// viper.BindPFlags-then-Unmarshal pattern.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := defaultConfig()
	if v == nil {
		return cfg, nil
	}
	v.SetDefault("nut_lifetime", cfg.NutLifetime)
	v.SetDefault("link_template", cfg.LinkTemplate)
	v.SetDefault("friendly_name", cfg.FriendlyName)

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DeriveMACKey derives a LinkBuilder's HMAC key from the site's configured
// passcode, so a single configured secret seeds both the nut engine and the
// challenge-link MAC instead of needing two independently managed keys.
func DeriveMACKey(passcode string) []byte {
	return crypto.SHA256Slice([]byte(passcode))
}
