package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	// Persistence backend: "sqlite" or "badger".
	StoreBackend string `envconfig:"STORE_BACKEND" default:"sqlite"`
	StorePath    string `envconfig:"STORE_PATH" default:"./data/botcheck"`

	// Playlist data provider: "webapi" (official API, client credentials)
	// or "proxy" (anonymous web-player token).
	Provider      string `envconfig:"PROVIDER" default:"webapi"`
	SpotifyID     string `envconfig:"SPOTIFY_ID"`
	SpotifySecret string `envconfig:"SPOTIFY_SECRET"`

	// Companion service (verification + cloud sync).
	CloudAPIBase  string `envconfig:"CLOUD_API_BASE" default:"https://api.botcheck.app/v1"`
	CloudAPIToken string `envconfig:"CLOUD_API_TOKEN"`

	BatchConcurrency int `envconfig:"BATCH_CONCURRENCY" default:"5"`
	BatchPaceMs      int `envconfig:"BATCH_PACE_MS" default:"100"`

	// Background cadence, hours.
	RefreshIntervalHours  int `envconfig:"REFRESH_INTERVAL_HOURS" default:"6"`
	ReverifyIntervalHours int `envconfig:"REVERIFY_INTERVAL_HOURS" default:"24"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
