package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"trasima-livemap/internal/engine"
	"trasima-livemap/internal/feed"
	"trasima-livemap/internal/mapview"
)

// apiBaseEnv overrides upstream.apiBase, matching the front-end proxy setup.
const apiBaseEnv = "TRASIMA_API_BASE"

type ServerConfig struct {
	Port              int    `yaml:"port" validate:"gt=0,lte=65535"`
	ShutdownTimeoutMS int    `yaml:"shutdownTimeoutMS" validate:"gte=0"`
	StaticDir         string `yaml:"staticDir" validate:"required"`
}

type UpstreamConfig struct {
	APIBase string `yaml:"apiBase" validate:"required,url"`
}

type FeedConfig struct {
	Kind      string `yaml:"kind" validate:"omitempty,oneof=trasima gtfsrt siri-json siri-xml"`
	URL       string `yaml:"url" validate:"omitempty,url"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gte=0"`
}

type PollConfig struct {
	IntervalMS        int  `yaml:"intervalMS" validate:"gt=0"`
	SkipWhileInFlight bool `yaml:"skipWhileInFlight"`
}

type MapConfig struct {
	CenterLat      float64 `yaml:"centerLat" validate:"gte=-90,lte=90"`
	CenterLon      float64 `yaml:"centerLon" validate:"gte=-180,lte=180"`
	Zoom           int     `yaml:"zoom" validate:"gte=0,lte=22"`
	ReadyTimeoutMS int     `yaml:"readyTimeoutMS" validate:"gt=0"`
	ReadyPollMS    int     `yaml:"readyPollMS" validate:"gt=0"`
	FitPaddingPx   int     `yaml:"fitPaddingPx" validate:"gte=0"`
	TileURL        string  `yaml:"tileURL" validate:"required"`
	TileMaxZoom    int     `yaml:"tileMaxZoom" validate:"gt=0"`
	Attribution    string  `yaml:"attribution"`
}

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Feed     FeedConfig     `yaml:"feed"`
	Poll     PollConfig     `yaml:"poll"`
	Map      MapConfig      `yaml:"map"`
}

func DefaultConfig() AppConfig {
	mo := mapview.DefaultOptions()
	return AppConfig{
		Server:   ServerConfig{Port: 3000, ShutdownTimeoutMS: 10000, StaticDir: "./static"},
		Upstream: UpstreamConfig{APIBase: "http://localhost:8080"},
		Feed:     FeedConfig{Kind: feed.KindTrasima, TimeoutMS: int(engine.DefaultFetchTimeout / time.Millisecond)},
		Poll:     PollConfig{IntervalMS: int(engine.DefaultInterval / time.Millisecond)},
		Map: MapConfig{
			CenterLat:      mo.Center.Lat,
			CenterLon:      mo.Center.Lon,
			Zoom:           mo.Zoom,
			ReadyTimeoutMS: int(mapview.DefaultReadyTimeout / time.Millisecond),
			ReadyPollMS:    int(mapview.DefaultReadyPoll / time.Millisecond),
			FitPaddingPx:   engine.DefaultFitPadding[0],
			TileURL:        mo.Tiles.URL,
			TileMaxZoom:    mo.Tiles.MaxZoom,
			Attribution:    mo.Tiles.Attribution,
		},
	}
}

// LoadConfig overlays the yaml file at path (if any) and the environment on
// the defaults. A missing file is an error only when required is set.
func LoadConfig(path string, required bool) (AppConfig, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return cfg, err
		}
	}
	if base := os.Getenv(apiBaseEnv); base != "" {
		cfg.Upstream.APIBase = base
	}
	return cfg, nil
}

func (c AppConfig) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Feed.Kind != "" && c.Feed.Kind != feed.KindTrasima && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required for feed kind %q", c.Feed.Kind)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c AppConfig) feedConfig() feed.Config {
	url := c.Feed.URL
	if url == "" {
		url = feed.TrasimaURL(c.Upstream.APIBase)
	}
	return feed.Config{Kind: c.Feed.Kind, URL: url, Timeout: ms(c.Feed.TimeoutMS)}
}

func (c AppConfig) mapOptions() mapview.Options {
	return mapview.Options{
		Center: mapview.LatLng{Lat: c.Map.CenterLat, Lon: c.Map.CenterLon},
		Zoom:   c.Map.Zoom,
		Tiles: mapview.TileLayer{
			URL:         c.Map.TileURL,
			MaxZoom:     c.Map.TileMaxZoom,
			Attribution: c.Map.Attribution,
		},
		ReadyPoll: ms(c.Map.ReadyPollMS),
	}
}

func (c AppConfig) engineOptions(src feed.Source) engine.Options {
	return engine.Options{
		Source:            src,
		Map:               c.mapOptions(),
		Interval:          ms(c.Poll.IntervalMS),
		FetchTimeout:      ms(c.Feed.TimeoutMS),
		ReadyTimeout:      ms(c.Map.ReadyTimeoutMS),
		SkipWhileInFlight: c.Poll.SkipWhileInFlight,
		FitPadding:        [2]int{c.Map.FitPaddingPx, c.Map.FitPaddingPx},
	}
}
