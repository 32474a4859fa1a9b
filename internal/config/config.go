package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default feed URLs: raw.githubusercontent.com mirrors of the RKI open data
// repositories. Overridable so tests and local runs can point at fixtures.
const (
	defaultCovidCSVURL = "https://raw.githubusercontent.com/robert-koch-institut/" +
		"COVID-19_7-Tage-Inzidenz_in_Deutschland/main/" +
		"COVID-19-Faelle_7-Tage-Inzidenz_Landkreise.csv"
	defaultInfluenzaTSVURL = "https://raw.githubusercontent.com/robert-koch-institut/" +
		"Influenzafaelle_in_Deutschland/main/IfSG_Influenzafaelle.tsv"
	defaultRSVTSVURL = "https://raw.githubusercontent.com/robert-koch-institut/" +
		"Respiratorische_Synzytialvirusfaelle_in_Deutschland/main/IfSG_RSVfaelle.tsv"
	defaultCountiesGeoJSONURL = "https://opendata.rhein-kreis-neuss.de/api/v2/catalog/datasets/" +
		"kreise-vintagemillesime-germany/exports/geojson"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DBPath          string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	FetchTimeout    time.Duration
	IngestInterval  time.Duration
	ShutdownTimeout time.Duration
	ExportDir       string

	CovidCSVURL        string
	InfluenzaTSVURL    string
	RSVTSVURL          string
	CountiesGeoJSONURL string

	// Trailing window lengths, counted back from each feed's own latest
	// time key.
	DaysBack  int
	WeeksBack int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	fetchTimeout, err := envDuration("FETCH_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	ingestInterval, err := envDuration("INGEST_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	daysBack, err := envInt("DAYS_BACK", 60)
	if err != nil {
		return nil, err
	}
	weeksBack, err := envInt("WEEKS_BACK", 104)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBPath:          envOrDefault("DB_PATH", "signals.db"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		FetchTimeout:    fetchTimeout,
		IngestInterval:  ingestInterval,
		ShutdownTimeout: shutdownTimeout,
		ExportDir:       envOrDefault("EXPORT_DIR", "data/diseases"),

		CovidCSVURL:        envOrDefault("COVID_CSV_URL", defaultCovidCSVURL),
		InfluenzaTSVURL:    envOrDefault("INFLUENZA_TSV_URL", defaultInfluenzaTSVURL),
		RSVTSVURL:          envOrDefault("RSV_TSV_URL", defaultRSVTSVURL),
		CountiesGeoJSONURL: envOrDefault("COUNTIES_GEOJSON_URL", defaultCountiesGeoJSONURL),

		DaysBack:  daysBack,
		WeeksBack: weeksBack,
	}

	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH must not be empty")
	}
	if cfg.DaysBack <= 0 {
		return nil, fmt.Errorf("DAYS_BACK must be positive, got %d", cfg.DaysBack)
	}
	if cfg.WeeksBack <= 0 {
		return nil, fmt.Errorf("WEEKS_BACK must be positive, got %d", cfg.WeeksBack)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}
