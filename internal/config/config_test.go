package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "signals.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 24*time.Hour, cfg.IngestInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "data/diseases", cfg.ExportDir)
	assert.Equal(t, 60, cfg.DaysBack)
	assert.Equal(t, 104, cfg.WeeksBack)
	assert.Contains(t, cfg.CovidCSVURL, "COVID-19-Faelle_7-Tage-Inzidenz_Landkreise.csv")
	assert.Contains(t, cfg.InfluenzaTSVURL, "IfSG_Influenzafaelle.tsv")
	assert.Contains(t, cfg.RSVTSVURL, "IfSG_RSVfaelle.tsv")
	assert.NotEmpty(t, cfg.CountiesGeoJSONURL)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/custom.db")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("FETCH_TIMEOUT", "30s")
	t.Setenv("INGEST_INTERVAL", "6h")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("EXPORT_DIR", "/tmp/out")
	t.Setenv("DAYS_BACK", "14")
	t.Setenv("WEEKS_BACK", "52")
	t.Setenv("COVID_CSV_URL", "http://localhost:8000/covid.csv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 6*time.Hour, cfg.IngestInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/tmp/out", cfg.ExportDir)
	assert.Equal(t, 14, cfg.DaysBack)
	assert.Equal(t, 52, cfg.WeeksBack)
	assert.Equal(t, "http://localhost:8000/covid.csv", cfg.CovidCSVURL)
}

func TestLoad_InvalidFetchTimeout(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_TIMEOUT")
}

func TestLoad_NegativeIngestInterval(t *testing.T) {
	t.Setenv("INGEST_INTERVAL", "-1h")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INGEST_INTERVAL")
}

func TestLoad_InvalidDaysBack(t *testing.T) {
	t.Setenv("DAYS_BACK", "zero")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DAYS_BACK")
}

func TestLoad_NonPositiveWindow(t *testing.T) {
	t.Setenv("WEEKS_BACK", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEEKS_BACK")
}
