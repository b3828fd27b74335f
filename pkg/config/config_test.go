package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr)
	assert.Equal(t, "uploads", cfg.Server.UploadDir)
	assert.Equal(t, "tesseract", cfg.OCR.Binary)
	assert.Equal(t, 6, cfg.OCR.PSM)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, time.Hour, cfg.Server.BatchTTL)
	assert.Empty(t, cfg.Output.Format, "format follows the output extension by default")
	assert.Equal(t, "YNAB_TOKEN", cfg.YNAB.TokenEnv)
	assert.NoError(t, cfg.Validate())
}

func TestBuildFromFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
server:
  addr: 127.0.0.1:8080
ocr:
  psm: 4
  language: eng
  timeout: 5s
output:
  format: xlsx
ynab:
  budget_id: budget-1
  account_id: account-1
`)

	cfg, err := Build(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "uploads", cfg.Server.UploadDir)
	assert.Equal(t, 4, cfg.OCR.PSM)
	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.Equal(t, 5*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, "xlsx", cfg.Output.Format)
	assert.Equal(t, "budget-1", cfg.YNAB.BudgetID)
	assert.Equal(t, "account-1", cfg.YNAB.AccountID)
}

func TestBuildPrecedence(t *testing.T) {
	path := writeConfig(t, "ocr:\n  psm: 4\n  language: eng\n")
	t.Setenv("FEEDSCAN_OCR_PSM", "11")
	t.Setenv("FEEDSCAN_OCR_LANGUAGE", "por")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("lang", "", "")
	flags.Int("psm", 6, "")
	require.NoError(t, flags.Parse([]string{"--lang", "deu"}))

	cfg, err := Build(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.OCR.PSM, "env beats file, unset flag is ignored")
	assert.Equal(t, "deu", cfg.OCR.Language, "set flag beats env")
}

func TestBuildTokenFromEnv(t *testing.T) {
	t.Setenv("YNAB_TOKEN", "secret")
	cfg, err := Build(writeConfig(t, "log_level: info\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.YNAB.Token)
}

func TestBuildMissingFile(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestBuildInvalid(t *testing.T) {
	_, err := Build(writeConfig(t, "output:\n  format: json\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestBuildBatchTTL(t *testing.T) {
	cfg, err := Build(writeConfig(t, "server:\n  batch_ttl: 10m\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Server.BatchTTL)

	_, err = Build(writeConfig(t, "server:\n  batch_ttl: 0s\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_ttl")
}
