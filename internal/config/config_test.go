package config_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/config"
)

func TestPreflightRequiresCatalogConn(t *testing.T) {
	c := &config.Config{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Bind(flags)
	assert.NoError(t, flags.Parse(nil))
	assert.Error(t, c.Preflight())

	c.CatalogConn = "host=localhost dbname=warehouse user=sync"
	assert.NoError(t, c.Preflight())
}

func TestPreflightRejectsBadDebugLevel(t *testing.T) {
	c := &config.Config{
		CatalogConn:         "host=localhost",
		BindAddr:            ":1",
		DefaultChunkSize:    1000,
		DefaultSyncInterval: 1,
		MaintenanceInterval: 1,
		DefaultDebugLevel:   "VERBOSE",
	}
	assert.Error(t, c.Preflight())
}

func TestLogrusLevelMapping(t *testing.T) {
	assert.Equal(t, "debug", config.LogrusLevel("DEBUG"))
	assert.Equal(t, "info", config.LogrusLevel("INFO"))
	assert.Equal(t, "warning", config.LogrusLevel("WARNING"))
	assert.Equal(t, "error", config.LogrusLevel("ERROR"))
	assert.Equal(t, "fatal", config.LogrusLevel("CRITICAL"))
	assert.Equal(t, "info", config.LogrusLevel("whatever"))
}
