package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/go-playground/assert/v2"
)

func writeConfig(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "ddpctl.toml")
	err := os.WriteFile(path, []byte(text), 0600)
	assert.Equal(t, err, nil)
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
url = "ws://example.com:3000/websocket"
timeout = "5s"
verbosity = 2

[transport]
read_timeout = "2m"
buffer_size = 8
`)

	config, err := LoadConfig(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, config.Url, "ws://example.com:3000/websocket")
	assert.Equal(t, config.Verbosity, 2)
	// missing from the file
	assert.Equal(t, config.Versions, []string{"1", "pre2", "pre1"})

	timeout, err := config.TimeoutDuration()
	assert.Equal(t, err, nil)
	assert.Equal(t, timeout, 5*time.Second)

	clientSettings, wsSettings, err := config.Settings()
	assert.Equal(t, err, nil)
	assert.Equal(t, clientSettings.Versions, []string{"1", "pre2", "pre1"})
	assert.Equal(t, wsSettings.ReadTimeout, 2*time.Minute)
	assert.Equal(t, wsSettings.BufferSize, 8)
	assert.Equal(t, wsSettings.WriteTimeout, 5*time.Second)
	assert.Equal(t, wsSettings.PingTimeout, 15*time.Second)
}

func TestLoadConfigVersions(t *testing.T) {
	path := writeConfig(t, `versions = ["1"]`)

	config, err := LoadConfig(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, config.Url, "ws://localhost:3000/websocket")

	clientSettings, _, err := config.Settings()
	assert.Equal(t, err, nil)
	assert.Equal(t, clientSettings.Versions, []string{"1"})
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NotEqual(t, err, nil)

	_, err = LoadConfig(writeConfig(t, `url = `))
	assert.NotEqual(t, err, nil)

	config, err := LoadConfig(writeConfig(t, `
[transport]
ping_timeout = "soon"
`))
	assert.Equal(t, err, nil)
	_, _, err = config.Settings()
	assert.NotEqual(t, err, nil)

	config.Timeout = "later"
	_, err = config.TimeoutDuration()
	assert.NotEqual(t, err, nil)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams(docopt.Opts{"<params>": `[1, "a", {"b": true}]`})
	assert.Equal(t, err, nil)
	assert.Equal(t, params, []any{float64(1), "a", map[string]any{"b": true}})

	params, err = parseParams(docopt.Opts{"<params>": nil})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(params), 0)

	_, err = parseParams(docopt.Opts{"<params>": `{"a": 1}`})
	assert.NotEqual(t, err, nil)
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	path := writeConfig(t, `
url = "ws://example.com/websocket"
timeout = "5s"
`)

	config, err := loadConfig(docopt.Opts{
		"--config":  path,
		"--url":     "ws://override/websocket",
		"--timeout": nil,
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, config.Url, "ws://override/websocket")
	assert.Equal(t, config.Timeout, "5s")

	config, err = loadConfig(docopt.Opts{
		"--config":  nil,
		"--url":     nil,
		"--timeout": "1s",
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, config.Url, "ws://localhost:3000/websocket")
	assert.Equal(t, config.Timeout, "1s")
}
