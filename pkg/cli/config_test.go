package cli_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafobd/obd-ble/pkg/cli"
	"github.com/leafobd/obd-ble/pkg/poller"
	"github.com/leafobd/obd-ble/pkg/protocol"
)

func TestParseOptions(t *testing.T) {
	options, err := cli.ParseOptions(strings.NewReader("fast_poll: 5\nslow_poll: 600\nxs_poll: 7200\ncache_values: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, options.FastPoll)
	assert.Equal(t, 10*time.Minute, options.SlowPoll)
	assert.Equal(t, 2*time.Hour, options.UltraSlowPoll)
	assert.True(t, options.CacheValues)
	assert.Equal(t, poller.DefaultOptions().UpdateTimeout, options.UpdateTimeout)
}

func TestParseOptionsDefaults(t *testing.T) {
	options, err := cli.ParseOptions(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, poller.DefaultOptions(), options)

	options, err = cli.ParseOptions(strings.NewReader("slow_poll: 120\n"))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, options.FastPoll)
	assert.Equal(t, 2*time.Minute, options.SlowPoll)
	assert.False(t, options.CacheValues)
}

func TestParseOptionsRejectsInvalid(t *testing.T) {
	_, err := cli.ParseOptions(strings.NewReader("fast_poll: 0\n"))
	assert.ErrorIs(t, err, cli.ErrInvalidOptions)

	_, err = cli.ParseOptions(strings.NewReader("slow_poll: -3\nxs_poll: 0\n"))
	assert.ErrorIs(t, err, cli.ErrInvalidOptions)

	_, err = cli.ParseOptions(strings.NewReader("fast_poll: soon\n"))
	assert.ErrorIs(t, err, cli.ErrInvalidOptions)
}

func TestLoadOptionsFromFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("cache_values: true\n"), 0644))

	config := cli.NewConfig(cli.FlagAll)
	config.OptionsFilename = filename
	options, err := config.LoadOptions()
	require.NoError(t, err)
	assert.True(t, options.CacheValues)

	config.OptionsFilename = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = config.LoadOptions()
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadFromEnvironment(t *testing.T) {
	t.Setenv(cli.EnvAddress, "AA:BB:CC:DD:EE:FF")
	t.Setenv(cli.EnvCacheFile, "/tmp/leaf-cache.json")
	t.Setenv(cli.EnvTransport, "")

	config := cli.NewConfig(cli.FlagAll)
	config.CacheFilename = "explicit.json"
	config.ReadFromEnvironment()

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", config.Address)
	assert.Equal(t, "explicit.json", config.CacheFilename)
	assert.Equal(t, cli.TransportBLE, config.Transport)
	assert.NoError(t, config.Validate())
}

func TestReadFromEnvironmentSelectsSerial(t *testing.T) {
	t.Setenv(cli.EnvAddress, "")
	t.Setenv(cli.EnvSerialDevice, "/dev/ttyUSB0")
	t.Setenv(cli.EnvTransport, "")

	config := cli.NewConfig(cli.FlagAll)
	config.ReadFromEnvironment()
	assert.Equal(t, cli.TransportSerial, config.Transport)
	assert.NoError(t, config.Validate())
}

func TestReadFromEnvironmentTransport(t *testing.T) {
	t.Setenv(cli.EnvTransport, "SERIAL")
	config := cli.NewConfig(cli.FlagAll)
	config.ReadFromEnvironment()
	assert.Equal(t, cli.TransportSerial, config.Transport)
	assert.ErrorIs(t, config.Validate(), cli.ErrNoSerialDevice)

	t.Setenv(cli.EnvTransport, "carrier-pigeon")
	t.Setenv(cli.EnvAddress, "")
	config = cli.NewConfig(cli.FlagAll)
	config.ReadFromEnvironment()
	assert.Equal(t, cli.TransportBLE, config.Transport)
	assert.ErrorIs(t, config.Validate(), cli.ErrNoAddress)
}

func TestCacheRoundTrip(t *testing.T) {
	config := cli.NewConfig(cli.FlagPolling)
	config.CacheFilename = filepath.Join(t.TempDir(), "cache.json")

	// Missing file.
	assert.Zero(t, config.LoadCache().Len())

	resultCache := config.LoadCache()
	resultCache.Merge(protocol.Values{"adapter_voltage": 12.5})
	config.SaveCache(resultCache)

	loaded := config.LoadCache()
	assert.Equal(t, protocol.Values{"adapter_voltage": 12.5}, loaded.Snapshot())
}
