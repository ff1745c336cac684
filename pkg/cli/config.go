/*
Package cli facilitates building command-line applications that poll an OBD dongle. It defines a
[Config] type that can be used to register common command-line flags (using the Golang flag
package) and environment variable equivalents.

# Examples

	config := NewConfig(FlagAll)
	config.RegisterCommandLineFlags() // Adds command-line flags for the dongle address, options, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables

	options, err := config.LoadOptions() // Polling intervals and caching, resolved once
	if err != nil {
		panic(err)
	}
	catalog, err := config.LoadCommands()
	if err != nil {
		panic(err)
	}
	defer config.Close()

	sess := session.New(config.Opener(), catalog.SessionConfig())

Use a [Flag] mask to control which [Config] fields are populated. config.Flags must be set before
calling [flag.Parse] or [Config.ReadFromEnvironment]:

	config = NewConfig(FlagBLE)    // Only the BLE transport flags.
	config = NewConfig(FlagSerial) // Only the serial transport flags.
*/
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leafobd/obd-ble/internal/log"
	"github.com/leafobd/obd-ble/pkg/cache"
	"github.com/leafobd/obd-ble/pkg/connector"
	"github.com/leafobd/obd-ble/pkg/connector/ble"
	"github.com/leafobd/obd-ble/pkg/connector/ble/goble"
	"github.com/leafobd/obd-ble/pkg/connector/serialport"
	"github.com/leafobd/obd-ble/pkg/poller"
	"github.com/leafobd/obd-ble/pkg/session"
)

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvAddress      = "LEAF_OBD_ADDRESS"
	EnvBtAdapter    = "LEAF_OBD_BT_ADAPTER"
	EnvSerialDevice = "LEAF_OBD_SERIAL_DEVICE"
	EnvTransport    = "LEAF_OBD_TRANSPORT"
	EnvOptionsFile  = "LEAF_OBD_OPTIONS_FILE"
	EnvCommandsFile = "LEAF_OBD_COMMANDS_FILE"
	EnvCacheFile    = "LEAF_OBD_CACHE_FILE"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagBLE     Flag = 1 // Enable BLE options.
	FlagSerial  Flag = 2 // Enable serial device options.
	FlagPolling Flag = 4 // Enable polling options and the result cache.
	FlagAll     Flag = FlagBLE | FlagSerial | FlagPolling
)

var (
	ErrNoAddress      = errors.New("dongle BLE address not provided")
	ErrNoSerialDevice = errors.New("serial device not provided")
	ErrInvalidOptions = errors.New("invalid polling options")
)

// Config fields determine how the dongle is reached and polled.
type Config struct {
	Flags            Flag // Controls which set of environment variables/CLI flags to use.
	Transport        Transport
	Address          string // BLE address of the dongle
	Name             string // Advertised name, informational only
	BtAdapterID      string
	Profile          ble.Profile
	SerialDevice     string
	BaudRate         int
	OptionsFilename  string
	CommandsFilename string
	CacheFilename    string

	adapter ble.Adapter
}

func NewConfig(flags Flag) *Config {
	return &Config{
		Flags:    flags,
		Profile:  ble.DefaultProfile,
		BaudRate: serialport.DefaultBaudRate,
	}
}

func (c *Config) RegisterCommandLineFlags() {
	if c.Flags.isSet(FlagBLE) && c.Flags.isSet(FlagSerial) {
		flag.Var(transportType{c}, "transport", "Dongle `transport` ("+transportNames()+"). Defaults to $LEAF_OBD_TRANSPORT, then ble.")
	}
	if c.Flags.isSet(FlagBLE) {
		flag.StringVar(&c.Address, "address", "", "BLE `address` of the dongle. Defaults to $LEAF_OBD_ADDRESS.")
		flag.StringVar(&c.Profile.ServiceUUID, "service-uuid", c.Profile.ServiceUUID, "GATT service `uuid` of the dongle")
		flag.StringVar(&c.Profile.WriteUUID, "write-uuid", c.Profile.WriteUUID, "GATT characteristic `uuid` requests are written to")
		flag.StringVar(&c.Profile.NotifyUUID, "notify-uuid", c.Profile.NotifyUUID, "GATT characteristic `uuid` responses are notified on")
		c.registerCommandLineFlagsOsSpecific()
	}
	if c.Flags.isSet(FlagSerial) {
		flag.StringVar(&c.SerialDevice, "serial-device", "", "Serial `device` of a wired ELM327 adapter. Defaults to $LEAF_OBD_SERIAL_DEVICE.")
		flag.IntVar(&c.BaudRate, "baud", c.BaudRate, "Serial `rate` of a wired adapter")
	}
	if c.Flags.isSet(FlagPolling) {
		flag.StringVar(&c.OptionsFilename, "options", "", "YAML `file` with polling options. Defaults to $LEAF_OBD_OPTIONS_FILE.")
		flag.StringVar(&c.CacheFilename, "cache-file", "", "Persist cached values to `file`. Defaults to $LEAF_OBD_CACHE_FILE.")
	}
	flag.StringVar(&c.CommandsFilename, "commands", "", "Command catalog `file`. Defaults to $LEAF_OBD_COMMANDS_FILE, then the built-in catalog.")
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters.
func (c *Config) ReadFromEnvironment() {
	if c.Transport == "" {
		if err := (transportType{c}).Set(os.Getenv(EnvTransport)); err != nil {
			log.Warning("Ignoring %s: %s", EnvTransport, err)
		}
	}
	if c.Flags.isSet(FlagBLE) {
		if c.Address == "" {
			c.Address = os.Getenv(EnvAddress)
			log.Debug("Set address to '%s'", c.Address)
		}
		if c.BtAdapterID == "" {
			c.BtAdapterID = os.Getenv(EnvBtAdapter)
		}
	}
	if c.Flags.isSet(FlagSerial) {
		if c.SerialDevice == "" {
			c.SerialDevice = os.Getenv(EnvSerialDevice)
			log.Debug("Set serial device to '%s'", c.SerialDevice)
		}
	}
	if c.Flags.isSet(FlagPolling) {
		if c.OptionsFilename == "" {
			c.OptionsFilename = os.Getenv(EnvOptionsFile)
			log.Debug("Set options file to '%s'", c.OptionsFilename)
		}
		if c.CacheFilename == "" {
			c.CacheFilename = os.Getenv(EnvCacheFile)
			log.Debug("Set cache file to '%s'", c.CacheFilename)
		}
	}
	if c.CommandsFilename == "" {
		c.CommandsFilename = os.Getenv(EnvCommandsFile)
	}
	if c.Transport == "" {
		c.Transport = TransportBLE
		if c.Flags.isSet(FlagSerial) && c.SerialDevice != "" && c.Address == "" {
			c.Transport = TransportSerial
		}
	}
}

// fileOptions mirrors the options file. Absent keys keep their defaults.
type fileOptions struct {
	FastPoll      *int  `yaml:"fast_poll"`
	SlowPoll      *int  `yaml:"slow_poll"`
	UltraSlowPoll *int  `yaml:"xs_poll"`
	CacheValues   *bool `yaml:"cache_values"`
	UpdateTimeout *int  `yaml:"update_timeout"`
}

// ParseOptions reads polling options in YAML form, for example:
//
//	fast_poll: 10     # seconds
//	slow_poll: 300
//	xs_poll: 3600
//	cache_values: true
//
// Absent keys take their value from [poller.DefaultOptions].
func ParseOptions(r io.Reader) (poller.Options, error) {
	options := poller.DefaultOptions()

	var file fileOptions
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return options, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	seconds := func(dst *time.Duration, src *int, name string) error {
		if src == nil {
			return nil
		}
		if *src <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidOptions, name, *src)
		}
		*dst = time.Duration(*src) * time.Second
		return nil
	}
	if err := errors.Join(
		seconds(&options.FastPoll, file.FastPoll, "fast_poll"),
		seconds(&options.SlowPoll, file.SlowPoll, "slow_poll"),
		seconds(&options.UltraSlowPoll, file.UltraSlowPoll, "xs_poll"),
		seconds(&options.UpdateTimeout, file.UpdateTimeout, "update_timeout"),
	); err != nil {
		return options, err
	}
	if file.CacheValues != nil {
		options.CacheValues = *file.CacheValues
	}
	return options, nil
}

// LoadOptions resolves the polling options. Without an options file the defaults are returned.
func (c *Config) LoadOptions() (poller.Options, error) {
	if c.OptionsFilename == "" {
		return poller.DefaultOptions(), nil
	}
	file, err := os.Open(c.OptionsFilename)
	if err != nil {
		return poller.DefaultOptions(), err
	}
	defer file.Close()

	options, err := ParseOptions(file)
	if err != nil {
		return options, err
	}
	log.Info("Polling options: fast=%s slow=%s ultra-slow=%s cache=%v",
		options.FastPoll, options.SlowPoll, options.UltraSlowPoll, options.CacheValues)
	return options, nil
}

// LoadCommands reads the command catalog from c.CommandsFilename, or returns the built-in
// catalog if no file is configured.
func (c *Config) LoadCommands() (*Catalog, error) {
	if c.CommandsFilename == "" {
		return DefaultCatalog(), nil
	}
	file, err := os.Open(c.CommandsFilename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseCatalog(file)
}

// LoadCache imports the result cache from c.CacheFilename. A missing or unreadable file yields an
// empty cache.
func (c *Config) LoadCache() *cache.ResultCache {
	if c.CacheFilename == "" {
		return cache.New()
	}
	resultCache, err := cache.ImportFromFile(c.CacheFilename)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warning("Error loading cache from %s: %s", c.CacheFilename, err)
		}
		return cache.New()
	}
	return resultCache
}

// SaveCache writes resultCache to c.CacheFilename, if set.
func (c *Config) SaveCache(resultCache *cache.ResultCache) {
	if c.CacheFilename == "" {
		return
	}
	if err := resultCache.ExportToFile(c.CacheFilename); err != nil {
		log.Error("Error updating cache: %s", err)
	}
}

// Adapter returns the host BLE adapter, opening it on first use.
func (c *Config) Adapter() (ble.Adapter, error) {
	if c.adapter != nil {
		return c.adapter, nil
	}
	adapter, err := goble.NewAdapter(c.BtAdapterID)
	if err != nil {
		if goble.IsAdapterError(err) {
			return nil, errors.New(goble.AdapterErrorHelpMessage(err))
		}
		return nil, fmt.Errorf("ble: failed to enable device: %w", err)
	}
	c.adapter = adapter
	return adapter, nil
}

// Validate checks that the selected transport has the fields it needs.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSerial:
		if c.SerialDevice == "" {
			return ErrNoSerialDevice
		}
	default:
		if c.Address == "" {
			return ErrNoAddress
		}
	}
	return nil
}

// Opener returns a session.Opener for the configured transport.
func (c *Config) Opener() session.Opener {
	if c.Transport == TransportSerial {
		config := serialport.DefaultConfig()
		config.BaudRate = c.BaudRate
		return func(ctx context.Context) (connector.Port, error) {
			return serialport.Open(ctx, c.SerialDevice, config)
		}
	}

	target := ble.Target{Address: c.Address, Name: c.Name}
	return func(ctx context.Context) (connector.Port, error) {
		adapter, err := c.Adapter()
		if err != nil {
			return nil, err
		}
		return ble.Open(ctx, adapter, target, c.Profile, ble.DefaultConfig())
	}
}

// Close releases the BLE adapter, if one was opened.
func (c *Config) Close() {
	if c.adapter == nil {
		return
	}
	if err := c.adapter.Close(); err != nil {
		log.Warning("ble: failed to stop device: %s", err)
	}
	c.adapter = nil
}
