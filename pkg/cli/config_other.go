//go:build !linux

package cli

func (c *Config) registerCommandLineFlagsOsSpecific() {}
