/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"path/filepath"
	"strings"
)

// Loader fills configuration sections (backend, rate limiting rules, server, logging) from one DataProvider.
// Defaults of every section are registered first, so a section may be absent from the file entirely.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a new loader backed by viper that also reads environment variables.
// With the "DISTLIMIT" prefix the "server.address" key is overridden by DISTLIMIT_SERVER_ADDRESS.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new loader over the given data provider.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// DataTypeFromPath guesses the data format by the file extension. Anything but ".json" is read as YAML.
func DataTypeFromPath(path string) DataType {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DataTypeJSON
	}
	return DataTypeYAML
}

// LoadFromPath loads sections from the file at path, or from defaults and environment variables only
// if path is empty. The format is chosen by DataTypeFromPath.
func (l *Loader) LoadFromPath(path string, cfg Config, cfgs ...Config) error {
	if path == "" {
		return l.Load(cfg, cfgs...)
	}
	return l.LoadFromFile(path, DataTypeFromPath(path), cfg, cfgs...)
}

// LoadFromFile loads sections from the file in the given format.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromReader loads sections from reader in the given format.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// Load fills sections from defaults and environment variables only.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	return l.load(append([]Config{cfg}, cfgs...))
}

// load registers defaults of all sections before setting any of them, and stops at the first invalid section.
// Sections implementing KeyPrefixProvider see their keys without the prefix ("address", not "server.address").
func (l *Loader) load(cfgs []Config) error {
	dpForCfg := func(cfg Config) DataProvider {
		if kpHolder, ok := cfg.(KeyPrefixProvider); ok && kpHolder.KeyPrefix() != "" {
			return NewKeyPrefixedDataProvider(l.DataProvider, kpHolder.KeyPrefix())
		}
		return l.DataProvider
	}
	for _, cfg := range cfgs {
		cfg.SetProviderDefaults(dpForCfg(cfg))
	}
	for _, cfg := range cfgs {
		if err := cfg.Set(dpForCfg(cfg)); err != nil {
			return err
		}
	}
	return nil
}
