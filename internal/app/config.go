package app

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBackend = "local"
	DefaultStore   = "memory"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // .hcl file or directory

	BackendName    string
	BackendOptions map[string]string
	StoreName      string
	StoreOptions   map[string]string

	// ResumeRunID reuses the outputs a store recorded for an earlier run.
	ResumeRunID string

	LogFormat       string
	LogLevel        string
	LogFile         string // rotated log file; empty logs to the app's log writer
	HealthcheckPort int
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.BackendName == "" {
		cfg.BackendName = DefaultBackend
	}
	if cfg.StoreName == "" {
		cfg.StoreName = DefaultStore
	}
	if cfg.BackendOptions == nil {
		cfg.BackendOptions = map[string]string{}
	}
	if cfg.StoreOptions == nil {
		cfg.StoreOptions = map[string]string{}
	}
	return &cfg, nil
}

// FileConfig is the YAML layout of a backend configuration file:
//
//	backend:
//	  name: socketio
//	  options:
//	    address: http://worker:8090
//	store:
//	  name: s3
//	  options:
//	    bucket: runs
type FileConfig struct {
	Backend Section `yaml:"backend"`
	Store   Section `yaml:"store"`
}

// Section names a backend or store and its options.
type Section struct {
	Name    string            `yaml:"name"`
	Options map[string]string `yaml:"options"`
}

// LoadFileConfig reads a FileConfig from path.
func LoadFileConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// Merge returns the options of base overridden by over.
func Merge(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
