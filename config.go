/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package netflow

import (
	"errors"
	"fmt"
	"io"

	"github.com/zoomoid/go-netflow/iana/version"
	"gopkg.in/yaml.v3"
)

// Config carries all options of the collector. Only Port is required,
// everything else has defaults, see DefaultConfig.
type Config struct {
	// Host is the bind address of the UDP listener
	Host string `yaml:"host"`

	// Port is the UDP port to listen on. Required.
	Port int `yaml:"port"`

	// BufferSize is the maximum datagram size in bytes
	BufferSize int `yaml:"buffer_size"`

	// Workers is the number of decoding workers consuming the datagram queue
	Workers int `yaml:"workers"`

	// QueueSize bounds the datagram queue between listener and workers.
	// Datagrams arriving while the queue is full are dropped.
	QueueSize int `yaml:"queue_size"`

	// CacheTTL is the template expiry window in minutes. Every use of a
	// template renews the window.
	CacheTTL int `yaml:"cache_ttl"`

	// Target is the event key under which decoded flow fields are nested
	Target string `yaml:"target"`

	// Versions is the set of accepted protocol versions
	Versions []version.ProtocolVersion `yaml:"versions"`

	// NetflowDefinitions optionally points to a YAML file augmenting or
	// overriding the embedded NetFlow v9 field catalog
	NetflowDefinitions string `yaml:"netflow_definitions"`

	// IpfixDefinitions optionally points to a YAML file augmenting or
	// overriding the embedded IPFIX field catalog
	IpfixDefinitions string `yaml:"ipfix_definitions"`
}

func DefaultConfig() *Config {
	return &Config{
		Host:       "0.0.0.0",
		BufferSize: 65536,
		Workers:    2,
		QueueSize:  2000,
		CacheTTL:   4000,
		Target:     DefaultTarget,
		Versions:   []version.ProtocolVersion{version.NetFlowV5, version.NetFlowV9, version.IPFIX},
	}
}

// ReadConfig decodes a YAML configuration over the defaults.
func ReadConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 0xFFFF {
		return fmt.Errorf("port %d is not a valid UDP port", c.Port)
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer_size must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("queue_size must be positive")
	}
	if c.Target == "" {
		return errors.New("target must not be empty")
	}
	if len(c.Versions) == 0 {
		return errors.New("versions must not be empty")
	}
	for _, v := range c.Versions {
		if v != version.NetFlowV5 && v != version.NetFlowV9 && v != version.IPFIX {
			return UnknownVersion(v)
		}
	}
	return nil
}
