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
	"context"
	"net"
	"strconv"
	"sync"
	"time"
)

// Collector ties the components together: a UDP listener feeding a bounded
// datagram queue, a pool of decoding workers sharing one Decoder and one
// template cache, and an event channel towards the downstream sink.
type Collector struct {
	config *Config

	catalog   *Catalog
	templates TemplateCache
	decoder   *Decoder
	listener  *UDPListener

	events chan *Event
}

// NewCollector validates the configuration, loads the field catalogs, and
// assembles a collector. Catalog problems (syntax errors, missing override
// files) are returned here, they are fatal at startup.
func NewCollector(config *Config) (*Collector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	catalog, err := LoadCatalog(config.NetflowDefinitions, config.IpfixDefinitions)
	if err != nil {
		return nil, err
	}

	templates := NewDefaultSlidingEphemeralCache()
	templates.SetTimeout(time.Duration(config.CacheTTL) * time.Minute)

	decoder := NewDecoder(templates, catalog, DecoderOptions{
		Versions: config.Versions,
		Target:   config.Target,
	})

	bindAddr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	listener := NewUDPListener(bindAddr, config.BufferSize, config.QueueSize)

	return &Collector{
		config:    config,
		catalog:   catalog,
		templates: templates,
		decoder:   decoder,
		listener:  listener,
		events:    make(chan *Event, config.QueueSize),
	}, nil
}

// Events returns the channel of emitted flow and decode-failure events.
// It is closed after Run returns.
func (c *Collector) Events() <-chan *Event {
	return c.events
}

// Templates exposes the template cache, e.g. for serializing its state.
func (c *Collector) Templates() TemplateCache {
	return c.templates
}

// Run starts the listener and the worker pool and blocks until ctx is
// cancelled and all in-flight datagrams are decoded. The queue channel
// closing after listener shutdown is what releases the workers.
func (c *Collector) Run(ctx context.Context) error {
	var listenErr error

	var listenerDone sync.WaitGroup
	listenerDone.Add(1)
	go func() {
		defer listenerDone.Done()
		listenErr = c.listener.Listen(ctx)
	}()

	var workers sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			c.worker(ctx, id)
		}(i)
	}

	workers.Wait()
	listenerDone.Wait()
	close(c.events)

	return listenErr
}

// worker consumes the datagram queue until it is closed. Decode panics and
// errors are contained per datagram, a worker never terminates early.
func (c *Collector) worker(ctx context.Context, id int) {
	logger := FromContext(ctx, "worker", id)
	for d := range c.listener.Messages() {
		c.process(IntoContext(ctx, logger), d)
	}
}

func (c *Collector) process(ctx context.Context, d datagram) {
	logger := FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			ErrorsTotal.Inc()
			logger.Info("recovered from decoder panic", "panic", r, "source", d.addr.String())
		}
	}()

	exporter := Exporter{
		Addr: d.addr.IP.String(),
		Port: uint16(d.addr.Port),
	}

	events, err := c.decoder.Decode(ctx, d.payload, exporter)
	for _, ev := range events {
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
	if err != nil {
		logger.V(1).Info("failed to decode datagram", "source", d.addr.String(), "reason", err.Error())
		select {
		case c.events <- NewDecodeFailure(exporter.Addr, err):
		case <-ctx.Done():
		}
	}
}
