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

package netflow_test

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	netflow "github.com/zoomoid/go-netflow"
)

func Example_collector() {
	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Received shutdown signal, initiating shutdown...")
		cancel()
		<-c
		os.Exit(1)
	}()

	config := netflow.DefaultConfig()
	config.Port = 2055

	collector, err := netflow.NewCollector(config)
	if err != nil {
		log.Fatalln(err)
	}

	go func() {
		for ev := range collector.Events() {
			b, err := json.Marshal(ev)
			if err != nil {
				log.Println(err)
				continue
			}
			log.Println(string(b))
		}
	}()

	log.Printf("Starting NetFlow collector on %s:%d", config.Host, config.Port)
	if err := collector.Run(ctx); err != nil {
		log.Fatalln(err)
	}
}
