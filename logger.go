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
	"sync"

	"github.com/go-logr/logr"
)

var (
	rootMu  sync.RWMutex
	rootLog = logr.Discard()
)

// SetLogger sets the package-level logger all components log through when the
// context does not carry one. Call it once before starting the collector:
// loggers already obtained from Log or FromContext keep the logger that was
// current when they were obtained, a later SetLogger does not reach them.
func SetLogger(l logr.Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	rootLog = l
}

// Log returns the current package-level logger.
func Log() logr.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return rootLog
}

// FromContext returns the logger embedded in ctx, or the package-level logger
// if the context does not carry one.
func FromContext(ctx context.Context, keysAndValues ...interface{}) logr.Logger {
	log := Log()
	if ctx != nil {
		if logger, err := logr.FromContext(ctx); err == nil {
			log = logger
		}
	}
	return log.WithValues(keysAndValues...)
}

// IntoContext embeds a logger into a context for FromContext to find.
func IntoContext(ctx context.Context, l logr.Logger) context.Context {
	return logr.NewContext(ctx, l)
}
