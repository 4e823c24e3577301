//  Copyright (c) 2017-2018 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"io"
	"net/http"
	"sync"

	"github.com/YuaNFrank/spark/utils"
)

// HealthCheckHandler http handler for health check.
type HealthCheckHandler struct {
	sync.RWMutex
	// This flag controls whether health check returns 200 or 503. Useful when
	// the server lags behind too much and an operator wants it pulled out of
	// rotation without killing it.
	disable bool
}

// NewHealthCheckHandler return a new http handler for health check.
func NewHealthCheckHandler() *HealthCheckHandler {
	return &HealthCheckHandler{}
}

// HealthCheck is the HealthCheck endpoint.
func (handler *HealthCheckHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	handler.RLock()
	disabled := handler.disable
	handler.RUnlock()
	if disabled {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "Health check disabled")
	} else {
		io.WriteString(w, "OK")
	}
}

// Version is the Version check endpoint.
func (handler *HealthCheckHandler) Version(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, utils.GetConfig().Version)
}

// SetDisabled flips the health check switch.
func (handler *HealthCheckHandler) SetDisabled(disabled bool) {
	handler.Lock()
	handler.disable = disabled
	handler.Unlock()
}

// IsDisabled reads the health check switch.
func (handler *HealthCheckHandler) IsDisabled() bool {
	handler.RLock()
	defer handler.RUnlock()
	return handler.disable
}
