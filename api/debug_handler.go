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
	"net/http"

	"github.com/gorilla/mux"
	"github.com/YuaNFrank/spark/master"
	"github.com/YuaNFrank/spark/memstore"
	memCom "github.com/YuaNFrank/spark/memstore/common"
	"github.com/YuaNFrank/spark/utils"
)

// DebugHandler serves introspection endpoints over the local store and, when
// this process hosts the master, over the cluster directory.
type DebugHandler struct {
	store              *memstore.MemoryStore
	endpoint           *master.Endpoint
	healthCheckHandler *HealthCheckHandler
}

// NewDebugHandler creates a debug handler; endpoint may be nil on pure
// workers.
func NewDebugHandler(store *memstore.MemoryStore, endpoint *master.Endpoint,
	healthCheckHandler *HealthCheckHandler) *DebugHandler {
	return &DebugHandler{
		store:              store,
		endpoint:           endpoint,
		healthCheckHandler: healthCheckHandler,
	}
}

// Register adds the debug endpoints to the router.
func (handler *DebugHandler) Register(router *mux.Router) {
	router.HandleFunc("/health", handler.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/{onOrOff}", handler.HealthSwitch).Methods(http.MethodPost)
	router.HandleFunc("/memory", handler.ShowMemory).Methods(http.MethodGet)
	router.HandleFunc("/blocks", handler.ShowBlocks).Methods(http.MethodGet)
	if handler.endpoint != nil {
		router.HandleFunc("/workers", handler.ShowWorkers).Methods(http.MethodGet)
		router.HandleFunc("/locations/{block}", handler.ShowLocations).Methods(http.MethodGet)
		router.HandleFunc("/memory-status", handler.ShowMemoryStatus).Methods(http.MethodGet)
		router.HandleFunc("/storage-status", handler.ShowStorageStatus).Methods(http.MethodGet)
	}
}

// Health returns whether the health check is on or off.
func (handler *DebugHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "on"
	if handler.healthCheckHandler.IsDisabled() {
		status = "off"
	}
	utils.NewResponseWriter(w).WriteObject(map[string]string{"status": status})
}

// HealthSwitch turns the health check on or off.
func (handler *DebugHandler) HealthSwitch(w http.ResponseWriter, r *http.Request) {
	rw := utils.NewResponseWriter(w)
	onOrOff := mux.Vars(r)["onOrOff"]
	switch onOrOff {
	case "on":
		handler.healthCheckHandler.SetDisabled(false)
	case "off":
		handler.healthCheckHandler.SetDisabled(true)
	default:
		rw.WriteError(utils.APIError{
			Code:    http.StatusBadRequest,
			Message: "must be either on or off",
		})
		return
	}
	rw.WriteObject(map[string]string{"status": onOrOff})
}

// ShowMemory reports the local memory account snapshot.
func (handler *DebugHandler) ShowMemory(w http.ResponseWriter, r *http.Request) {
	utils.NewResponseWriter(w).WriteObject(handler.store.Usage())
}

// ShowBlocks lists the locally cached entries with their reference and lease
// state.
func (handler *DebugHandler) ShowBlocks(w http.ResponseWriter, r *http.Request) {
	utils.NewResponseWriter(w).WriteObject(handler.store.Blocks())
}

// ShowWorkers lists the registered workers.
func (handler *DebugHandler) ShowWorkers(w http.ResponseWriter, r *http.Request) {
	rw := utils.NewResponseWriter(w)
	result, err := handler.endpoint.Ask(master.GetWorkers{})
	if err != nil {
		rw.WriteError(err)
		return
	}
	rw.WriteObject(result)
}

// ShowLocations reports the workers holding the named block.
func (handler *DebugHandler) ShowLocations(w http.ResponseWriter, r *http.Request) {
	rw := utils.NewResponseWriter(w)
	block, err := memCom.ParseBlockID(mux.Vars(r)["block"])
	if err != nil {
		rw.WriteError(utils.APIError{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}
	result, askErr := handler.endpoint.Ask(master.GetLocations{Block: block})
	if askErr != nil {
		rw.WriteError(askErr)
		return
	}
	rw.WriteObject(result)
}

// ShowMemoryStatus reports per-worker max and remaining memory.
func (handler *DebugHandler) ShowMemoryStatus(w http.ResponseWriter, r *http.Request) {
	rw := utils.NewResponseWriter(w)
	result, err := handler.endpoint.Ask(master.GetMemoryStatus{})
	if err != nil {
		rw.WriteError(err)
		return
	}
	rw.WriteObject(result)
}

// ShowStorageStatus reports per-worker block statuses.
func (handler *DebugHandler) ShowStorageStatus(w http.ResponseWriter, r *http.Request) {
	rw := utils.NewResponseWriter(w)
	result, err := handler.endpoint.Ask(master.GetStorageStatus{})
	if err != nil {
		rw.WriteError(err)
		return
	}
	rw.WriteObject(result)
}
