package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/phildougherty/queuescale/internal/config"
	"github.com/phildougherty/queuescale/internal/logging"
	"github.com/phildougherty/queuescale/internal/scaling"
)

const (
	StatusPath = "/status"
	ConfigPath = "/config"
)

// StatusSource publishes the latest control loop status
type StatusSource interface {
	Status() scaling.Status
}

// StatusHandler serves the control loop status and the effective options
type StatusHandler struct {
	source StatusSource
	opts   config.Options
	logger *logging.Logger
	router *mux.Router
}

// NewStatusHandler builds the router for StatusPath and ConfigPath
func NewStatusHandler(source StatusSource, opts config.Options, logger *logging.Logger) *StatusHandler {
	h := &StatusHandler{
		source: source,
		opts:   opts,
		logger: logger,
		router: mux.NewRouter(),
	}
	h.router.HandleFunc(StatusPath, h.handleStatus).Methods(http.MethodGet)
	h.router.HandleFunc(ConfigPath, h.handleConfig).Methods(http.MethodGet)
	return h
}

// Paths lists the paths to mount the handler on
func (h *StatusHandler) Paths() []string {
	return []string{StatusPath, ConfigPath}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.source.Status()

	w.Header().Set("Content-Type", "application/json")
	if !status.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.Error("Failed to encode status: %v", err)
	}
}

func (h *StatusHandler) handleConfig(w http.ResponseWriter, r *http.Request) {
	out, err := yaml.Marshal(h.opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	if _, err := w.Write(out); err != nil {
		h.logger.Error("Failed to write config: %v", err)
	}
}
