package syncapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func RegisterRoutes(r *mux.Router, h *Handler) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/fetch_devices_by_ip", h.FetchDevices).Methods(http.MethodGet)
	api.HandleFunc("/sync-device-names", h.SyncNames).Methods(http.MethodGet)
	api.HandleFunc("/complete-ports", h.CompletePorts).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/devices", h.ListDevices).Methods(http.MethodGet)

	// исторический алиас без префикса, его дергают напрямую
	r.HandleFunc("/complete-ports", h.CompletePorts).Methods(http.MethodGet, http.MethodPost)
}
