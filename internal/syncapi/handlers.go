package syncapi

import (
	"errors"
	"net/http"
	"strconv"

	"boxfarm/internal/controller"
	"boxfarm/internal/models"
	"boxfarm/internal/repo"
)

// Handler отдаёт операции синхронизации поверх Reconciler.
type Handler struct {
	rec *controller.Reconciler
	ds  *repo.DeviceStore
}

func New(rec *controller.Reconciler, ds *repo.DeviceStore) *Handler {
	return &Handler{rec: rec, ds: ds}
}

// GET /api/fetch_devices_by_ip?ip=...&update_existing_only=...
func (h *Handler) FetchDevices(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	updateOnly := false
	if v := r.URL.Query().Get("update_existing_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			models.WriteProblem(w, http.StatusBadRequest, "Bad Request",
				"update_existing_only must be a boolean", nil)
			return
		}
		updateOnly = b
	}

	report, err := h.rec.FetchAndSync(r.Context(), ip, updateOnly)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, report)
}

// GET /api/sync-device-names?ip=...
func (h *Handler) SyncNames(w http.ResponseWriter, r *http.Request) {
	report, err := h.rec.SyncNames(r.Context(), r.URL.Query().Get("ip"))
	if err != nil {
		writeSyncError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, report)
}

// GET|POST /api/complete-ports (плюс алиас без префикса)
func (h *Handler) CompletePorts(w http.ResponseWriter, r *http.Request) {
	report, err := h.rec.UnifyPorts(r.Context())
	if err != nil {
		writeSyncError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, report)
}

// GET /api/devices?box_ip=...
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.ds.List(r.Context(), r.URL.Query().Get("box_ip"))
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(devices),
		"devices": devices,
	})
}

func writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrValidation):
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
	case errors.Is(err, controller.ErrFetch):
		models.WriteProblem(w, http.StatusBadGateway, "Bad Gateway", err.Error(), nil)
	default:
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), nil)
	}
}
