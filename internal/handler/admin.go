package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler serves operator endpoints behind HTTP basic auth.
type AdminHandler struct {
	auth   *service.AdminAuth
	export *service.ExportService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(auth *service.AdminAuth, export *service.ExportService) *AdminHandler {
	return &AdminHandler{auth: auth, export: export}
}

// HandleExport returns the progress snapshot as a spreadsheet.
// GET /admin/progress.xlsx
func (h *AdminHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		http.NotFound(w, r)
		return
	}

	_, password, ok := r.BasicAuth()
	if !ok || h.auth.Verify(password) != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="microlearn admin", charset="UTF-8"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := h.export.Workbook(r.Context())
	if err != nil {
		slog.Error("export progress", "error", err)
		if errors.Is(err, domain.ErrProgressStoreUnavailable) {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
