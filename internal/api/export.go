package api

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/valenrosasc/chatbot/internal/export"
	"github.com/valenrosasc/chatbot/internal/metrics"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExport returns every appointment as an Excel workbook.
// GET /export (requires X-API-Key)
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteAppointments(r.Context(), s.store, &buf); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "citas_"+s.now().Format("20060102")+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) authorized(r *http.Request) bool {
	if s.opts.APIKey == "" {
		return false
	}
	got := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.APIKey)) == 1
}
