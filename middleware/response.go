package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRejection writes err as a JSON rejection. Errors that are not rejections are
// reported as 500 without leaking their text.
func WriteRejection(w http.ResponseWriter, err error) {
	rej, ok := goGuard.AsRejection(err)
	if !ok {
		status := http.StatusInternalServerError
		if errors.Is(err, goGuard.ErrEngineNotReady) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, errorBody{Error: "Internal error", Code: "INTERNAL"})
		return
	}
	if rej.Reason == goGuard.ReasonUpgradeHTTPS {
		w.Header().Set("Upgrade", "TLS/1.2, HTTP/1.1")
		w.Header().Set("Connection", "Upgrade")
	}
	writeJSON(w, rej.Reason.HTTPStatus(), errorBody{
		Error:   rej.Reason.Message(),
		Code:    rej.Reason.Code(),
		Details: rej.Missing,
	})
}
