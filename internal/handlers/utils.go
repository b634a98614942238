package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog/hlog"
)

var JSONHandlerPool = sync.Pool{
	New: func() any {
		buffer := new(bytes.Buffer)
		encoder := json.NewEncoder(buffer)
		encoder.SetIndent("", "  ")
		return &JSONHandler{buffer, encoder}
	},
}

type JSONHandler struct {
	Buffer  *bytes.Buffer
	Encoder *json.Encoder
}

// WriteJSON sends value encoded as JSON with the given status.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, value any) {
	handler := JSONHandlerPool.Get().(*JSONHandler) //nolint:forcetypeassert
	defer func() {
		handler.Buffer.Reset()
		JSONHandlerPool.Put(handler)
	}()

	if err := handler.Encoder.Encode(value); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("unable to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(handler.Buffer.Bytes()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error sending response to client")
	}
}
