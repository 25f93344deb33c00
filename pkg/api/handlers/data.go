package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/marmos91/dittorelay/internal/bufpool"
	"github.com/marmos91/dittorelay/pkg/device"
)

// Read handles GET /api/v1/relays/{name}/data?offset=&length=. The body is
// the raw bytes read through the relay.
func (h *RelayHandler) Read(maxTransfer int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		off, err := queryInt(r, "offset", 0)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		length, err := queryInt(r, "length", -1)
		if err != nil || length < 0 {
			BadRequest(w, "length is required and must be a non-negative integer")
			return
		}
		if length > maxTransfer {
			BadRequest(w, fmt.Sprintf("length %d exceeds the transfer limit of %d bytes", length, maxTransfer))
			return
		}

		rl, ok := h.lookup(w, r)
		if !ok {
			return
		}

		buf := bufpool.Get(int(length))
		defer bufpool.Put(buf)

		req := &device.Request{Op: device.OpRead, Offset: off, Length: length, Data: buf}
		if err := rl.Dispatch(r.Context(), req); err != nil {
			writeRelayError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf)
	}
}

// Write handles PUT /api/v1/relays/{name}/data?offset=. The request body
// is written through the relay.
func (h *RelayHandler) Write(maxTransfer int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		off, err := queryInt(r, "offset", 0)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}

		rl, ok := h.lookup(w, r)
		if !ok {
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTransfer))
		if err != nil {
			BadRequest(w, fmt.Sprintf("failed to read body: %v", err))
			return
		}

		req := &device.Request{Op: device.OpWrite, Offset: off, Length: int64(len(data)), Data: data}
		if err := rl.Dispatch(r.Context(), req); err != nil {
			writeRelayError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Flush handles POST /api/v1/relays/{name}/flush.
func (h *RelayHandler) Flush(w http.ResponseWriter, r *http.Request) {
	rl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := rl.Dispatch(r.Context(), &device.Request{Op: device.OpFlush}); err != nil {
		writeRelayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Discard handles POST /api/v1/relays/{name}/discard?offset=&length=.
func (h *RelayHandler) Discard(w http.ResponseWriter, r *http.Request) {
	off, err := queryInt(r, "offset", 0)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	length, err := queryInt(r, "length", -1)
	if err != nil || length < 0 {
		BadRequest(w, "length is required and must be a non-negative integer")
		return
	}

	rl, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := rl.Dispatch(r.Context(), &device.Request{Op: device.OpDiscard, Offset: off, Length: length}); err != nil {
		writeRelayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}
