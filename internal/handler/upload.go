package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/johndosdos/duochat/internal/blob"
)

// Uploader stores an image and returns the reference messages use.
type Uploader interface {
	Put(ctx context.Context, r io.Reader) (string, error)
}

type uploadResponse struct {
	ImageRef string `json:"imageRef,omitempty"`
	Error    string `json:"error,omitempty"`
}

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 64 << 10

// ServeUpload accepts a single image in the multipart field "image".
func ServeUpload(store Uploader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

		file, _, err := r.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeJSON(ctx, w, http.StatusRequestEntityTooLarge, uploadResponse{Error: blob.ErrTooLarge.Error()})
				return
			}
			writeJSON(ctx, w, http.StatusBadRequest, uploadResponse{Error: "expected an image in the \"image\" form field"})
			return
		}
		defer file.Close()

		ref, err := store.Put(ctx, file)
		switch {
		case errors.Is(err, blob.ErrTooLarge):
			writeJSON(ctx, w, http.StatusRequestEntityTooLarge, uploadResponse{Error: blob.ErrTooLarge.Error()})
			return
		case errors.Is(err, blob.ErrUnsupportedType):
			writeJSON(ctx, w, http.StatusUnsupportedMediaType, uploadResponse{Error: blob.ErrUnsupportedType.Error()})
			return
		case err != nil:
			slog.ErrorContext(ctx, "failed to store upload", "error", err)
			writeJSON(ctx, w, http.StatusInternalServerError, uploadResponse{Error: "upload failed"})
			return
		}

		slog.InfoContext(ctx, "image uploaded", "ref", ref)
		writeJSON(ctx, w, http.StatusCreated, uploadResponse{ImageRef: ref})
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(ctx, "failed to write response", "error", err)
	}
}
