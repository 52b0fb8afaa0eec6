package api

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadAttachment handles POST /api/notes/{id}/attachments
// (multipart/form-data, field "file").
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		writeJSON(w, http.StatusBadRequest, errorBody("filename is required"))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	typeTag := header.Header.Get("Content-Type")
	if typeTag == "" || typeTag == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
			typeTag = byExt
		}
	}

	info, err := h.svc.AddAttachment(r.Context(), chi.URLParam(r, "id"), name, typeTag, data)
	if err != nil {
		writeError(w, "upload attachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// DownloadAttachment handles GET /api/notes/{id}/attachments/{attID}.
func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	info, data, err := h.svc.Attachment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "attID"))
	if err != nil {
		writeError(w, "download attachment", err)
		return
	}
	ctype := info.TypeTag
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
