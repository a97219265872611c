package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/pdflibrary/service/internal/response"
)

// maxOrderBody caps the reorder request body.
const maxOrderBody = 1 << 20

// maxFormOverhead is the room left above MaxFileSize for multipart framing,
// so a file of exactly MaxFileSize still parses.
const maxFormOverhead = 1 << 20

// Handler holds HTTP handlers for the PDF library endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new library Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers the library endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Upload)
	r.Put("/", h.Reorder)
	r.Get("/{fileName}", h.Download)
	r.Delete("/{fileName}", h.Delete)
}

// List godoc
//
//	@Summary		List PDFs
//	@Description	Returns every stored PDF in the user-defined order.
//	@Tags			library
//	@Produce		json
//	@Success		200	{array}		FileListItem
//	@Failure		500	{object}	response.Envelope
//	@Router			/ [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, items)
}

// Download godoc
//
//	@Summary		Download a PDF
//	@Description	Streams the stored file with its content type and download name.
//	@Tags			library
//	@Produce		application/pdf
//	@Param			fileName	path		string	true	"File name"
//	@Success		200			{file}		binary
//	@Failure		400			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/{fileName} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	name, ok := fileNameParam(w, r)
	if !ok {
		return
	}

	f, err := h.svc.Get(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Content.Close()

	if err := response.Attachment(w, f.Name, f.ContentType, f.Size, f.Content); err != nil {
		log.Printf("library: stream %s: %v", name, err)
	}
}

// Upload godoc
//
//	@Summary		Upload a PDF
//	@Description	Adds a PDF (at most 5242880 bytes, .pdf extension) after the last file. Existing names are rejected.
//	@Tags			library
//	@Accept			multipart/form-data
//	@Param			file	formData	file	true	"PDF file"
//	@Success		200
//	@Failure		400	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/ [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize+maxFormOverhead)

	var upload *Upload
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, fmt.Sprintf("the maximum file size is %d bytes", MaxFileSize))
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	default:
		defer file.Close()
		upload = &Upload{
			Name:        header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
		}
	}

	if err := h.svc.Upload(r.Context(), upload); err != nil {
		writeError(w, err)
		return
	}
	response.Empty(w)
}

// Reorder godoc
//
//	@Summary		Reorder PDFs
//	@Description	Sets each named file's position to its index in newOrder. Unnamed files keep their position.
//	@Tags			library
//	@Accept			x-www-form-urlencoded
//	@Accept			json
//	@Param			newOrder	formData	[]string	true	"File names in the new order"	collectionFormat(multi)
//	@Success		200
//	@Failure		400	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/ [put]
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	names, err := decodeOrder(w, r)
	if err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.svc.Reorder(r.Context(), names); err != nil {
		writeError(w, err)
		return
	}
	response.Empty(w)
}

// Delete godoc
//
//	@Summary		Delete a PDF
//	@Tags			library
//	@Param			fileName	path	string	true	"File name"
//	@Success		200
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/{fileName} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	name, ok := fileNameParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	response.Empty(w)
}

// decodeOrder reads the new order from a JSON array body or from repeated
// newOrder form fields. A missing field yields a nil slice.
func decodeOrder(w http.ResponseWriter, r *http.Request) ([]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxOrderBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var names []string
		if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
			return nil, err
		}
		return names, nil
	}

	if err := r.ParseMultipartForm(32 << 10); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	names, ok := r.PostForm["newOrder"]
	if !ok {
		return nil, nil
	}
	return names, nil
}

// fileNameParam returns the decoded fileName path segment. chi matches on
// the raw path when the request carried escapes, leaving them in the param.
func fileNameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "fileName")
	if r.URL.RawPath == "" {
		return name, true
	}
	name, err := url.PathUnescape(name)
	if err != nil {
		response.BadRequest(w, "invalid fileName parameter")
		return "", false
	}
	return name, true
}

// writeError maps service errors onto HTTP status codes. Anything that is
// not a validation or not-found outcome is a store failure, already logged
// by the service.
func writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		response.BadRequest(w, ve.Message)
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "file not found")
	default:
		response.InternalError(w)
	}
}
