package gallery

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/photoshare/service/internal/middleware"
	"github.com/photoshare/service/internal/response"
	"github.com/photoshare/service/internal/storage"
)

// ThumbnailOpener streams stored thumbnail objects.
type ThumbnailOpener interface {
	OpenThumbnail(ctx context.Context, fileKey string) (io.ReadCloser, storage.ObjectInfo, error)
}

// Handler holds HTTP handlers for gallery endpoints.
type Handler struct {
	svc    *Service
	opener ThumbnailOpener
}

// NewHandler creates a new gallery Handler.
func NewHandler(svc *Service, opener ThumbnailOpener) *Handler {
	return &Handler{svc: svc, opener: opener}
}

// ListAll godoc
//
//	@Summary		List all thumbnails
//	@Description	Returns a paginated listing of every processed thumbnail.
//	@Tags			thumbnails
//	@Produce		json
//	@Security		BearerAuth
//	@Param			cursor	query		string	false	"continuation token from a previous page"
//	@Param			limit	query		int		false	"page size (default 20, max 100)"
//	@Success		200		{object}	response.Envelope{data=Page}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/thumbnails [get]
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeAll)
}

// ListMine godoc
//
//	@Summary		List the caller's thumbnails
//	@Description	Same shape as /thumbnails, filtered to pictures uploaded by the caller.
//	@Tags			thumbnails
//	@Produce		json
//	@Security		BearerAuth
//	@Param			cursor	query		string	false	"continuation token from a previous page"
//	@Param			limit	query		int		false	"page size (default 20, max 100)"
//	@Success		200		{object}	response.Envelope{data=Page}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/user_thumbnails [get]
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeMine)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, scope Scope) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	page, err := h.svc.List(r.Context(), middleware.Subject(r.Context()), scope,
		r.URL.Query().Get("cursor"), limit)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoIdentity):
			response.Unauthorized(w, "unauthorized")
		case errors.Is(err, ErrBadCursor):
			response.BadRequest(w, "invalid cursor")
		default:
			log.Printf("gallery: list failed: %v", err)
			response.InternalError(w)
		}
		return
	}

	response.OK(w, page)
}

// GetImage godoc
//
//	@Summary		Stream a thumbnail image
//	@Description	Streams the named object from the thumbnail bucket with its stored content type.
//	@Tags			thumbnails
//	@Produce		image/jpeg
//	@Security		BearerAuth
//	@Param			name	path	string	true	"thumbnail object key"
//	@Success		200		{file}	binary
//	@Failure		401		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/images/{name} [get]
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	// Keys carry an owner prefix, so the route uses a wildcard.
	name := chi.URLParam(r, "*")
	if name == "" {
		response.NotFound(w, "image not found")
		return
	}

	obj, info, err := h.opener.OpenThumbnail(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.NotFound(w, "image not found")
			return
		}
		log.Printf("gallery: open thumbnail %q failed: %v", name, err)
		response.InternalError(w)
		return
	}
	defer obj.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("gallery: stream thumbnail %q failed: %v", name, err)
	}
}
