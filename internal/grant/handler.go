package grant

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/photoshare/service/internal/middleware"
	"github.com/photoshare/service/internal/response"
)

// Handler holds HTTP handlers for upload-grant endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new grant Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type generateURLRequest struct {
	FileName string `json:"fileName" example:"cat.jpg"`
}

// GenerateURL godoc
//
//	@Summary		Issue a presigned upload URL
//	@Description	Returns a short-lived, write-only URL scoped to a single object key in the raw bucket.
//	@Tags			uploads
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		generateURLRequest	true	"upload request"
//	@Success		200		{object}	response.Envelope{data=Grant}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/generate-url [post]
func (h *Handler) GenerateURL(w http.ResponseWriter, r *http.Request) {
	var req generateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	g, err := h.svc.Issue(r.Context(), middleware.Subject(r.Context()), req.FileName)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoIdentity):
			response.Unauthorized(w, "unauthorized")
		case errors.Is(err, ErrInvalidName):
			response.BadRequest(w, err.Error())
		default:
			log.Printf("grant: issue failed: %v", err)
			response.InternalError(w)
		}
		return
	}

	response.OK(w, g)
}
