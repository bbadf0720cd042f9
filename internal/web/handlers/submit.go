package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fstr/pereval/internal/database"
	"github.com/fstr/pereval/internal/web/sse"
)

type coordinateRequest struct {
	Latitude  database.Decimal `json:"latitude"`
	Longitude database.Decimal `json:"longitude"`
	Elevation json.Number      `json:"elevation"`
}

type submitRequest struct {
	DisplayTitle        string              `json:"display_title"`
	OfficialTitle       string              `json:"official_title"`
	AltTitles           string              `json:"alt_titles"`
	ConnectsDescription string              `json:"connects_description"`
	SubmittedAt         string              `json:"submitted_at"`
	Submitter           database.Submitter  `json:"submitter"`
	Coordinate          coordinateRequest   `json:"coordinate"`
	Difficulty          database.Difficulty `json:"difficulty"`
	Images              []database.Image    `json:"images"`
}

// submitResponse mirrors the envelope the mobile client already parses
type submitResponse struct {
	Status    int     `json:"status"`
	Message   *string `json:"message"`
	ID        *int64  `json:"id"`
	ErrorKind string  `json:"error_kind,omitempty"`
}

type coordinatePatchRequest struct {
	Latitude  database.Optional[database.Decimal] `json:"latitude"`
	Longitude database.Optional[database.Decimal] `json:"longitude"`
	Elevation database.Optional[json.Number]      `json:"elevation"`
}

type patchRequest struct {
	DisplayTitle        database.Optional[string]                 `json:"display_title"`
	OfficialTitle       database.Optional[string]                 `json:"official_title"`
	AltTitles           database.Optional[string]                 `json:"alt_titles"`
	ConnectsDescription database.Optional[string]                 `json:"connects_description"`
	SubmittedAt         database.Optional[string]                 `json:"submitted_at"`
	Coordinate          database.Optional[coordinatePatchRequest] `json:"coordinate"`
	Difficulty          database.DifficultyPatch                  `json:"difficulty"`
	Images              database.Optional[[]database.Image]       `json:"images"`

	// Present only to be rejected
	ID        json.RawMessage `json:"id"`
	Status    json.RawMessage `json:"status"`
	Submitter json.RawMessage `json:"submitter"`
}

type patchResponse struct {
	Accepted int    `json:"accepted"`
	Message  string `json:"message"`
}

func (req *submitRequest) toNewPass() (database.NewPass, error) {
	submittedAt, err := ParseSubmittedAt(req.SubmittedAt)
	if err != nil {
		return database.NewPass{}, err
	}
	elevation, err := parseElevation(req.Coordinate.Elevation)
	if err != nil {
		return database.NewPass{}, err
	}
	return database.NewPass{
		Submitter: req.Submitter,
		Coordinate: database.Coordinate{
			Latitude:  req.Coordinate.Latitude,
			Longitude: req.Coordinate.Longitude,
			Elevation: elevation,
		},
		DisplayTitle:        req.DisplayTitle,
		OfficialTitle:       req.OfficialTitle,
		AltTitles:           req.AltTitles,
		ConnectsDescription: req.ConnectsDescription,
		SubmittedAt:         submittedAt,
		Difficulty:          req.Difficulty,
		Images:              req.Images,
	}, nil
}

func (req *patchRequest) toPatch() (database.PassPatch, error) {
	switch {
	case len(req.ID) > 0:
		return database.PassPatch{}, &database.ValidationError{Field: "id", Message: "cannot be changed"}
	case len(req.Status) > 0:
		return database.PassPatch{}, &database.ValidationError{Field: "status", Message: "cannot be changed"}
	case len(req.Submitter) > 0:
		return database.PassPatch{}, &database.ValidationError{Field: "submitter", Message: "cannot be changed"}
	}

	patch := database.PassPatch{
		DisplayTitle:        req.DisplayTitle,
		OfficialTitle:       req.OfficialTitle,
		AltTitles:           req.AltTitles,
		ConnectsDescription: req.ConnectsDescription,
		Difficulty:          req.Difficulty,
		Images:              req.Images,
	}
	if images, ok := patch.Images.Get(); ok && images == nil {
		patch.Images = database.Some([]database.Image{})
	}

	if s, ok := req.SubmittedAt.Get(); ok {
		t, err := ParseSubmittedAt(s)
		if err != nil {
			return database.PassPatch{}, err
		}
		patch.SubmittedAt = database.Some(t)
	}

	if c, ok := req.Coordinate.Get(); ok {
		cp := database.CoordinatePatch{
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
		}
		if n, ok := c.Elevation.Get(); ok {
			elevation, err := parseElevation(n)
			if err != nil {
				return database.PassPatch{}, err
			}
			cp.Elevation = database.Some(elevation)
		}
		patch.Coordinate = database.Some(cp)
	}

	return patch, nil
}

// SubmitData creates a pass record
func (h *Handlers) SubmitData(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.submitError(w, decodeError(err))
		return
	}

	np, err := req.toNewPass()
	if err != nil {
		h.submitError(w, err)
		return
	}

	id, err := h.store.CreatePass(r.Context(), np)
	if err != nil {
		h.submitError(w, err)
		return
	}

	h.broadcast(sse.EventPassCreated, map[string]any{"id": id, "email": np.Submitter.Email})
	h.writeJSON(w, http.StatusOK, submitResponse{Status: http.StatusOK, ID: &id})
}

func (h *Handlers) submitError(w http.ResponseWriter, err error) {
	status, kind := errorKind(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Failed to create pass")
		message = "failed to save submission"
	}
	h.writeJSON(w, status, submitResponse{Status: status, Message: &message, ErrorKind: kind})
}

// GetSubmission returns one record by id
func (h *Handlers) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.passID(w, r)
	if !ok {
		return
	}

	pass, err := h.store.GetPass(r.Context(), id)
	if err != nil {
		status, _ := errorKind(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Int64("pass_id", id).Msg("Failed to get pass")
			h.jsonError(w, "failed to load submission", status)
			return
		}
		h.jsonError(w, err.Error(), status)
		return
	}

	h.writeJSON(w, http.StatusOK, pass)
}

// ListSubmissions returns the records submitted by ?user__email=
func (h *Handlers) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("user__email")

	passes, err := h.store.ListPassesBySubmitter(r.Context(), email)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("Failed to list passes")
		status, _ := errorKind(err)
		h.jsonError(w, "failed to load submissions", status)
		return
	}

	h.writeJSON(w, http.StatusOK, passes)
}

// PatchSubmission applies a sparse update while the record is still new
func (h *Handlers) PatchSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.passID(w, r)
	if !ok {
		return
	}

	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.patchError(w, id, decodeError(err))
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.patchError(w, id, err)
		return
	}

	result, err := h.store.UpdatePass(r.Context(), id, patch)
	if err != nil {
		h.patchError(w, id, err)
		return
	}
	if !result.Accepted {
		h.writeJSON(w, http.StatusConflict, patchResponse{Accepted: 0, Message: result.Reason})
		return
	}

	h.broadcast(sse.EventPassUpdated, map[string]any{"id": id})
	h.writeJSON(w, http.StatusOK, patchResponse{Accepted: 1, Message: result.Reason})
}

func (h *Handlers) patchError(w http.ResponseWriter, id int64, err error) {
	status, _ := errorKind(err)
	message := err.Error()
	switch {
	case errors.Is(err, database.ErrNotFound):
		message = "not found"
	case status >= http.StatusInternalServerError:
		log.Error().Err(err).Int64("pass_id", id).Msg("Failed to update pass")
		message = "failed to save changes"
	}
	h.writeJSON(w, status, patchResponse{Accepted: 0, Message: message})
}

func (h *Handlers) passID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
