package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/models"
	"github.com/linesmerrill/agendajur-api/session"
	"github.com/linesmerrill/agendajur-api/uploads"
)

// MaxUploadMemory is how much of a multipart body is held in memory, the
// rest spills to temporary files
const MaxUploadMemory = 32 << 20

// Hearing exported for testing purposes
type Hearing struct {
	Svc *session.Service
}

// AttachmentChoice is one entry of the selection list returned when a
// hearing has more than one attachment
type AttachmentChoice struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// HearingsHandler returns the hearings visible to the caller, sorted by date
func (h Hearing) HearingsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	hearings, err := h.Svc.Hearings(ctx, api.SessionFrom(r.Context()))
	if err != nil {
		serviceError("failed to get hearings", w, err)
		return
	}
	writeJSON(w, http.StatusOK, hearings)
}

// CreateHearingHandler creates a hearing from a JSON body, or from a
// multipart form with the details in the "hearing" field and PDFs in "files"
func (h Hearing) CreateHearingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	sess := api.SessionFrom(r.Context())

	if !isMultipart(r) {
		var details models.HearingDetails
		if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
			config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
			return
		}
		hearing, err := h.Svc.CreateHearing(r.Context(), sess, details)
		if err != nil {
			serviceError("failed to create hearing", w, err)
			return
		}
		writeJSON(w, http.StatusCreated, hearing)
		return
	}

	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var details models.HearingDetails
	if err := json.Unmarshal([]byte(r.FormValue("hearing")), &details); err != nil {
		config.ErrorStatus("failed to decode hearing field", http.StatusBadRequest, w, err)
		return
	}

	hearing, err := h.Svc.SubmitHearing(r.Context(), sess, details, formFiles(r.MultipartForm), progressLogger(r))
	if err != nil {
		serviceError("failed to create hearing", w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hearing)
}

// HearingByIDHandler returns a single hearing
func (h Hearing) HearingByIDHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	hearingID := mux.Vars(r)["hearing_id"]

	zap.S().Debugf("hearing_id: %v", hearingID)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	hearing, err := h.Svc.Hearing(ctx, api.SessionFrom(r.Context()), hearingID)
	if err != nil {
		serviceError("failed to get hearing by ID", w, err)
		return
	}
	writeJSON(w, http.StatusOK, hearing)
}

// UpdateHearingHandler replaces the editable fields of a hearing
func (h Hearing) UpdateHearingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	hearingID := mux.Vars(r)["hearing_id"]

	var details models.HearingDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	sess := api.SessionFrom(r.Context())
	if err := h.Svc.UpdateHearing(ctx, sess, hearingID, details); err != nil {
		serviceError("failed to update hearing", w, err)
		return
	}
	hearing, err := h.Svc.Hearing(ctx, sess, hearingID)
	if err != nil {
		serviceError("failed to get hearing by ID", w, err)
		return
	}
	writeJSON(w, http.StatusOK, hearing)
}

// DeleteHearingHandler deletes a hearing. Deleting an unknown id succeeds.
func (h Hearing) DeleteHearingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	hearingID := mux.Vars(r)["hearing_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := h.Svc.DeleteHearing(ctx, api.SessionFrom(r.Context()), hearingID); err != nil {
		serviceError("failed to delete hearing", w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": hearingID})
}

// AttachmentsHandler opens a hearing's attachments. A single attachment, or
// the one picked with ?index=, redirects to its URL. Several attachments are
// listed for the caller to choose from.
func (h Hearing) AttachmentsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	hearingID := mux.Vars(r)["hearing_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	hearing, err := h.Svc.Hearing(ctx, api.SessionFrom(r.Context()), hearingID)
	if err != nil {
		serviceError("failed to get hearing by ID", w, err)
		return
	}

	attachments := hearing.Details.Attachments
	if raw := r.URL.Query().Get("index"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err != nil || i < 0 || i >= len(attachments) {
			config.ErrorStatus("attachment not found", http.StatusNotFound, w, fmt.Errorf("no attachment at index %q", raw))
			return
		}
		http.Redirect(w, r, attachments[i].URL, http.StatusFound)
		return
	}

	switch len(attachments) {
	case 0:
		config.ErrorStatus("hearing has no attachments", http.StatusNotFound, w, nil)
	case 1:
		http.Redirect(w, r, attachments[0].URL, http.StatusFound)
	default:
		choices := make([]AttachmentChoice, len(attachments))
		for i, a := range attachments {
			choices[i] = AttachmentChoice{Index: i, Name: a.Name, URL: a.URL}
		}
		writeJSON(w, http.StatusOK, map[string][]AttachmentChoice{"attachments": choices})
	}
}

// AddAttachmentsHandler uploads the PDFs in the "files" form field and
// appends them to the hearing
func (h Hearing) AddAttachmentsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	hearingID := mux.Vars(r)["hearing_id"]

	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := formFiles(r.MultipartForm)
	if len(files) == 0 {
		config.ErrorStatus("no files provided", http.StatusBadRequest, w, errors.New(`multipart field "files" is empty`))
		return
	}

	hearing, err := h.Svc.AddAttachments(r.Context(), api.SessionFrom(r.Context()), hearingID, files, progressLogger(r))
	if err != nil {
		serviceError("failed to add attachments", w, err)
		return
	}
	writeJSON(w, http.StatusOK, hearing)
}

// RemoveAttachmentHandler drops the attachment at {index}
func (h Hearing) RemoveAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	vars := mux.Vars(r)

	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		config.ErrorStatus("failed to parse attachment index", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	hearing, err := h.Svc.RemoveAttachment(ctx, api.SessionFrom(r.Context()), vars["hearing_id"], index)
	if err != nil {
		serviceError("failed to remove attachment", w, err)
		return
	}
	writeJSON(w, http.StatusOK, hearing)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func formFiles(form *multipart.Form) []uploads.File {
	if form == nil {
		return nil
	}
	headers := form.File["files"]
	files := make([]uploads.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploads.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return files
}

func progressLogger(r *http.Request) func(uploads.Progress) {
	requestID := api.RequestIDFrom(r.Context())
	return func(p uploads.Progress) {
		zap.S().Debugw(p.String(), "requestId", requestID, "file", p.Name)
	}
}
