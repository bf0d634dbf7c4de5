package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/usecase"
)

const multipartMemory = 8 << 20

type wizardResponse struct {
	Wizard  usecase.SessionView `json:"wizard"`
	Notices []domain.Notice     `json:"notices"`
	Result  any                 `json:"result,omitempty"`
}

func (rt *Router) registerWizardRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/wizards", rt.openWizard)
	mux.HandleFunc("GET /v1/wizards/{id}", rt.getWizard)
	mux.HandleFunc("DELETE /v1/wizards/{id}", rt.closeWizard)
	mux.HandleFunc("PATCH /v1/wizards/{id}/draft", rt.updateDraft)
	mux.HandleFunc("POST /v1/wizards/{id}/steps", rt.setStep)
	mux.HandleFunc("POST /v1/wizards/{id}/geometry/mode", rt.setGeometryMode)
	mux.HandleFunc("PUT /v1/wizards/{id}/geometry/file", rt.selectGeometryFile)
	mux.HandleFunc("POST /v1/wizards/{id}/capture/start", rt.startCapture)
	mux.HandleFunc("POST /v1/wizards/{id}/capture/points", rt.addPoint)
	mux.HandleFunc("POST /v1/wizards/{id}/capture/undo", rt.undoPoint)
	mux.HandleFunc("POST /v1/wizards/{id}/capture/finish", rt.finishCapture)
	mux.HandleFunc("POST /v1/wizards/{id}/capture/cancel", rt.cancelCapture)
	mux.HandleFunc("POST /v1/wizards/{id}/capture/clear", rt.clearCapture)
	mux.HandleFunc("PUT /v1/wizards/{id}/cover", rt.setCover)
	mux.HandleFunc("DELETE /v1/wizards/{id}/cover", rt.removeCover)
	mux.HandleFunc("POST /v1/wizards/{id}/documents", rt.addDocumentRow)
	mux.HandleFunc("DELETE /v1/wizards/{id}/documents/{index}", rt.removeDocumentRow)
	mux.HandleFunc("POST /v1/wizards/{id}/submit", rt.submitWizard)
}

func (rt *Router) openWizard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecordID              string `json:"record_id"`
		City                  string `json:"city"`
		SuppressLoginRedirect bool   `json:"suppress_login_redirect"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
			return
		}
	}

	session, err := rt.deps.Wizards.Open(r.Context(), usecase.OpenRequest{
		Owner:                 rt.owner(r),
		City:                  rt.resolveCity(r, req.City),
		RecordID:              strings.TrimSpace(req.RecordID),
		SuppressLoginRedirect: req.SuppressLoginRedirect,
	})
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	rt.reportActiveWizards()
	rt.respond(w, r, session.ID, http.StatusCreated, func(*usecase.WizardSession) (any, error) {
		return nil, nil
	})
}

func (rt *Router) getWizard(w http.ResponseWriter, r *http.Request) {
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(*usecase.WizardSession) (any, error) {
		return nil, nil
	})
}

func (rt *Router) closeWizard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !rt.authorizeWizard(w, r, id) {
		return
	}
	if err := rt.deps.Wizards.Close(id); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	rt.reportActiveWizards()
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) updateDraft(w http.ResponseWriter, r *http.Request) {
	var patch usecase.DraftPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		s.UpdateDraft(patch)
		return nil, nil
	})
}

func (rt *Router) setStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step int `json:"step"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		moved := s.Wizard().SetStep(req.Step, false)
		return map[string]bool{"moved": moved}, nil
	})
}

func (rt *Router) setGeometryMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	mode, ok := domain.ParseGeometryMode(req.Mode)
	if !ok {
		err := domain.WrapError(domain.ErrValidation, "set geometry mode", fmt.Errorf("unknown mode %q", req.Mode))
		writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		s.Geometry().SetGeomMode(mode)
		return nil, nil
	})
}

func (rt *Router) selectGeometryFile(w http.ResponseWriter, r *http.Request) {
	file, err := rt.readUpload(w, r, "file", true)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		s.Geometry().SelectFile(file)
		return nil, nil
	})
}

func (rt *Router) startCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	drawType, err := domain.ParseDrawType(req.Type)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err, nil)
		return
	}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		return nil, s.Geometry().StartCapture(drawType)
	})
}

func (rt *Router) addPoint(w http.ResponseWriter, r *http.Request) {
	var coord domain.Coordinate
	if err := decodeJSON(r, &coord); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		return nil, s.Geometry().AddPoint(coord)
	})
}

func (rt *Router) undoPoint(w http.ResponseWriter, r *http.Request) {
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		return map[string]bool{"undone": s.Geometry().UndoPoint()}, nil
	})
}

func (rt *Router) finishCapture(w http.ResponseWriter, r *http.Request) {
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		geometry, err := s.Geometry().FinishCapture()
		if err != nil {
			return nil, err
		}
		return map[string]domain.Geometry{"geometry": geometry}, nil
	})
}

func (rt *Router) cancelCapture(w http.ResponseWriter, r *http.Request) {
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		return map[string]bool{"cancelled": s.Geometry().CancelCapture()}, nil
	})
}

func (rt *Router) clearCapture(w http.ResponseWriter, r *http.Request) {
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		s.Geometry().ClearCapture()
		return nil, nil
	})
}

func (rt *Router) setCover(w http.ResponseWriter, r *http.Request) {
	file, err := rt.readUpload(w, r, "file", true)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		s.SetCover(file)
		return nil, nil
	})
}

func (rt *Router) removeCover(w http.ResponseWriter, r *http.Request) {
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		s.SetCover(nil)
		return nil, nil
	})
}

// addDocumentRow accepts incomplete rows; the collector drops them at submit time.
func (rt *Router) addDocumentRow(w http.ResponseWriter, r *http.Request) {
	file, err := rt.readUpload(w, r, "file", false)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	row := domain.DocumentRow{Title: r.FormValue("title"), File: file}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		return map[string]int{"index": s.AddDocumentRow(row)}, nil
	})
}

func (rt *Router) removeDocumentRow(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("document index must be an integer"), nil)
		return
	}
	rt.respond(w, r, r.PathValue("id"), http.StatusOK, func(s *usecase.WizardSession) (any, error) {
		if !s.RemoveDocumentRow(index) {
			return nil, domain.WrapError(domain.ErrValidation, "remove document row", fmt.Errorf("no row at index %d", index))
		}
		return nil, nil
	})
}

func (rt *Router) submitWizard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !rt.authorizeWizard(w, r, id) {
		return
	}
	result, submitErr := rt.deps.Wizards.Submit(r.Context(), id)

	var view usecase.SessionView
	var notices []domain.Notice
	suppressRedirect := false
	err := rt.deps.Wizards.With(id, func(s *usecase.WizardSession) error {
		view = s.View()
		notices = s.Notices()
		suppressRedirect = s.SuppressLoginRedirect
		return nil
	})
	if submitErr != nil {
		if domain.IsKind(submitErr, domain.ErrUnauthorized) && !suppressRedirect {
			w.Header().Set(loginRedirectHeader, loginPath)
		}
		writeError(w, r, mapErrorToHTTPStatus(submitErr), submitErr, notices)
		return
	}
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, wizardResponse{Wizard: view, Notices: notices, Result: result})
}

// respond runs action under the session lock and answers with the session view and the
// notices emitted so far.
func (rt *Router) respond(w http.ResponseWriter, r *http.Request, id string, status int, action func(*usecase.WizardSession) (any, error)) {
	if !rt.authorizeWizard(w, r, id) {
		return
	}
	var resp wizardResponse
	var actionErr error
	err := rt.deps.Wizards.With(id, func(s *usecase.WizardSession) error {
		resp.Result, actionErr = action(s)
		resp.Wizard = s.View()
		resp.Notices = s.Notices()
		return nil
	})
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	if actionErr != nil {
		writeError(w, r, mapErrorToHTTPStatus(actionErr), actionErr, resp.Notices)
		return
	}
	if resp.Notices == nil {
		resp.Notices = []domain.Notice{}
	}
	writeJSON(w, status, resp)
}

func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request, field string, required bool) (*domain.File, error) {
	limit := int64(rt.cfg.APIMaxUploadMB) << 20
	if limit <= 0 {
		limit = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, domain.WrapError(domain.ErrValidation, "read upload", fmt.Errorf("upload exceeds %d bytes", limit))
		}
		return nil, domain.WrapError(domain.ErrValidation, "read upload", fmt.Errorf("multipart form is required: %w", err))
	}

	src, header, err := r.FormFile(field)
	if err != nil {
		if !required && errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrValidation, "read upload", fmt.Errorf("multipart field '%s' is required", field))
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "read upload", err)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &domain.File{Name: header.Filename, ContentType: contentType, Data: data}, nil
}

// authorizeWizard answers 404 when the session belongs to another user.
func (rt *Router) authorizeWizard(w http.ResponseWriter, r *http.Request, id string) bool {
	if err := rt.deps.Wizards.Authorize(id, rt.owner(r)); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return false
	}
	return true
}

func (rt *Router) owner(r *http.Request) string {
	if rt.deps.Sessions == nil {
		return ""
	}
	auth, err := rt.deps.Sessions.Session(r.Context())
	if err != nil {
		slog.Debug("wizard_owner_unresolved", "request_id", requestIDFromContext(r.Context()), "error", err)
		return ""
	}
	if auth == nil {
		return ""
	}
	return auth.UserID
}

// resolveCity tries the explicit field, then the X-City header, then the request host.
func (rt *Router) resolveCity(r *http.Request, explicit string) string {
	hints := []string{explicit, r.Header.Get(cityHeader), r.Host}
	for _, hint := range hints {
		hint = strings.TrimSpace(hint)
		if hint == "" {
			continue
		}
		if rt.deps.Cities == nil {
			return hint
		}
		if city, ok := rt.deps.Cities.ResolveCity(hint); ok {
			return city
		}
	}
	return ""
}

func (rt *Router) reportActiveWizards() {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.SetActiveWizards(rt.deps.Wizards.Len())
	}
}
