package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/authz"
	"github.com/takaful/backoffice-api/internal/certificate"
	"github.com/takaful/backoffice-api/internal/models"
)

type CertificateHandler struct {
	service certificate.Service
	logger  zerolog.Logger
}

func NewCertificateHandler(service certificate.Service, logger zerolog.Logger) *CertificateHandler {
	return &CertificateHandler{
		service: service,
		logger:  logger.With().Str("handler", "certificate").Logger(),
	}
}

func (h *CertificateHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	var req certificate.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cert, err := h.service.Submit(r.Context(), user, req)
	if err != nil {
		writeError(w, h.logger, err, "Failed to submit certificate request")
		return
	}
	writeJSON(w, http.StatusCreated, cert)
}

func (h *CertificateHandler) Approve(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	certID, ok := h.certificateID(w, r)
	if !ok {
		return
	}

	cert, err := h.service.Approve(r.Context(), certID, user)
	if err != nil {
		writeError(w, h.logger, err, "Failed to approve certificate")
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (h *CertificateHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	certID, ok := h.certificateID(w, r)
	if !ok {
		return
	}

	cert, err := h.service.Get(r.Context(), certID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to load certificate")
		return
	}
	if !canView(user, cert) {
		http.Error(w, "Certificate not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (h *CertificateHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	certs, err := h.service.ListMine(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list certificates")
		return
	}
	if certs == nil {
		certs = []models.Certificate{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"certificates": certs,
	})
}

func (h *CertificateHandler) HasActive(w http.ResponseWriter, r *http.Request) {
	user, ok := authz.UserFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	active, err := h.service.HasActive(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to check active certificate")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (h *CertificateHandler) certificateID(w http.ResponseWriter, r *http.Request) (string, bool) {
	certID := strings.TrimSpace(mux.Vars(r)["certificateID"])
	if certID == "" {
		http.Error(w, "Certificate ID is required", http.StatusBadRequest)
		return "", false
	}
	if !validID(certID) {
		http.Error(w, "Certificate not found", http.StatusNotFound)
		return "", false
	}
	return certID, true
}

// canView hides other members' requests from plain members.
func canView(user models.User, cert models.Certificate) bool {
	if user.ID == cert.UserID || user.ID == cert.OfficerID || cert.HasApprover(user.ID) {
		return true
	}
	switch user.Status {
	case models.UserStatusAdmin, models.UserStatusSuperAdmin, models.UserStatusOfficeMember:
		return true
	}
	return false
}
