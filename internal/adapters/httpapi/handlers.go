package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"herdbook/internal/ai"
	"herdbook/internal/core"
	"herdbook/internal/enrollment"
	"herdbook/internal/photos"
	"herdbook/internal/projection"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies; enrollment carries base64 photos.
const maxBodyBytes = 32 << 20

type createUserRequest struct {
	Name    string `json:"name" validate:"required"`
	Role    string `json:"role" validate:"required,oneof=FARMER BUTCHERY AUTHORITY MARKET_AGENT"`
	Phone   string `json:"phone" validate:"omitempty,max=20"`
	County  string `json:"county" validate:"required"`
	Village string `json:"village"`
}

type enrollRequest struct {
	OwnerID      string   `json:"owner_id" validate:"required"`
	Species      string   `json:"species" validate:"required"`
	SerialNumber string   `json:"serial_number"`
	Description  string   `json:"description"`
	Photos       []string `json:"photos" validate:"required,min=1,dive,required"`
}

type reportStolenRequest struct {
	ReporterID string `json:"reporter_id" validate:"required"`
}

type initiateTransferRequest struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id" validate:"required"`
}

type butcheryTransferRequest struct {
	FromButcheryID string  `json:"from_butchery_id" validate:"required"`
	ToButcheryID   string  `json:"to_butchery_id" validate:"required"`
	Weight         float64 `json:"weight" validate:"gt=0"`
}

type slaughterRequest struct {
	AnimalID   string  `json:"animal_id" validate:"required"`
	ButcheryID string  `json:"butchery_id" validate:"required"`
	LiveWeight float64 `json:"live_weight" validate:"gte=0"`
	DeadWeight float64 `json:"dead_weight" validate:"gte=0"`
	MeatSold   float64 `json:"meat_sold" validate:"gte=0"`
}

type enrollResponse struct {
	Animal     core.Animal   `json:"animal"`
	Validation ai.Validation `json:"validation"`
	Photos     []photos.Info `json:"photos"`
	Result     core.Result   `json:"result"`
}

type riskResponse struct {
	County     string `json:"county"`
	OpenThefts int    `json:"open_thefts"`
	Level      string `json:"level"`
	Assessment string `json:"assessment"`
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeValidationError(w, err)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, res, err := s.engine.RegisterUser(r.Context(), core.User{
		Name:    req.Name,
		Role:    core.Role(req.Role),
		Phone:   req.Phone,
		County:  req.County,
		Village: req.Village,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "result": res})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := core.Role(strings.ToUpper(r.URL.Query().Get("role")))
	users := s.engine.ListUsers()
	out := make([]core.User, 0, len(users))
	for _, u := range users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, ok := s.engine.GetUser(id)
	if !ok {
		s.writeEngineError(w, r, notFound(core.EntityUser, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := projection.ForUser(r.Context(), s.engine, chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	if s.enroller == nil {
		writeError(w, http.StatusServiceUnavailable, "enrollment not configured")
		return
	}
	var req enrollRequest
	if !s.decode(w, r, &req) {
		return
	}
	images := make([]enrollment.Photo, 0, len(req.Photos))
	for i, encoded := range req.Photos {
		data, err := photos.DecodeInline(encoded)
		if err != nil {
			s.writeEngineError(w, r, fmt.Errorf("photo %d: %w", i, err))
			return
		}
		images = append(images, enrollment.Photo{Data: data})
	}
	res, err := s.enroller.Enroll(r.Context(), enrollment.Request{
		OwnerID:      req.OwnerID,
		Species:      req.Species,
		SerialNumber: req.SerialNumber,
		Description:  req.Description,
		Photos:       images,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, enrollResponse{
		Animal:     res.Animal,
		Validation: res.Validation,
		Photos:     res.PhotoInfo,
		Result:     res.Rules,
	})
}

func (s *Server) handleListAnimals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if serial := q.Get("serial"); serial != "" {
		animal, ok := s.engine.FindAnimalBySerial(r.Context(), serial)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"animals": []core.Animal{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"animals": []core.Animal{animal}})
		return
	}
	owner := q.Get("owner")
	status := core.AnimalStatus(strings.ToUpper(q.Get("status")))
	animals := s.engine.ListAnimals()
	out := make([]core.Animal, 0, len(animals))
	for _, a := range animals {
		if owner != "" && a.OwnerID != owner {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"animals": out})
}

func (s *Server) handleGetAnimal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	animal, ok := s.engine.GetAnimal(id)
	if !ok {
		s.writeEngineError(w, r, notFound(core.EntityAnimal, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"animal": animal})
}

func (s *Server) handleReportStolen(w http.ResponseWriter, r *http.Request) {
	var req reportStolenRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.engine.ReportStolen(r.Context(), chi.URLParam(r, "id"), req.ReporterID)
	s.writeOutcome(w, r, http.StatusOK, out, err)
}

// handleTransition serves operations whose only input is the path id.
func (s *Server) handleTransition(op func(context.Context, string) (core.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := op(r.Context(), chi.URLParam(r, "id"))
		s.writeOutcome(w, r, http.StatusOK, out, err)
	}
}

func (s *Server) handleInitiateTransfer(w http.ResponseWriter, r *http.Request) {
	var req initiateTransferRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.engine.InitiateTransfer(r.Context(), chi.URLParam(r, "id"), req.FromUserID, req.ToUserID)
	s.writeOutcome(w, r, http.StatusCreated, out, err)
}

func (s *Server) handleButcheryTransfer(w http.ResponseWriter, r *http.Request) {
	var req butcheryTransferRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.engine.TransferToButchery(r.Context(), chi.URLParam(r, "id"), req.FromButcheryID, req.ToButcheryID, req.Weight)
	s.writeOutcome(w, r, http.StatusOK, out, err)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := strings.ToUpper(q.Get("status"))
	user := q.Get("user")
	requests := s.engine.ListTransferRequests()
	out := make([]core.TransferRequest, 0, len(requests))
	for _, req := range requests {
		if status != "" && string(req.Status) != status {
			continue
		}
		if user != "" && req.FromUserID != user && req.ToUserID != user {
			continue
		}
		out = append(out, req)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": out})
}

func (s *Server) handleLogSlaughter(w http.ResponseWriter, r *http.Request) {
	var req slaughterRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.engine.LogSlaughter(r.Context(), core.ButcheryRecord{
		AnimalID:   req.AnimalID,
		ButcheryID: req.ButcheryID,
		LiveWeight: req.LiveWeight,
		DeadWeight: req.DeadWeight,
		MeatSold:   req.MeatSold,
	})
	s.writeOutcome(w, r, http.StatusCreated, out, err)
}

func (s *Server) handleListSlaughterRecords(w http.ResponseWriter, r *http.Request) {
	butchery := r.URL.Query().Get("butchery")
	records := s.engine.ListButcheryRecords()
	out := make([]core.ButcheryRecord, 0, len(records))
	for _, rec := range records {
		if butchery == "" || rec.ButcheryID == butchery {
			out = append(out, rec)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alerts": s.engine.ListAlerts(r.URL.Query().Get("scope"))})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	county := chi.URLParam(r, "county")
	thefts := projection.OpenTheftReports(s.engine.ListAlerts(county), county)
	resp := riskResponse{County: county, OpenThefts: thefts, Level: ai.RiskLevel(thefts)}
	if s.risk != nil {
		resp.Assessment = s.risk.AssessRisk(r.Context(), thefts, county)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, status int, out core.Outcome, err error) {
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, status, out)
}
