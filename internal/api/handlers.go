package api

import (
	"net/http"

	"github.com/sealbox/sealbox/pkg/schema"
)

func (s *Server) handleSaveSecret(w http.ResponseWriter, r *http.Request) {
	var rec schema.SecretRecord
	if err := decodeBody(r, &rec); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Vault.Save(r.Context(), &rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": rec.ID})
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	metas, err := s.deps.Vault.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"secrets": metas})
}

func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Vault.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"secret": rec})
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Vault.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type exportRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleExportVault(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	bundle, err := s.deps.Vault.Export(r.Context(), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bundle": bundle})
}

type importRequest struct {
	Bundle   *schema.ExportBundle `json:"bundle"`
	Password string               `json:"password"`
}

func (s *Server) handleImportVault(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	n, err := s.deps.Vault.Import(r.Context(), req.Bundle, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "imported": n})
}

type startOAuthRequest struct {
	AuthURL  string   `json:"auth_url"`
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
	UsePKCE  bool     `json:"use_pkce"`
}

func (s *Server) handleStartOAuth(w http.ResponseWriter, r *http.Request) {
	var req startOAuthRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	flow, err := s.deps.Coordinator.StartFlow(r.Context(), req.AuthURL, req.ClientID, req.Scopes, req.UsePKCE)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) handlePollOAuth(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Coordinator.PollResult(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type submitJobRequest struct {
	ServiceName string         `json:"service_name"`
	ActionName  string         `json:"action_name"`
	Params      map[string]any `json:"params"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	jobID, err := s.deps.Scheduler.Submit(r.Context(), req.ServiceName, req.ActionName, req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID})
}

func (s *Server) handlePollJob(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Scheduler.PollStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
