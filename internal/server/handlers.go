package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lu-zhengda/mailsweep/internal/decide"
	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/lists"
	"github.com/lu-zhengda/mailsweep/internal/rules"
)

type decideRequest struct {
	Email         domain.EmailRecord `json:"email"`
	MinConfidence *float64           `json:"minConfidence,omitempty"`
}

// handleDecide returns the decision for one email against the stored lists and rules.
// POST /api/decide
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) error {
	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	svc, err := lists.Load(r.Context(), s.store)
	if err != nil {
		return err
	}
	rs, err := s.store.ListRules(r.Context())
	if err != nil {
		return err
	}

	in := decide.Input{
		Lists:                  svc,
		Rules:                  rs,
		MinConfidence:          s.opts.MinConfidence,
		RulesOverrideAllowList: s.opts.RulesOverrideAllowList,
	}
	if req.MinConfidence != nil {
		in.MinConfidence = *req.MinConfidence
	}

	d := s.engine.Decide(req.Email, in)
	respondJSON(w, http.StatusOK, decisionResponse{Decision: d, Status: d.Status()})
	return nil
}

type decisionResponse struct {
	decide.Decision
	Status decide.Status `json:"status"`
}

// handleScore returns the junk score of one email.
// POST /api/score
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) error {
	var rec domain.EmailRecord
	if err := decodeJSON(r, &rec); err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, s.scorer.Score(rec))
	return nil
}

func listKind(r *http.Request) (lists.Kind, error) {
	kind, err := lists.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", errNotFound(err.Error())
	}
	return kind, nil
}

// GET /api/lists/{kind}
func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) error {
	kind, err := listKind(r)
	if err != nil {
		return err
	}
	patterns, err := s.store.ListEntries(r.Context(), kind)
	if err != nil {
		return err
	}
	if patterns == nil {
		patterns = []string{}
	}
	respondJSON(w, http.StatusOK, patterns)
	return nil
}

type listEntryRequest struct {
	Pattern string `json:"pattern"`
}

// POST /api/lists/{kind}
func (s *Server) handleAddListEntry(w http.ResponseWriter, r *http.Request) error {
	kind, err := listKind(r)
	if err != nil {
		return err
	}
	var req listEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	pattern := strings.TrimSpace(req.Pattern)
	if pattern == "" {
		return errBadRequest("pattern is required")
	}

	added, err := s.store.AddListEntry(r.Context(), kind, pattern)
	if err != nil {
		return err
	}
	if !added {
		return errConflict(fmt.Sprintf("%q is already on the %s list", pattern, kind))
	}
	s.log.Info("list entry added", "list", kind, "pattern", pattern)
	respondJSON(w, http.StatusCreated, listEntryRequest{Pattern: pattern})
	return nil
}

// DELETE /api/lists/{kind}?pattern=...
func (s *Server) handleRemoveListEntry(w http.ResponseWriter, r *http.Request) error {
	kind, err := listKind(r)
	if err != nil {
		return err
	}
	pattern := strings.TrimSpace(r.URL.Query().Get("pattern"))
	if pattern == "" {
		return errBadRequest("pattern query parameter is required")
	}

	removed, err := s.store.RemoveListEntry(r.Context(), kind, pattern)
	if err != nil {
		return err
	}
	if !removed {
		return errNotFound(fmt.Sprintf("%q is not on the %s list", pattern, kind))
	}
	s.log.Info("list entry removed", "list", kind, "pattern", pattern)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /api/rules
func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) error {
	rs, err := s.store.ListRules(r.Context())
	if err != nil {
		return err
	}
	if rs == nil {
		rs = []rules.FilterRule{}
	}
	respondJSON(w, http.StatusOK, rs)
	return nil
}

// handleSaveRule creates a rule, or replaces the rule with the same ID.
// POST /api/rules
func (s *Server) handleSaveRule(w http.ResponseWriter, r *http.Request) error {
	var rule rules.FilterRule
	if err := decodeJSON(r, &rule); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if err := rules.Validate(rule); err != nil {
		return errBadRequestWrap("invalid rule", err)
	}
	if err := s.store.SaveRule(r.Context(), &rule); err != nil {
		return err
	}
	s.log.Info("rule saved", "id", rule.ID, "name", rule.Name)
	respondJSON(w, http.StatusCreated, rule)
	return nil
}

// DELETE /api/rules/{id}
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteRule(r.Context(), id); err != nil {
		return err
	}
	s.log.Info("rule deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type statsResponse struct {
	AccountID    string `json:"accountId"`
	Processed    int    `json:"processed"`
	Unsubscribed int    `json:"unsubscribed"`
	Deleted      int    `json:"deleted"`
}

// GET /api/stats?account=...
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) error {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		accountID = s.opts.AccountID
	}
	st, err := s.store.GetStats(r.Context(), accountID)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, statsResponse{
		AccountID:    accountID,
		Processed:    st.Processed,
		Unsubscribed: st.Unsubscribed,
		Deleted:      st.Deleted,
	})
	return nil
}
