package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

const maxBodyBytes = 8 << 20

type commitRequest struct {
	Entries []ledger.Entry `json:"entries"`
}

type commitResponse struct {
	BatchID    ledger.BatchID `json:"batch_id"`
	EntryCount int            `json:"entry_count"`
}

type recordRequest struct {
	Label     ledger.Label `json:"label"`
	Reasoning string       `json:"reasoning"`
}

type findResponse struct {
	Found bool          `json:"found"`
	Entry *ledger.Entry `json:"entry,omitempty"`
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		badRequest(c, err)
		return nil, false
	}
	return body, true
}

func bindJSON(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}

func (s *Server) commitBatch(c *gin.Context) {
	if err := s.ledger.AuthorizeWrite(c.Request.Context(), caller(c)); err != nil {
		s.writeError(c, err)
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := validateBody(s.schemas.commit, body); err != nil {
		badRequest(c, err)
		return
	}
	var req commitRequest
	if err := bindJSON(body, &req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := s.ledger.CommitBatch(c.Request.Context(), caller(c), access.Principal(c.Param("owner")), req.Entries)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commitResponse{BatchID: b.ID, EntryCount: len(b.Entries)})
}

func (s *Server) userBatchIDs(c *gin.Context) {
	owner := access.Principal(c.Param("owner"))
	ids, err := s.ledger.GetUserBatchIDs(c.Request.Context(), caller(c), owner)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner, "batch_ids": ids})
}

func (s *Server) getBatch(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid batch id %q", c.Param("id")))
		return
	}
	b, err := s.ledger.GetBatch(c.Request.Context(), caller(c), ledger.BatchID(id))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) getRecent(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultRecentLimit)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit = min(limit, maxRecentLimit)

	entries, err := s.ledger.GetRecent(c.Request.Context(), caller(c), access.Principal(c.Param("owner")), offset, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "offset": offset, "limit": limit})
}

func (s *Server) findEntry(c *gin.Context) {
	e, found, err := s.ledger.FindEntry(c.Request.Context(), caller(c), access.Principal(c.Param("owner")), c.Param("emailId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := findResponse{Found: found}
	if found {
		resp.Entry = &e
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) putRecord(c *gin.Context) {
	if err := s.ledger.AuthorizeWrite(c.Request.Context(), caller(c)); err != nil {
		s.writeError(c, err)
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := validateBody(s.schemas.record, body); err != nil {
		badRequest(c, err)
		return
	}
	var req recordRequest
	if err := bindJSON(body, &req); err != nil {
		badRequest(c, err)
		return
	}

	rec, err := s.ledger.PutRecord(c.Request.Context(), caller(c), access.Principal(c.Param("owner")), ledger.Entry{
		EmailID:   c.Param("emailId"),
		Label:     req.Label,
		Reasoning: req.Reasoning,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getRecord(c *gin.Context) {
	rec, err := s.ledger.GetRecord(c.Request.Context(), caller(c), access.Principal(c.Param("owner")), c.Param("emailId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) deleteRecord(c *gin.Context) {
	rec, err := s.ledger.DeleteRecord(c.Request.Context(), caller(c), access.Principal(c.Param("owner")), c.Param("emailId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) hasRole(c *gin.Context) {
	role, err := access.ParseRole(c.Param("role"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	p := access.Principal(c.Param("principal"))
	ok, err := s.access.HasRole(c.Request.Context(), role, p)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role.Name(), "role_id": role.String(), "principal": p, "has_role": ok})
}

func (s *Server) grantRole(c *gin.Context) {
	s.setRole(c, true)
}

func (s *Server) revokeRole(c *gin.Context) {
	s.setRole(c, false)
}

func (s *Server) setRole(c *gin.Context, grant bool) {
	role, err := access.ParseRole(c.Param("role"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	p := access.Principal(c.Param("principal"))
	if grant {
		err = s.access.GrantRole(c.Request.Context(), caller(c), role, p)
	} else {
		err = s.access.RevokeRole(c.Request.Context(), caller(c), role, p)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role.Name(), "role_id": role.String(), "principal": p, "has_role": grant})
}

func (s *Server) collectorStatus(c *gin.Context) {
	ctx := c.Request.Context()
	ok, err := s.access.HasRole(ctx, access.RoleBackend, caller(c))
	if err == nil && !ok {
		ok, err = s.access.IsAdmin(ctx, caller(c))
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !ok {
		s.writeError(c, fmt.Errorf("%w: %s may not read collector status", ledger.ErrUnauthorized, caller(c)))
		return
	}
	if s.reports == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	report, ran := s.reports.LastReport()
	if !ran {
		c.JSON(http.StatusOK, gin.H{"enabled": true, "last_run": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "last_run": report})
}
