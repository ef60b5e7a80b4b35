package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/pkg/httputil"
	"github.com/ignite/audience-mailer/internal/service/expand"
	"github.com/ignite/audience-mailer/internal/service/merge"
)

func (h *Handlers) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	g, err := h.admin.CreateGroup(r.Context(), req.Name)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, g)
}

func (h *Handlers) HandleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.admin.ListGroups(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, groups)
}

func (h *Handlers) HandleAddMembers(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	var req struct {
		Members []struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"members"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Members) == 0 {
		httputil.BadRequest(w, "members are required")
		return
	}

	members := make([]domain.AudienceMember, 0, len(req.Members))
	for _, m := range req.Members {
		if m.Email == "" {
			continue
		}
		members = append(members, domain.AudienceMember{Name: m.Name, Email: m.Email})
	}
	added, err := h.admin.InsertMembers(r.Context(), groupID, members)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int64{"added": added})
}

func (h *Handlers) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject == "" || req.Body == "" {
		httputil.BadRequest(w, "subject and body are required")
		return
	}
	t, err := h.admin.CreateTemplate(r.Context(), req.Name, req.Subject, req.Body)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, t)
}

func (h *Handlers) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.admin.ListTemplates(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, templates)
}

func (h *Handlers) HandleExpand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID   string `json:"template_id"`
		GroupID      string `json:"group_id"`
		SkipFreeMail bool   `json:"skip_free_mail"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.TemplateID == "" || req.GroupID == "" {
		httputil.BadRequest(w, "template_id and group_id are required")
		return
	}

	stats, err := h.expander.Expand(r.Context(), req.TemplateID, req.GroupID, req.SkipFreeMail)
	switch {
	case errors.Is(err, expand.ErrTemplateNotFound), errors.Is(err, expand.ErrGroupNotFound):
		httputil.NotFound(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, stats)
	}
}

func (h *Handlers) HandleMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceIDs          []string `json:"source_ids"`
		TargetID           string   `json:"target_id"`
		DeleteEmptySources bool     `json:"delete_empty_sources"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.TargetID == "" {
		httputil.BadRequest(w, "target_id is required")
		return
	}

	stats, err := h.merger.Merge(r.Context(), req.SourceIDs, req.TargetID, req.DeleteEmptySources)
	switch {
	case errors.Is(err, merge.ErrGroupNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, merge.ErrNoSources), errors.Is(err, merge.ErrTargetInSources):
		httputil.BadRequest(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, stats)
	}
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	since := h.now().AddDate(0, 0, -30)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			httputil.BadRequest(w, "since must be YYYY-MM-DD")
			return
		}
		since = parsed
	}
	stats, err := h.admin.Stats(r.Context(), since)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}
