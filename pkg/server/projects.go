package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/project"
	"github.com/chazu/stepwise/pkg/repo"
)

type ProjectHandler struct {
	log          *logger.Logger
	projects     repo.ProjectRepo
	shares       *repo.Shares
	maxBodyBytes int64
}

func NewProjectHandler(log *logger.Logger, projects repo.ProjectRepo, shares *repo.Shares, maxBodyBytes int64) *ProjectHandler {
	return &ProjectHandler{
		log:          log.With("handler", "ProjectHandler"),
		projects:     projects,
		shares:       shares,
		maxBodyBytes: maxBodyBytes,
	}
}

type listResponse struct {
	Projects []project.Project `json:"projects"`
}

type shareResponse struct {
	Token string `json:"token"`
}

func (h *ProjectHandler) fail(c *gin.Context, op string, err error) {
	var ae *apiError
	if !errors.Is(err, repo.ErrNotFound) && !errors.As(err, &ae) {
		h.log.Error("request failed", "op", op, "path", c.FullPath(), "error", err)
	}
	respondErr(c, err)
}

func (h *ProjectHandler) bind(c *gin.Context) (project.Project, error) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	var p project.Project
	if err := c.ShouldBindJSON(&p); err != nil {
		return project.Project{}, badRequest(fmt.Errorf("invalid project body: %w", err))
	}
	switch p.Kind {
	case "":
		p.Kind = project.KindBuilder
	case project.KindBuilder, project.KindUpload:
	default:
		return project.Project{}, badRequest(fmt.Errorf("unknown project kind %q", p.Kind))
	}
	if p.Steps == nil {
		p.Steps = []project.Step{}
	}
	if p.Connections == nil {
		p.Connections = []project.Connection{}
	}
	return p, nil
}

// List handles GET /api/projects.
func (h *ProjectHandler) List(c *gin.Context) {
	out, err := h.projects.List(c.Request.Context(), nil, userID(c))
	if err != nil {
		h.fail(c, "list", err)
		return
	}
	RespondOK(c, listResponse{Projects: out})
}

// Get handles GET /api/projects/:id.
func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.projects.Get(c.Request.Context(), nil, userID(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get", err)
		return
	}
	RespondOK(c, p)
}

// Create handles POST /api/projects. The server assigns id and timestamp.
func (h *ProjectHandler) Create(c *gin.Context) {
	p, err := h.bind(c)
	if err != nil {
		h.fail(c, "create", err)
		return
	}
	out, err := h.projects.Create(c.Request.Context(), nil, userID(c), p)
	if err != nil {
		h.fail(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Update handles PUT /api/projects/:id as a full replace.
func (h *ProjectHandler) Update(c *gin.Context) {
	p, err := h.bind(c)
	if err != nil {
		h.fail(c, "update", err)
		return
	}
	p.ID = c.Param("id")
	out, err := h.projects.Update(c.Request.Context(), nil, userID(c), p)
	if err != nil {
		h.fail(c, "update", err)
		return
	}
	RespondOK(c, out)
}

// Delete handles DELETE /api/projects/:id.
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projects.Delete(c.Request.Context(), nil, userID(c), c.Param("id")); err != nil {
		h.fail(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Share handles POST /api/projects/:id/share.
func (h *ProjectHandler) Share(c *gin.Context) {
	token, err := h.shares.Create(c.Request.Context(), nil, userID(c), c.Param("id"))
	if err != nil {
		h.fail(c, "share", err)
		return
	}
	RespondOK(c, shareResponse{Token: token})
}

// Public handles GET /api/public/:token without a session.
func (h *ProjectHandler) Public(c *gin.Context) {
	p, err := h.shares.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, "public", err)
		return
	}
	RespondOK(c, p)
}
