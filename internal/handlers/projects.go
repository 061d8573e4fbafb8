package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/studex/apiserver/internal/services"
	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

const (
	maxMultipartMemory = 32 << 20
	maxUploadBytes     = 200 << 20
	formFieldFiles     = "files"
)

// ProjectHandler serves the catalog and listing management endpoints.
type ProjectHandler struct {
	catalog  *services.CatalogService
	listings *services.ListingService
	Responder
}

func NewProjectHandler(catalog *services.CatalogService, listings *services.ListingService, rs Responder) *ProjectHandler {
	return &ProjectHandler{catalog: catalog, listings: listings, Responder: rs}
}

// ProjectRouter registers listing routes on the given router.
func ProjectRouter(r chi.Router, h *ProjectHandler, auth *Authenticator) {
	r.With(auth.OptionalAuth).Get("/explore", h.Explore)
	r.Get("/featured", h.Featured)
	r.Get("/recent", h.Recent)
	r.Get("/categories", h.Categories)
	r.Get("/types", h.Types)
	r.With(auth.RequireAuth).Get("/mine", h.Mine)
	r.With(auth.RequireAuth).Post("/", h.Create)

	r.Route("/{projectID}", func(r chi.Router) {
		r.With(auth.OptionalAuth).Get("/", h.Get)
		r.With(auth.RequireAuth).Get("/download", h.Download)
		r.With(auth.RequireAuth, RequireAdmin).Put("/status", h.UpdateStatus)
		r.With(auth.RequireAuth).Put("/files/{fileID}/main", h.SetMainImage)
	})
}

// Explore answers the filtered, sorted and paginated catalog query.
func (h *ProjectHandler) Explore(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := r.URL.Query()
	filter := store.CatalogFilter{
		Search:     query.Get("search"),
		Type:       types.ProjectType(strings.ToUpper(strings.TrimSpace(query.Get("type")))),
		University: query.Get("university"),
		Subject:    query.Get("subject"),
		Sort:       strings.TrimSpace(query.Get("sortBy")),
		Offset:     offset,
		Limit:      limit,
	}
	if filter.CategoryID, err = parseOptionalInt(query.Get("category")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}
	if filter.MinPrice, err = parseOptionalFloat(query.Get("minPrice")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid minPrice")
		return
	}
	if filter.MaxPrice, err = parseOptionalFloat(query.Get("maxPrice")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid maxPrice")
		return
	}

	viewerID := 0
	if user, ok := userFromContext(r.Context()); ok {
		viewerID = user.ID
	}

	projects, stats, err := h.catalog.Explore(r.Context(), viewerID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Success:    true,
		Data:       projects,
		Pagination: newPagination(page, limit, stats.Total),
		Stats:      stats,
	})
}

func (h *ProjectHandler) Featured(w http.ResponseWriter, r *http.Request) {
	projects, err := h.catalog.Featured(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, projects)
}

func (h *ProjectHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	projects, err := h.catalog.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, projects)
}

func (h *ProjectHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, categories)
}

func (h *ProjectHandler) Types(w http.ResponseWriter, r *http.Request) {
	counts, err := h.catalog.Types(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, counts)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var viewer *types.User
	if user, ok := userFromContext(r.Context()); ok {
		viewer = &user
	}
	project, err := h.catalog.Get(r.Context(), viewer, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, project)
}

func (h *ProjectHandler) Mine(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	projects, err := h.listings.Mine(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, projects)
}

// Create accepts a multipart listing with its files.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	draft, err := parseListingDraft(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	headers := r.MultipartForm.File[formFieldFiles]
	uploads := make([]services.Upload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read uploaded file")
			return
		}
		defer file.Close()
		uploads = append(uploads, services.Upload{
			FileName:    header.Filename,
			ContentType: uploadContentType(header),
			Size:        header.Size,
			Content:     file,
		})
	}

	project, err := h.listings.Create(r.Context(), user.ID, draft, uploads)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{
		Success: true,
		Data:    project,
		Message: "project submitted for review",
	})
}

func parseListingDraft(r *http.Request) (services.ListingDraft, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
	if err != nil {
		return services.ListingDraft{}, errors.New("invalid price")
	}
	categoryID, err := strconv.Atoi(strings.TrimSpace(r.FormValue("categoryId")))
	if err != nil {
		return services.ListingDraft{}, errors.New("invalid categoryId")
	}
	return services.ListingDraft{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Price:       price,
		Type:        types.ProjectType(strings.ToUpper(strings.TrimSpace(r.FormValue("type")))),
		CategoryID:  categoryID,
		University:  r.FormValue("university"),
		Subject:     r.FormValue("subject"),
		Tags:        parseTags(r.FormValue("tags")),
	}, nil
}

func uploadContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *ProjectHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := types.ProjectStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	project, err := h.listings.UpdateStatus(r.Context(), id, status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, project)
}

func (h *ProjectHandler) SetMainImage(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fileID, err := parseIDParam(r, "fileID", "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, _ := userFromContext(r.Context())
	if err := h.listings.SetMainImage(r.Context(), user, projectID, fileID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "main image updated")
}

func (h *ProjectHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "projectID", "project")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, _ := userFromContext(r.Context())
	files, err := h.listings.Download(r.Context(), user, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, files)
}
