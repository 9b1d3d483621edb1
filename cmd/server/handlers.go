package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal/schematree"
)

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", err.Error())
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEndpoint handles GET /api/{slug}
func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	resp, err := s.endpoints.Serve(r.Context(), &customapi.EndpointRequest{
		Slug:     chi.URLParam(r, "slug"),
		RawQuery: r.URL.RawQuery,
		BaseURL:  requestBaseURL(r, s.baseURL),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(resp.Warnings) > 0 && s.warningsHeader != "" {
		w.Header().Set(s.warningsHeader, warningMessages(resp.Warnings))
	}
	writeSuccess(w, http.StatusOK, resp)
}

// handleEndpointDocs handles GET /api/{slug}/docs
func (s *Server) handleEndpointDocs(w http.ResponseWriter, r *http.Request) {
	docs, err := s.endpoints.Docs(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, docs)
}

func (s *Server) handleListContentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.registry.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, types)
}

func (s *Server) handleGetContentType(w http.ResponseWriter, r *http.Request) {
	ct, err := s.registry.Describe(r.Context(), uidParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, ct)
}

func (s *Server) handleBuildTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.builder.Build(r.Context(), uidParam(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, tree)
}

type toggleItemRequest struct {
	Structure *customapi.SchemaNode `json:"structure"`
	Table     string                `json:"table"`
	Item      string                `json:"item"`
	Category  customapi.Category    `json:"category"`
	Strict    bool                  `json:"strict"`
}

// handleToggleItem handles POST /admin/custom-api/tree/toggle-item. The
// lenient form returns the tree unchanged for unknown targets.
func (s *Server) handleToggleItem(w http.ResponseWriter, r *http.Request) {
	var req toggleItemRequest
	if err := readJSONBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Structure == nil {
		writeServiceError(w, r, customapi.NewValidationError("structure is required").WithField("structure"))
		return
	}

	if !req.Strict {
		writeSuccess(w, http.StatusOK, schematree.ToggleItem(req.Structure, req.Table, req.Item, req.Category))
		return
	}
	tree, err := schematree.ToggleItemStrict(req.Structure, req.Table, req.Item, req.Category)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, tree)
}

type toggleCategoryRequest struct {
	Structure *customapi.SchemaNode `json:"structure"`
	Table     string                `json:"table"`
	Category  customapi.Category    `json:"category"`
	Selected  bool                  `json:"selected"`
	Strict    bool                  `json:"strict"`
}

func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	var req toggleCategoryRequest
	if err := readJSONBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Structure == nil {
		writeServiceError(w, r, customapi.NewValidationError("structure is required").WithField("structure"))
		return
	}

	if !req.Strict {
		writeSuccess(w, http.StatusOK, schematree.ToggleCategory(req.Structure, req.Table, req.Category, req.Selected))
		return
	}
	tree, err := schematree.ToggleCategoryStrict(req.Structure, req.Table, req.Category, req.Selected)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, tree)
}

type compileResponse struct {
	Projection *customapi.QueryProjection `json:"projection"`
	Fields     []string                   `json:"fields"`
}

// handleCompile handles POST /admin/custom-api/tree/compile
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Structure *customapi.SchemaNode `json:"structure"`
	}
	if err := readJSONBody(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Structure == nil {
		writeServiceError(w, r, customapi.NewValidationError("structure is required").WithField("structure"))
		return
	}
	writeSuccess(w, http.StatusOK, compileResponse{
		Projection: schematree.Compile(req.Structure),
		Fields:     schematree.SelectedFields(req.Structure),
	})
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	var opts customapi.ListOptions
	if err := s.decodeQuery(r, &opts); err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := s.manager.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, list)
}

func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var input customapi.DefinitionInput
	if err := readJSONBody(r, &input); err != nil {
		writeServiceError(w, r, err)
		return
	}
	def, err := s.manager.Create(r.Context(), &input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, def)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	def, err := s.manager.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, def)
}

func (s *Server) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var input customapi.DefinitionInput
	if err := readJSONBody(r, &input); err != nil {
		writeServiceError(w, r, err)
		return
	}
	def, err := s.manager.Update(r.Context(), id, &input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, def)
}

func (s *Server) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.manager.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidateDefinition(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := s.manager.ValidateStructure(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

type cleanParams struct {
	Persist bool `schema:"persist"`
}

// handleCleanDefinition handles POST /admin/custom-api/definitions/{id}/clean.
// The cleaned tree is only saved with ?persist=true.
func (s *Server) handleCleanDefinition(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var params cleanParams
	if err := s.decodeQuery(r, &params); err != nil {
		writeServiceError(w, r, err)
		return
	}
	def, err := s.manager.CleanStructure(r.Context(), id, params.Persist)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, def)
}

type slugParams struct {
	Slug      string    `schema:"slug"`
	Name      string    `schema:"name"`
	ExcludeID uuid.UUID `schema:"excludeId"`
}

func (s *Server) handleCheckSlug(w http.ResponseWriter, r *http.Request) {
	var params slugParams
	if err := s.decodeQuery(r, &params); err != nil {
		writeServiceError(w, r, err)
		return
	}
	check, err := s.manager.CheckSlug(r.Context(), params.Slug, optionalID(params.ExcludeID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, check)
}

func (s *Server) handleGenerateSlug(w http.ResponseWriter, r *http.Request) {
	var params slugParams
	if err := s.decodeQuery(r, &params); err != nil {
		writeServiceError(w, r, err)
		return
	}
	slug, err := s.manager.SuggestSlug(r.Context(), params.Name, optionalID(params.ExcludeID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"slug": slug})
}
