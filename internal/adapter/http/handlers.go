package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Strob0t/CredForge/internal/config"
	"github.com/Strob0t/CredForge/internal/domain"
	"github.com/Strob0t/CredForge/internal/domain/credential"
	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/middleware"
	"github.com/Strob0t/CredForge/internal/service"
)

const headerActorID = "X-Actor-ID"

// ProviderService is the subset of service.ProviderManager the handlers use.
type ProviderService interface {
	GetConfigurations(ctx context.Context, tenantID string, filter provider.Filter) (*provider.Configurations, error)
	GetConfiguration(ctx context.Context, tenantID, providerName string) (*provider.Configuration, error)
	ValidateCustomCredentials(ctx context.Context, cfg *provider.Configuration, incoming credential.Credentials) (credential.Credentials, error)
	AddOrUpdateCustomCredentials(ctx context.Context, cfg *provider.Configuration, incoming credential.Credentials) error
	DeleteCustomCredentials(ctx context.Context, cfg *provider.Configuration) error
	SwitchPreferredProviderType(ctx context.Context, cfg *provider.Configuration, t provider.ProviderType) error
	ValidateCustomModelCredentials(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType, incoming credential.Credentials) (credential.Credentials, error)
	AddOrUpdateCustomModelCredentials(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType, incoming credential.Credentials) error
	DeleteCustomModelCredentials(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType) error
	EnableModel(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType) error
	DisableModel(ctx context.Context, cfg *provider.Configuration, model string, modelType provider.ModelType) error
}

var _ ProviderService = (*service.ProviderManager)(nil)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Providers ProviderService
	Filter    provider.Filter
	Limits    *config.Limits
}

func (h *Handlers) bodyLimit() int64 {
	if h.Limits == nil || h.Limits.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return h.Limits.MaxBodyBytes
}

// requestContext attaches the acting user so audit logs can name them.
func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if actor := r.Header.Get(headerActorID); actor != "" {
		ctx = service.WithActor(ctx, actor)
	}
	return ctx
}

// loadConfiguration resolves the provider named in the URL for the request tenant.
func (h *Handlers) loadConfiguration(w http.ResponseWriter, r *http.Request) (*provider.Configuration, bool) {
	name := urlParam(r, "provider")
	cfg, err := h.Providers.GetConfiguration(requestContext(r), middleware.TenantIDFromContext(r.Context()), name)
	if err != nil {
		writeDomainError(w, r, err, "provider not found")
		return nil, false
	}
	return cfg, true
}

// --- Response shapes ---

type customStatus string

const (
	customStatusActive      customStatus = "active"
	customStatusNoConfigure customStatus = "no-configure"
)

type systemConfigurationResponse struct {
	Enabled             bool                          `json:"enabled"`
	Status              string                        `json:"status,omitempty"`
	CurrentQuotaType    provider.QuotaType            `json:"current_quota_type,omitempty"`
	QuotaConfigurations []provider.QuotaConfiguration `json:"quota_configurations"`
}

type customModelResponse struct {
	Model     string             `json:"model"`
	ModelType provider.ModelType `json:"model_type"`
}

type customConfigurationResponse struct {
	Status customStatus          `json:"status"`
	Models []customModelResponse `json:"models"`
}

type providerResponse struct {
	Provider              string                      `json:"provider"`
	Label                 string                      `json:"label"`
	SupportedModelTypes   []provider.ModelType        `json:"supported_model_types"`
	PreferredProviderType provider.ProviderType       `json:"preferred_provider_type"`
	UsingProviderType     provider.ProviderType       `json:"using_provider_type,omitempty"`
	CustomConfiguration   customConfigurationResponse `json:"custom_configuration"`
	SystemConfiguration   systemConfigurationResponse `json:"system_configuration"`
	ModelSettings         []provider.ModelSettings    `json:"model_settings"`
}

func newProviderResponse(cfg *provider.Configuration) providerResponse {
	resp := providerResponse{
		Provider:              cfg.Provider,
		PreferredProviderType: cfg.PreferredProviderType,
		UsingProviderType:     cfg.UsingProviderType,
		CustomConfiguration: customConfigurationResponse{
			Status: customStatusNoConfigure,
			Models: []customModelResponse{},
		},
		SystemConfiguration: systemConfigurationResponse{
			Enabled:             cfg.SystemConfiguration.Enabled,
			CurrentQuotaType:    cfg.SystemConfiguration.CurrentQuotaType,
			QuotaConfigurations: cfg.SystemConfiguration.QuotaConfigurations,
		},
		ModelSettings: cfg.ModelSettings,
	}
	if cfg.Schema != nil {
		resp.Label = cfg.Schema.Label
		resp.SupportedModelTypes = cfg.Schema.SupportedModelTypes
	}
	if cfg.IsCustomConfigurationAvailable() {
		resp.CustomConfiguration.Status = customStatusActive
	}
	for _, m := range cfg.CustomConfiguration.Models {
		resp.CustomConfiguration.Models = append(resp.CustomConfiguration.Models,
			customModelResponse{Model: m.Model, ModelType: m.ModelType})
	}
	if status, ok := cfg.GetSystemConfigurationStatus(); ok {
		resp.SystemConfiguration.Status = string(status)
	}
	if resp.SystemConfiguration.QuotaConfigurations == nil {
		resp.SystemConfiguration.QuotaConfigurations = []provider.QuotaConfiguration{}
	}
	if resp.ModelSettings == nil {
		resp.ModelSettings = []provider.ModelSettings{}
	}
	return resp
}

type credentialsRequest struct {
	Credentials credential.Credentials `json:"credentials"`
}

type modelRequest struct {
	Model       string                 `json:"model"`
	ModelType   provider.ModelType     `json:"model_type"`
	Credentials credential.Credentials `json:"credentials,omitempty"`
}

type preferredTypeRequest struct {
	PreferredProviderType provider.ProviderType `json:"preferred_provider_type"`
}

type resultResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

var resultSuccess = resultResponse{Result: "success"}

// validationResult reports a credential check outcome. Validation failures are
// a normal answer for this endpoint, everything else is an error.
func validationResult(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resultSuccess)
	case errors.Is(err, domain.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
		writeJSON(w, http.StatusOK, resultResponse{Result: "error", Error: msg})
	default:
		writeDomainError(w, r, err, "provider not found")
	}
}

// --- Provider handlers ---

// ListProviders handles GET /api/v1/workspaces/current/model-providers.
// The include/exclude query parameters narrow the configured default filter.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	filter := h.Filter
	if inc := splitList(r.URL.Query().Get("include")); inc != nil {
		filter.Include = inc
	}
	if exc := splitList(r.URL.Query().Get("exclude")); exc != nil {
		filter.Exclude = append(append([]string(nil), filter.Exclude...), exc...)
	}

	cfgs, err := h.Providers.GetConfigurations(requestContext(r), middleware.TenantIDFromContext(r.Context()), filter)
	if err != nil {
		writeDomainError(w, r, err, "providers not found")
		return
	}
	data := make([]providerResponse, 0, cfgs.Len())
	for _, cfg := range cfgs.Values() {
		data = append(data, newProviderResponse(cfg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// GetProvider handles GET /api/v1/workspaces/current/model-providers/{provider}.
func (h *Handlers) GetProvider(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newProviderResponse(cfg))
}

// GetProviderCredentials handles GET .../{provider}/credentials. Secrets are
// masked.
func (h *Handlers) GetProviderCredentials(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, credentialsRequest{Credentials: cfg.GetCustomCredentials(true)})
}

// ValidateProviderCredentials handles POST .../{provider}/credentials/validate.
func (h *Handlers) ValidateProviderCredentials(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[credentialsRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	_, err := h.Providers.ValidateCustomCredentials(requestContext(r), cfg, req.Credentials)
	validationResult(w, r, err)
}

// SaveProviderCredentials handles POST .../{provider}.
func (h *Handlers) SaveProviderCredentials(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[credentialsRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	if req.Credentials == nil {
		writeError(w, http.StatusBadRequest, "credentials is required")
		return
	}
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	if err := h.Providers.AddOrUpdateCustomCredentials(requestContext(r), cfg, req.Credentials); err != nil {
		writeDomainError(w, r, err, "provider not found")
		return
	}
	writeJSON(w, http.StatusCreated, resultSuccess)
}

// DeleteProviderCredentials handles DELETE .../{provider}.
func (h *Handlers) DeleteProviderCredentials(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	if err := h.Providers.DeleteCustomCredentials(requestContext(r), cfg); err != nil {
		writeDomainError(w, r, err, "provider not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SwitchPreferredProviderType handles POST .../{provider}/preferred-provider-type.
func (h *Handlers) SwitchPreferredProviderType(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[preferredTypeRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}
	if !requireField(w, string(req.PreferredProviderType), "preferred_provider_type") {
		return
	}
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	if err := h.Providers.SwitchPreferredProviderType(requestContext(r), cfg, req.PreferredProviderType); err != nil {
		writeDomainError(w, r, err, "provider not found")
		return
	}
	writeJSON(w, http.StatusOK, resultSuccess)
}

// --- Model handlers ---

// readModelRequest decodes and checks the model identity of a request body.
func (h *Handlers) readModelRequest(w http.ResponseWriter, r *http.Request) (modelRequest, bool) {
	req, ok := readJSON[modelRequest](w, r, h.bodyLimit())
	if !ok {
		return req, false
	}
	if !requireField(w, req.Model, "model") || !requireField(w, string(req.ModelType), "model_type") {
		return req, false
	}
	return req, true
}

// GetModelCredentials handles GET .../{provider}/models/credentials?model=&model_type=.
func (h *Handlers) GetModelCredentials(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	modelType := r.URL.Query().Get("model_type")
	if !requireField(w, model, "model") || !requireField(w, modelType, "model_type") {
		return
	}
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	creds := cfg.GetCustomModelCredentials(model, provider.ModelType(modelType), true)
	writeJSON(w, http.StatusOK, credentialsRequest{Credentials: creds})
}

// ValidateModelCredentials handles POST .../{provider}/models/credentials/validate.
func (h *Handlers) ValidateModelCredentials(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readModelRequest(w, r)
	if !ok {
		return
	}
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	_, err := h.Providers.ValidateCustomModelCredentials(requestContext(r), cfg, req.Model, req.ModelType, req.Credentials)
	validationResult(w, r, err)
}

// SaveModelCredentials handles POST .../{provider}/models.
func (h *Handlers) SaveModelCredentials(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readModelRequest(w, r)
	if !ok {
		return
	}
	if req.Credentials == nil {
		writeError(w, http.StatusBadRequest, "credentials is required")
		return
	}
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	if err := h.Providers.AddOrUpdateCustomModelCredentials(requestContext(r), cfg, req.Model, req.ModelType, req.Credentials); err != nil {
		writeDomainError(w, r, err, "provider not found")
		return
	}
	writeJSON(w, http.StatusCreated, resultSuccess)
}

// DeleteModelCredentials handles DELETE .../{provider}/models.
func (h *Handlers) DeleteModelCredentials(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readModelRequest(w, r)
	if !ok {
		return
	}
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	if err := h.Providers.DeleteCustomModelCredentials(requestContext(r), cfg, req.Model, req.ModelType); err != nil {
		writeDomainError(w, r, err, "model credentials not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnableModel handles PATCH .../{provider}/models/enable.
func (h *Handlers) EnableModel(w http.ResponseWriter, r *http.Request) {
	h.toggleModel(w, r, h.Providers.EnableModel)
}

// DisableModel handles PATCH .../{provider}/models/disable.
func (h *Handlers) DisableModel(w http.ResponseWriter, r *http.Request) {
	h.toggleModel(w, r, h.Providers.DisableModel)
}

func (h *Handlers) toggleModel(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, *provider.Configuration, string, provider.ModelType) error,
) {
	req, ok := h.readModelRequest(w, r)
	if !ok {
		return
	}
	cfg, ok := h.loadConfiguration(w, r)
	if !ok {
		return
	}
	if err := fn(requestContext(r), cfg, req.Model, req.ModelType); err != nil {
		writeDomainError(w, r, err, "provider not found")
		return
	}
	writeJSON(w, http.StatusOK, resultSuccess)
}
