// docs.go — отдача OpenAPI-описания API.
// Контракт встраивается в бинарник и валидируется при старте:
// расхождение схемы обнаруживается до приёма трафика.
package handlers

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiSpec []byte

// DocsHandler — обработчик /api/v1/openapi.json.
type DocsHandler struct {
	jsonBody []byte
}

// NewDocsHandler загружает и валидирует встроенный OpenAPI-контракт.
func NewDocsHandler() (*DocsHandler, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("загрузка OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI контракта: %w", err)
	}

	jsonBody, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI контракта: %w", err)
	}

	return &DocsHandler{jsonBody: jsonBody}, nil
}

// GetOpenAPI — GET /api/v1/openapi.json. Публичный endpoint.
func (h *DocsHandler) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.jsonBody)
}
