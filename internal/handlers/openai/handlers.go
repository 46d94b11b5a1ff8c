package openai

import (
	"context"

	"ag2api-go/internal/config"
	"ag2api-go/internal/credential"
	"ag2api-go/internal/errors"
	"ag2api-go/internal/streaming"
)

// modelLister captures the subset of the upstream engine used by the
// model-listing endpoint.
type modelLister interface {
	ListModels(ctx context.Context, family credential.Family) ([]byte, *errors.APIError)
}

// Handler aggregates shared dependencies for the OpenAI-compatible endpoints.
type Handler struct {
	cfg    *config.Config
	ctrl   *streaming.Controller
	emu    *streaming.Emulator
	lister modelLister
}

// New constructs the OpenAI-compatible handler set.
func New(cfg *config.Config, ctrl *streaming.Controller, emu *streaming.Emulator, lister modelLister) *Handler {
	return &Handler{cfg: cfg, ctrl: ctrl, emu: emu, lister: lister}
}
