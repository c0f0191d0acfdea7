// Package server provides the HTTP API of the video generation service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/job"
)

// CreateGenerationRequest is the HTTP request body for starting a generation.
type CreateGenerationRequest struct {
	// Prompt describes the video; required except for post-processing.
	Prompt string `json:"prompt" validate:"max=5000"`
	// Model selects the provider family.
	Model string `json:"model" validate:"required"`
	// ImageURLs are public frame-conditioning images.
	ImageURLs []string `json:"image_urls" validate:"max=3,dive,required,http_url"`
	// ImagesBase64 are inline images, plain base64 or data URLs. They are
	// uploaded before submission and follow ImageURLs in order.
	ImagesBase64 []string `json:"images_base64" validate:"max=3,dive,required"`
	// VideoURL is the source video for post-processing.
	VideoURL string `json:"video_url" validate:"omitempty,http_url"`
	// AspectRatio is "16:9", "9:16" or "Auto".
	AspectRatio string `json:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16 Auto"`
	// Duration is the clip length in seconds.
	Duration int `json:"duration" validate:"omitempty,oneof=8 10 15"`
	// CallbackURL is passed to the provider.
	CallbackURL string `json:"callback_url" validate:"omitempty,http_url"`
}

// CreateGenerationResponse is the HTTP response after accepting a generation.
type CreateGenerationResponse struct {
	// ID is the unique identifier for the created generation.
	ID string `json:"id"`
	// State is the initial state.
	State string `json:"state"`
}

// GenerationResponse is the HTTP response for a generation record.
type GenerationResponse struct {
	ID          string     `json:"id"`
	Model       string     `json:"model"`
	Prompt      string     `json:"prompt,omitempty"`
	State       string     `json:"state"`
	TaskID      string     `json:"task_id,omitempty"`
	ResultURL   string     `json:"result_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   fault.Kind `json:"error_kind,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListGenerationsResponse is the HTTP response for the caller's generations.
type ListGenerationsResponse struct {
	Generations []GenerationResponse `json:"generations"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func (r CreateGenerationRequest) toRequest() generator.Request {
	return generator.Request{
		Prompt:      r.Prompt,
		Model:       generator.Model(r.Model),
		ImageURLs:   append([]string(nil), r.ImageURLs...),
		VideoURL:    r.VideoURL,
		AspectRatio: generator.AspectRatio(r.AspectRatio),
		Duration:    generator.Duration(r.Duration),
		CallbackURL: r.CallbackURL,
	}
}

func newGenerationResponse(g *job.Generation) GenerationResponse {
	resp := GenerationResponse{
		ID:        g.ID,
		Model:     string(g.Model),
		Prompt:    g.Prompt,
		State:     string(g.State),
		TaskID:    g.TaskID,
		ResultURL: g.ResultURL,
		Error:     g.Error,
		ErrorKind: g.ErrorKind,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	if !g.CompletedAt.IsZero() {
		completed := g.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}
