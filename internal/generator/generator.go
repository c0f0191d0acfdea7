// Package generator holds the provider-agnostic generation model: the request,
// the canonical lifecycle states, the per-family request builders, the router
// that picks a family for a request, and the normalizers that turn raw
// provider status records into canonical observations.
package generator

import (
	"net/url"
	"strings"
)

// Model is the generation model declared by a request.
type Model string

// Supported models.
const (
	// ModelVeo3 and ModelVeo3Fast are frame-conditioned video models (family A).
	ModelVeo3     Model = "veo3"
	ModelVeo3Fast Model = "veo3_fast"
	// ModelSora2 is the clip synthesis model (family B).
	ModelSora2 Model = "sora-2"
	// ModelWatermarkRemover is the post-processing model (family C).
	ModelWatermarkRemover Model = "sora-watermark-remover"
)

// Family is a provider family with its own request and status shapes.
type Family string

// Provider families.
const (
	FamilyFrames      Family = "frames"       // frame-conditioned text/image video
	FamilyClips       Family = "clips"        // text-only or image-conditioned clip synthesis
	FamilyPostProcess Family = "post_process" // watermark removal
)

// Family returns the provider family of the model, or "" if the model is unknown.
func (m Model) Family() Family {
	switch m {
	case ModelVeo3, ModelVeo3Fast:
		return FamilyFrames
	case ModelSora2:
		return FamilyClips
	case ModelWatermarkRemover:
		return FamilyPostProcess
	default:
		return ""
	}
}

// AspectRatio is the requested output aspect ratio.
type AspectRatio string

// Aspect ratios.
const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectAuto      AspectRatio = "Auto"
)

// Duration is the requested clip length in seconds. Zero means unspecified.
type Duration int

// Durations accepted by the providers.
const (
	// DurationFrames is the fixed length of frame-conditioned clips. Clip
	// synthesis treats it as unspecified.
	DurationFrames Duration = 8
	Duration10     Duration = 10
	Duration15     Duration = 15
)

// State is the canonical, provider-agnostic lifecycle state.
type State string

// Canonical states. Idle and Submitting precede the existence of a provider task.
const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateQueueing   State = "queueing"
	StateGenerating State = "generating"
	StateSuccess    State = "success"
	StateFail       State = "fail"
)

// IsTerminal returns true if the state is final.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFail
}

// Request is the canonical generation input.
type Request struct {
	// Prompt is required and must not be blank, except for post-processing.
	Prompt string
	// Model selects the provider family.
	Model Model
	// ImageURLs are frame-conditioning images, in order. Entries may be
	// public http(s) URLs or local file references awaiting upload.
	ImageURLs []string
	// VideoURL is the source video; required for post-processing only.
	VideoURL string
	// AspectRatio defaults per family when empty.
	AspectRatio AspectRatio
	// Duration defaults per family when zero.
	Duration Duration
	// CallbackURL is passed to the provider when set.
	CallbackURL string
}

// IsPublicURL reports whether s is a syntactically valid absolute http(s) URL.
func IsPublicURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
