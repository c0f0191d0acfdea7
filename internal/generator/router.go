package generator

import (
	"strings"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/kie"
)

const opRoute = "generator.route"

// Plan is the routing decision for one request: the family, the API that
// serves it, and the normalizer for that API's status shape. It is computed
// once, before any network call, and threaded through the pipeline.
type Plan struct {
	Request   Request
	Family    Family
	API       kie.API
	Normalize Normalizer
	build     func(Request, []string) (kie.Payload, error)
}

// Payload builds the provider payload using the resolved public image URLs.
func (p Plan) Payload(images []string) (kie.Payload, error) {
	if p.build == nil {
		return nil, fault.New(fault.KindRequest, opBuild, "plan has no builder")
	}
	return p.build(p.Request, images)
}

// NeedsUpload reports whether any image still has to be turned into a public URL.
func (p Plan) NeedsUpload() bool {
	for _, u := range p.Request.ImageURLs {
		if !IsPublicURL(u) {
			return true
		}
	}
	return false
}

// Router selects the provider family and request shape for a request.
type Router struct {
	callbackURL string
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDefaultCallbackURL sets the callback URL used when a request has none.
func WithDefaultCallbackURL(u string) RouterOption {
	return func(r *Router) {
		r.callbackURL = u
	}
}

// NewRouter creates a Router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route validates the request and returns its plan. It never performs I/O;
// every failure is a fault.KindRequest error.
func (r *Router) Route(req Request) (Plan, error) {
	family := req.Model.Family()
	if family == "" {
		if req.Model == "" {
			return Plan{}, fault.New(fault.KindRequest, opRoute, "model is required")
		}
		return Plan{}, fault.Errorf(fault.KindRequest, opRoute, "unsupported model %q", req.Model)
	}

	if req.CallbackURL == "" {
		req.CallbackURL = r.callbackURL
	}
	if req.CallbackURL != "" && !IsPublicURL(req.CallbackURL) {
		return Plan{}, fault.Errorf(fault.KindRequest, opRoute, "callback URL %q is not an absolute http(s) URL", req.CallbackURL)
	}
	if err := validateAspectRatio(req.AspectRatio); err != nil {
		return Plan{}, err
	}

	switch family {
	case FamilyPostProcess:
		if req.VideoURL == "" {
			return Plan{}, fault.New(fault.KindRequest, opRoute, "post-processing requires a video URL")
		}
		if !IsPublicURL(req.VideoURL) {
			return Plan{}, fault.Errorf(fault.KindRequest, opRoute, "video URL %q is not an absolute http(s) URL", req.VideoURL)
		}
		if len(req.ImageURLs) > 0 {
			return Plan{}, fault.New(fault.KindRequest, opRoute, "post-processing does not accept images")
		}
		return r.plan(req, family, kie.APIJobs, func(rq Request, images []string) (kie.Payload, error) {
			return BuildPostProcess(rq, images)
		}), nil

	case FamilyFrames:
		if err := validateGenerative(req, maxFrameImages); err != nil {
			return Plan{}, err
		}
		if req.Duration != 0 && req.Duration != DurationFrames {
			return Plan{}, fault.Errorf(fault.KindRequest, opRoute, "model %s only produces %ds clips", req.Model, DurationFrames)
		}
		return r.plan(req, family, kie.APIFrames, func(rq Request, images []string) (kie.Payload, error) {
			return BuildFrames(rq, images)
		}), nil

	default:
		if err := validateGenerative(req, maxClipImages); err != nil {
			return Plan{}, err
		}
		switch req.Duration {
		case 0, DurationFrames, Duration10, Duration15:
		default:
			return Plan{}, fault.Errorf(fault.KindRequest, opRoute, "duration %ds is not supported by %s", req.Duration, req.Model)
		}
		return r.plan(req, family, kie.APIJobs, func(rq Request, images []string) (kie.Payload, error) {
			return BuildClips(rq, images)
		}), nil
	}
}

func (r *Router) plan(req Request, family Family, api kie.API, build func(Request, []string) (kie.Payload, error)) Plan {
	req.ImageURLs = cloneStrings(req.ImageURLs)
	return Plan{
		Request:   req,
		Family:    family,
		API:       api,
		Normalize: NormalizerFor(api),
		build:     build,
	}
}

// validateGenerative checks the rules shared by the prompt-driven families.
func validateGenerative(req Request, maxImages int) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fault.New(fault.KindRequest, opRoute, "prompt is required")
	}
	if req.VideoURL != "" {
		return fault.Errorf(fault.KindRequest, opRoute, "video URL is only accepted by %s", ModelWatermarkRemover)
	}
	if len(req.ImageURLs) > maxImages {
		return fault.Errorf(fault.KindRequest, opRoute,
			"%d images supplied, %s accepts at most %d", len(req.ImageURLs), req.Model, maxImages)
	}
	for i, u := range req.ImageURLs {
		if strings.TrimSpace(u) == "" {
			return fault.Errorf(fault.KindRequest, opRoute, "image %d is empty", i)
		}
	}
	return nil
}

func validateAspectRatio(a AspectRatio) error {
	switch a {
	case "", AspectLandscape, AspectPortrait, AspectAuto:
		return nil
	default:
		return fault.Errorf(fault.KindRequest, opRoute, "unsupported aspect ratio %q", a)
	}
}
