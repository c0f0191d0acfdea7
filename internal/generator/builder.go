package generator

import (
	"strconv"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/kie"
)

// Generation types of the frames API.
const (
	GenerationTextToVideo   = "TEXT_2_VIDEO"
	GenerationFramesToVideo = "FIRST_AND_LAST_FRAMES_2_VIDEO"
)

// Jobs API model variants.
const (
	clipsTextModel  = "sora-2-text-to-video"
	clipsImageModel = "sora-2-image-to-video"
)

// Frame limits per family.
const (
	maxFrameImages = 2
	maxClipImages  = 1
)

const opBuild = "generator.build"

// BuildFrames translates a request into a frames API payload. Images must
// already be public URLs.
func BuildFrames(req Request, images []string) (kie.FramesRequest, error) {
	if len(images) > maxFrameImages {
		return kie.FramesRequest{}, fault.Errorf(fault.KindRequest, opBuild,
			"%d images supplied, at most %d frames are supported", len(images), maxFrameImages)
	}

	genType := GenerationTextToVideo
	if len(images) > 0 {
		genType = GenerationFramesToVideo
	}

	aspect := req.AspectRatio
	if aspect == "" {
		aspect = AspectLandscape
	}

	model := req.Model
	if model == "" {
		model = ModelVeo3Fast
	}

	return kie.FramesRequest{
		Prompt:            req.Prompt,
		ImageURLs:         cloneStrings(images),
		Model:             string(model),
		AspectRatio:       string(aspect),
		GenerationType:    genType,
		EnableTranslation: true,
		CallBackURL:       req.CallbackURL,
	}, nil
}

// BuildClips translates a request into a jobs API payload for clip synthesis.
func BuildClips(req Request, images []string) (kie.JobRequest, error) {
	if len(images) > maxClipImages {
		return kie.JobRequest{}, fault.Errorf(fault.KindRequest, opBuild,
			"%d images supplied, clip synthesis accepts at most %d", len(images), maxClipImages)
	}

	model := clipsTextModel
	if len(images) > 0 {
		model = clipsImageModel
	}

	removeWatermark := true
	return kie.JobRequest{
		Model:       model,
		CallBackURL: req.CallbackURL,
		Input: kie.JobInput{
			Prompt:          req.Prompt,
			ImageURLs:       cloneStrings(images),
			AspectRatio:     clipOrientation(req.AspectRatio),
			NFrames:         strconv.Itoa(int(clipDuration(req.Duration))),
			RemoveWatermark: &removeWatermark,
		},
	}, nil
}

// BuildPostProcess translates a request into a jobs API payload for
// watermark removal. Only the source video is carried.
func BuildPostProcess(req Request, images []string) (kie.JobRequest, error) {
	if req.VideoURL == "" {
		return kie.JobRequest{}, fault.New(fault.KindRequest, opBuild, "post-processing requires a video URL")
	}
	if len(images) > 0 {
		return kie.JobRequest{}, fault.New(fault.KindRequest, opBuild, "post-processing does not accept images")
	}

	return kie.JobRequest{
		Model:       string(ModelWatermarkRemover),
		CallBackURL: req.CallbackURL,
		Input: kie.JobInput{
			VideoURL: req.VideoURL,
		},
	}, nil
}

// clipOrientation maps an aspect ratio to the jobs API vocabulary.
func clipOrientation(a AspectRatio) string {
	if a == AspectPortrait {
		return "portrait"
	}
	return "landscape"
}

// clipDuration applies the clip synthesis default: unspecified and the
// frames-only length both become 10 seconds.
func clipDuration(d Duration) Duration {
	if d == 0 || d == DurationFrames {
		return Duration10
	}
	return d
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
