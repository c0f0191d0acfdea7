package generator

import (
	"encoding/json"
	"strings"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/kie"
)

const opNormalize = "generator.normalize"

// genericFailure is reported when the provider fails a task without a message.
const genericFailure = "video generation failed"

// resultURLKeys lists completion payload fields that may carry the result,
// in the order they are tried.
//
// TODO: raise with product owners that a payload populating two of these
// fields with different URLs is resolved by first match only.
var resultURLKeys = []string{
	"resultUrls",
	"resultUrl",
	"result_urls",
	"result_url",
	"videoUrls",
	"videoUrl",
	"video_url",
	"urls",
	"url",
	"originUrls",
}

// Observation is the canonical reading of one raw status record.
type Observation struct {
	State         State
	ResultURL     string // set when State is StateSuccess
	FailureReason string // set when State is StateFail
}

// Normalizer maps a raw status record to a canonical observation. A success
// without an extractable result URL is a fault.KindProtocol error.
type Normalizer func(kie.StatusRecord) (Observation, error)

// NormalizerFor returns the normalizer matching the status shape of api.
func NormalizerFor(api kie.API) Normalizer {
	if api.Shape() == kie.ShapeFlag {
		return NormalizeFlag
	}
	return NormalizeState
}

// NormalizeFlag normalizes a flag-shaped record.
func NormalizeFlag(rec kie.StatusRecord) (Observation, error) {
	if rec.Flag == nil {
		return Observation{}, fault.Errorf(fault.KindProtocol, opNormalize, "expected flag-shaped record, got %q", rec.Shape)
	}

	switch rec.Flag.SuccessFlag {
	case 0:
		return Observation{State: StateGenerating}, nil
	case 1:
		u, ok := ExtractResultURL(rec.Flag.Response)
		if !ok {
			return Observation{}, fault.New(fault.KindProtocol, opNormalize, "provider reported success without a result URL")
		}
		return Observation{State: StateSuccess, ResultURL: u}, nil
	case 2, 3:
		return Observation{State: StateFail, FailureReason: failureReason(rec.Flag.ErrorMessage)}, nil
	default:
		return Observation{}, fault.Errorf(fault.KindProtocol, opNormalize, "unknown success flag %d", rec.Flag.SuccessFlag)
	}
}

// NormalizeState normalizes a state-shaped record.
func NormalizeState(rec kie.StatusRecord) (Observation, error) {
	if rec.State == nil {
		return Observation{}, fault.Errorf(fault.KindProtocol, opNormalize, "expected state-shaped record, got %q", rec.Shape)
	}

	switch strings.ToLower(strings.TrimSpace(rec.State.State)) {
	case "waiting", "queuing":
		return Observation{State: StateQueueing}, nil
	case "generating":
		return Observation{State: StateGenerating}, nil
	case "success":
		u, ok := ExtractResultURL([]byte(rec.State.ResultJSON))
		if !ok {
			return Observation{}, fault.New(fault.KindProtocol, opNormalize, "provider reported success without a result URL")
		}
		return Observation{State: StateSuccess, ResultURL: u}, nil
	case "fail":
		return Observation{State: StateFail, FailureReason: failureReason(rec.State.FailMsg)}, nil
	default:
		return Observation{}, fault.Errorf(fault.KindProtocol, opNormalize, "unknown task state %q", rec.State.State)
	}
}

// ExtractResultURL finds the first absolute http(s) URL in a completion
// payload, trying resultURLKeys in order. Each field may hold a string or an
// array of strings.
func ExtractResultURL(doc []byte) (string, bool) {
	if len(doc) == 0 {
		return "", false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil || fields == nil {
		return "", false
	}

	for _, key := range resultURLKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		for _, candidate := range stringValues(raw) {
			if IsPublicURL(candidate) {
				return strings.TrimSpace(candidate), true
			}
		}
	}
	return "", false
}

// stringValues decodes raw as a string or a list, keeping only string items.
func stringValues(raw json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func failureReason(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return genericFailure
	}
	return msg
}
