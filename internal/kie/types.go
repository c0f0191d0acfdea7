// Package kie provides the HTTP transport for the video generation provider.
// It speaks two submit APIs (the frames API and the jobs API) and returns raw,
// provider-shaped status records; normalization happens elsewhere.
package kie

import "encoding/json"

// API identifies which provider API a request targets.
type API string

// Provider APIs.
const (
	// APIFrames is the frame-conditioned video API; status uses the flag shape.
	APIFrames API = "frames"
	// APIJobs is the generic jobs API used for clip synthesis and post-processing;
	// status uses the state shape.
	APIJobs API = "jobs"
)

// Shape identifies the layout of a raw status record.
type Shape string

// Status record shapes.
const (
	ShapeFlag  Shape = "flag"
	ShapeState Shape = "state"
)

// Shape returns the status shape returned by the API.
func (a API) Shape() Shape {
	if a == APIFrames {
		return ShapeFlag
	}
	return ShapeState
}

// Endpoints holds the request paths of each API, relative to the base URL.
type Endpoints struct {
	FramesSubmit string `yaml:"frames_submit"`
	FramesStatus string `yaml:"frames_status"`
	JobsSubmit   string `yaml:"jobs_submit"`
	JobsStatus   string `yaml:"jobs_status"`
}

// DefaultEndpoints returns the provider's published endpoint paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		FramesSubmit: "/api/v1/veo/generate",
		FramesStatus: "/api/v1/veo/record-info",
		JobsSubmit:   "/api/v1/jobs/createTask",
		JobsStatus:   "/api/v1/jobs/recordInfo",
	}
}

// merge returns e with empty paths filled from defaults.
func (e Endpoints) merge(defaults Endpoints) Endpoints {
	if e.FramesSubmit == "" {
		e.FramesSubmit = defaults.FramesSubmit
	}
	if e.FramesStatus == "" {
		e.FramesStatus = defaults.FramesStatus
	}
	if e.JobsSubmit == "" {
		e.JobsSubmit = defaults.JobsSubmit
	}
	if e.JobsStatus == "" {
		e.JobsStatus = defaults.JobsStatus
	}
	return e
}

// Payload is a submit request body bound to the API that accepts it.
type Payload interface {
	API() API
}

// FramesRequest is the submit body of the frames API.
type FramesRequest struct {
	Prompt            string   `json:"prompt"`
	ImageURLs         []string `json:"imageUrls,omitempty"`
	Model             string   `json:"model"`
	AspectRatio       string   `json:"aspectRatio,omitempty"`
	GenerationType    string   `json:"generationType"`
	EnableTranslation bool     `json:"enableTranslation"`
	CallBackURL       string   `json:"callBackUrl,omitempty"`
}

// API implements Payload.
func (FramesRequest) API() API { return APIFrames }

// JobRequest is the submit body of the jobs API.
type JobRequest struct {
	Model       string   `json:"model"`
	CallBackURL string   `json:"callBackUrl,omitempty"`
	Input       JobInput `json:"input"`
}

// API implements Payload.
func (JobRequest) API() API { return APIJobs }

// JobInput is the model-specific input of a jobs API request.
type JobInput struct {
	Prompt          string   `json:"prompt,omitempty"`
	ImageURLs       []string `json:"image_urls,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	NFrames         string   `json:"n_frames,omitempty"`
	RemoveWatermark *bool    `json:"remove_watermark,omitempty"`
	VideoURL        string   `json:"video_url,omitempty"`
}

// StatusRecord is a raw status payload. Exactly one of Flag or State is set,
// matching Shape.
type StatusRecord struct {
	Shape Shape
	Flag  *FlagRecord
	State *StateRecord
}

// FlagRecord is the frames API status shape.
type FlagRecord struct {
	TaskID string `json:"taskId"`
	// SuccessFlag is 0 while generating, 1 on success, 2 or 3 on failure.
	SuccessFlag int `json:"successFlag"`
	// Response holds the completion payload; it is JSON null until success.
	Response     json.RawMessage `json:"response"`
	ErrorMessage string          `json:"errorMessage"`
}

// StateRecord is the jobs API status shape.
type StateRecord struct {
	TaskID string `json:"taskId"`
	Model  string `json:"model"`
	// State is one of waiting, queuing, generating, success, fail.
	State string `json:"state"`
	// ResultJSON is a JSON document encoded as a string; empty until success.
	ResultJSON string `json:"resultJson"`
	FailMsg    string `json:"failMsg"`
}

// envelope wraps every provider response.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// submitData is the data field of a submit response.
type submitData struct {
	TaskID string `json:"taskId"`
}
