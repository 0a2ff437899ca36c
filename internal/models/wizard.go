package models

// WizardStep is the visible step of the capture workflow
type WizardStep string

const (
	StepBreed             WizardStep = "breed"
	StepSubjectAndCapture WizardStep = "subjectAndCapture"
)

// ImageInfo describes the accepted capture image without its bytes
type ImageInfo struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// WizardState is a snapshot of the capture workflow
type WizardState struct {
	Step          WizardStep   `json:"step"`
	SelectedBreed string       `json:"selected_breed"`
	SubjectID     string       `json:"subject_id"`
	Image         *ImageInfo   `json:"image"`
	ImagePreview  string       `json:"image_preview"` // data URL
	Result        *Observation `json:"result"`
	Loading       bool         `json:"loading"`
	Saving        bool         `json:"saving"`
	Error         string       `json:"error"`
}

// EstimateRequest carries one capture to a weight estimator
type EstimateRequest struct {
	Image       []byte
	ImageName   string
	ContentType string
	Breed       string
	SubjectID   string
	GPS         *GPS
}
