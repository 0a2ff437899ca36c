package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/breeds"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/transport"
	"google.golang.org/api/option"
)

const defaultGoogleModel = "gemini-1.5-flash"

// GoogleConfig holds configuration for the Google model
type GoogleConfig struct {
	BaseConfig
	ProjectID       string `json:"project_id"`
	Location        string `json:"location"`
	CredentialsFile string `json:"credentials_file"`
	Model           string `json:"model"`
}

// Load loads the Google configuration
func (c *GoogleConfig) Load() error {
	if err := c.LoadConfig(c.ConfigPath, "google", c); err != nil {
		return err
	}

	if c.ProjectID == "" {
		c.ProjectID = os.Getenv("GOOGLE_PROJECT_ID")
	}
	if c.Location == "" {
		c.Location = os.Getenv("GOOGLE_LOCATION")
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	}
	if c.Model == "" {
		c.Model = os.Getenv("GOOGLE_MODEL")
	}
	if c.Model == "" {
		c.Model = defaultGoogleModel
	}

	if c.ProjectID == "" || c.Location == "" {
		return fmt.Errorf("google project id and location are required")
	}
	return nil
}

// GoogleModel estimates weight with a Gemini model on Vertex AI
type GoogleModel struct {
	config GoogleConfig
	client *genai.Client
	model  *genai.GenerativeModel
	clock  clock.Clock
	log    *logger.Logger
}

// GoogleModelFactory implements ModelFactory for Google models
type GoogleModelFactory struct {
	config GoogleConfig
	log    *logger.Logger
}

func NewGoogleModelFactory(config GoogleConfig, log *logger.Logger) *GoogleModelFactory {
	return &GoogleModelFactory{config: config, log: log}
}

func (f *GoogleModelFactory) CreateModel() (Model, error) {
	return &GoogleModel{
		config: f.config,
		clock:  clock.New(),
		log:    f.log.With("component", "google_model"),
	}, nil
}

// Load creates the Vertex AI client
func (m *GoogleModel) Load(ctx context.Context) error {
	opts := []option.ClientOption{}
	if m.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(m.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, m.config.ProjectID, m.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	m.client = client
	m.model = client.GenerativeModel(m.config.Model)
	return nil
}

// Close releases the Vertex AI client
func (m *GoogleModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *GoogleModel) Estimate(ctx context.Context, req models.EstimateRequest) (*models.Observation, error) {
	if m.model == nil {
		return nil, fmt.Errorf("model not loaded")
	}

	start := m.clock.Now()
	img := genai.ImageData(imageFormat(req.ContentType), req.Image)
	resp, err := m.model.GenerateContent(ctx, genai.Text(estimatePrompt(req.Breed)), img)
	if err != nil {
		class := transport.ClassServer
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			class = transport.ClassNetwork
		}
		return nil, &transport.Error{Class: class, Err: fmt.Errorf("failed to call model: %w", err)}
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, &transport.Error{Status: http.StatusBadGateway, Class: transport.ClassServer, Err: err}
	}

	estimate, err := parseEstimate(text)
	if err != nil {
		return nil, err
	}

	elapsed := m.clock.Now().Sub(start)
	m.log.Info("weight estimated", "breed", req.Breed, "weight_kg", estimate.WeightKg, "elapsed", elapsed)

	return &models.Observation{
		SubjectID:         req.SubjectID,
		Timestamp:         m.clock.Now().UTC(),
		EstimatedWeightKg: estimate.WeightKg,
		Confidence:        estimate.Confidence,
		Breed:             req.Breed,
		ModelVersion:      "vertex/" + m.config.Model,
		ProcessingTimeMs:  elapsed.Milliseconds(),
		GPS:               req.GPS,
	}, nil
}

func estimatePrompt(breedID string) string {
	label := breedID
	if b, ok := breeds.Lookup(breedID); ok {
		label = b.Label
	}
	return fmt.Sprintf(`Estimate the live body weight in kilograms of the %s animal in this photo.
Use body length, heart girth and condition visible in the image.

Format the response as a JSON object with exactly one of "error" or "success" populated.
If no single animal is clearly visible, populate "error".
{
	"error": {
		"error_reason": "string",
		"suggestion_for_better_results": "string"
	},
	"success": {
		"estimated_weight_kg": number,
		"confidence": number between 0 and 1
	}
}`, label)
}

func imageFormat(contentType string) string {
	format := strings.TrimPrefix(strings.ToLower(contentType), "image/")
	if format == "jpg" || format == "" {
		return "jpeg"
	}
	return format
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response generated")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text in response")
	}
	return sb.String(), nil
}

type estimate struct {
	WeightKg   float64
	Confidence float64
}

// parseEstimate reads the model's JSON answer, tolerating a markdown fence
func parseEstimate(text string) (estimate, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var output struct {
		Error *struct {
			ErrorReason string `json:"error_reason"`
			Suggestion  string `json:"suggestion_for_better_results"`
		} `json:"error"`
		Success *struct {
			EstimatedWeightKg *float64 `json:"estimated_weight_kg"`
			Confidence        float64  `json:"confidence"`
		} `json:"success"`
	}
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		return estimate{}, &transport.Error{
			Status: http.StatusBadGateway,
			Class:  transport.ClassServer,
			Err:    fmt.Errorf("failed to parse model response: %w", err),
		}
	}

	if output.Error != nil && output.Error.ErrorReason != "" {
		msg := output.Error.ErrorReason
		if output.Error.Suggestion != "" {
			msg += "; " + output.Error.Suggestion
		}
		return estimate{}, &transport.Error{Status: http.StatusUnprocessableEntity, Class: transport.ClassUnprocessable, Message: msg}
	}

	if output.Success == nil || output.Success.EstimatedWeightKg == nil || *output.Success.EstimatedWeightKg <= 0 {
		return estimate{}, &transport.Error{
			Status:  http.StatusUnprocessableEntity,
			Class:   transport.ClassUnprocessable,
			Message: "model returned no usable weight",
		}
	}

	return estimate{
		WeightKg:   *output.Success.EstimatedWeightKg,
		Confidence: min(max(output.Success.Confidence, 0), 1),
	}, nil
}
