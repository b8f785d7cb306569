package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"rig-vibration/advisory"
	"rig-vibration/models"
)

// DefaultModel is used when GEMINI_MODEL is unset.
const DefaultModel = "gemini-2.5-flash"

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("assistant not configured: GEMINI_API_KEY is empty")

const systemPrompt = `You are a drilling optimisation assistant on a rig floor.
You receive the current surface drilling parameters, the predicted downhole
vibration indices and the advisories raised by the monitoring dashboard.
Write a short shift-handover briefing for the driller:
- state the overall vibration risk and which mode dominates (stick-slip, lateral or axial)
- repeat the raised advisories as concrete parameter changes
- never invent readings that were not supplied

Keep it under 150 words, plain text, no markdown.`

// BriefingRequest carries one prediction to be summarised.
type BriefingRequest struct {
	Inputs     models.FeatureVector `json:"inputs"`
	Assessment advisory.Assessment  `json:"assessment"`
	Question   string               `json:"question,omitempty"`
}

type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %v", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

func generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleModel),
		Temperature:       genai.Ptr(float32(0.3)),
		TopP:              genai.Ptr(float32(0.8)),
		TopK:              genai.Ptr(float32(40)),
		MaxOutputTokens:   int32(300),
	}
}

// Brief returns a briefing for req.
func (g *GeminiClient) Brief(ctx context.Context, req BriefingRequest) (string, error) {
	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(BuildPrompt(req), genai.RoleUser)},
		generationConfig(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %v", err)
	}

	text := resp.Text()
	if text == "" {
		return "No briefing could be generated for this prediction.", nil
	}
	return strings.ReplaceAll(text, "*", ""), nil
}

// BriefStream delivers the briefing in chunks as they are generated.
func (g *GeminiClient) BriefStream(ctx context.Context, req BriefingRequest, onChunk func(string) error) error {
	stream := g.client.Models.GenerateContentStream(
		ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(BuildPrompt(req), genai.RoleUser)},
		generationConfig(),
	)

	for resp, err := range stream {
		if err != nil {
			return fmt.Errorf("stream error: %v", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if err := onChunk(strings.ReplaceAll(text, "*", "")); err != nil {
			return fmt.Errorf("chunk callback error: %v", err)
		}
	}
	return nil
}

// BuildPrompt renders the readings, predictions and advisories as the user turn.
func BuildPrompt(req BriefingRequest) string {
	var sb strings.Builder
	in := req.Inputs

	sb.WriteString("Surface parameters:\n")
	fmt.Fprintf(&sb, "- depth %.1f ft, WOB %.1f klbs, RPM %.0f, ROP %.1f ft/hr\n", in.Depth, in.WOB, in.RPM, in.ROP)
	fmt.Fprintf(&sb, "- flow in %.0f gpm, torque %.1f kft.lbs, SPP %.0f psi\n", in.FlowIn, in.Torque, in.SPP)
	fmt.Fprintf(&sb, "- mud weight in %.2f ppg, mud temp in %.1f, out %.1f\n", in.MudWeightIn, in.MudTempIn, in.MudTempOut)
	if in.SurfaceStickSlip != 0 {
		fmt.Fprintf(&sb, "- surface stick-slip %.1f\n", in.SurfaceStickSlip)
	}

	sb.WriteString("Predicted vibration:\n")
	for _, m := range req.Assessment.Metrics {
		fmt.Fprintf(&sb, "- %s: %.2f %s", m.Label, m.Value, m.Unit)
		if m.Severity != "" {
			fmt.Fprintf(&sb, " (%s)", m.Severity)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Aggregate risk: %.2f (%s)\n", req.Assessment.RiskScore, req.Assessment.RiskBand)

	sb.WriteString("Advisories:\n")
	for _, msg := range req.Assessment.Messages() {
		fmt.Fprintf(&sb, "- %s\n", msg)
	}

	if q := strings.TrimSpace(req.Question); q != "" {
		fmt.Fprintf(&sb, "Driller question: %s\n", q)
	}
	return sb.String()
}
