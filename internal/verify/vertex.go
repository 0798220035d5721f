package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/davidahmann/coitrack/pkg/types"
)

const DefaultVertexModel = "gemini-1.5-pro"

const extractorSystemPrompt = "You are an insurance document analyst. You read ACORD 25 certificates of liability insurance and report their contents as JSON. Never guess values that are not printed on the certificate."

const extractorUserPrompt = `Extract the certificate of insurance provided.

Return a single JSON object with these keys:
- "status": "verified" when every policy is legible and in force, "expired" when any policy has expired, "partial" when some fields are unreadable, "error" when the file is not a certificate.
- "producer", "insured", "certificateHolder": objects with "name", "address" and "contact" strings.
- "policies": an array of objects with "type" (one of general_liability, auto_liability, umbrella_liability, workers_compensation, professional_liability), "carrier", "policyNumber", "effectiveDate" and "expirationDate" (YYYY-MM-DD), "eachOccurrence" and "aggregate" (whole US dollars, 0 if absent), and "confidence" (0 to 1).

Do not include any text before or after the JSON object.`

// Vertex extracts certificates with a Gemini model on Vertex AI.
type Vertex struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

func NewVertex(ctx context.Context, projectID, region, modelName string, logger *slog.Logger) (*Vertex, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex verifier: project and region are required")
	}
	if modelName == "" {
		modelName = DefaultVertexModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractorSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &Vertex{client: client, model: model, logger: logger}, nil
}

func (v *Vertex) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

func (v *Vertex) Verify(ctx context.Context, sub Submission) (types.VerificationPayload, error) {
	var filePart genai.Part
	switch {
	case len(sub.Data) > 0:
		filePart = genai.Blob{MIMEType: sub.ContentType, Data: sub.Data}
	case strings.HasPrefix(sub.URI, "gs://"):
		filePart = genai.FileData{MIMEType: sub.ContentType, FileURI: sub.URI}
	default:
		return types.VerificationPayload{}, fmt.Errorf("submission %s has neither data nor a gs:// uri", sub.DocumentID)
	}

	resp, err := v.model.GenerateContent(ctx, filePart, genai.Text(extractorUserPrompt))
	if err != nil {
		return types.VerificationPayload{}, fmt.Errorf("generate content: %w", err)
	}

	text, parts := responseText(resp)
	if parts > 1 {
		v.logger.Warn("gemini response had several text parts", "document_id", sub.DocumentID, "parts", parts)
	}
	if text == "" {
		return types.VerificationPayload{}, ErrEmptyResponse
	}

	payload, err := ParsePayload(text)
	if err != nil {
		v.logger.Error("unparseable verifier response", "document_id", sub.DocumentID, "error", err)
		return types.VerificationPayload{}, err
	}
	return payload, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, int) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", 0
	}
	var b strings.Builder
	parts := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			parts++
		}
	}
	return b.String(), parts
}

type extractedPolicy struct {
	Type           string  `json:"type"`
	Carrier        string  `json:"carrier"`
	PolicyNumber   string  `json:"policyNumber"`
	EffectiveDate  string  `json:"effectiveDate"`
	ExpirationDate string  `json:"expirationDate"`
	EachOccurrence int64   `json:"eachOccurrence"`
	Aggregate      int64   `json:"aggregate"`
	Confidence     float64 `json:"confidence"`
}

type extractedPayload struct {
	Status            string            `json:"status"`
	Producer          types.Party       `json:"producer"`
	Insured           types.Party       `json:"insured"`
	CertificateHolder types.Party       `json:"certificateHolder"`
	Policies          []extractedPolicy `json:"policies"`
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", time.RFC3339}

// ParsePayload decodes a model response. Markdown fences around the JSON
// are tolerated. Unknown statuses become partial.
func ParsePayload(text string) (types.VerificationPayload, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var raw extractedPayload
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return types.VerificationPayload{}, fmt.Errorf("decode verifier json: %w", err)
	}

	out := types.VerificationPayload{
		Status:            types.VerificationStatus(raw.Status),
		Producer:          raw.Producer,
		Insured:           raw.Insured,
		CertificateHolder: raw.CertificateHolder,
		Policies:          make([]types.Policy, 0, len(raw.Policies)),
	}
	switch out.Status {
	case types.VerificationVerified, types.VerificationExpired, types.VerificationPartial, types.VerificationError:
	default:
		out.Status = types.VerificationPartial
	}

	for i, p := range raw.Policies {
		effective, err := parseDate(p.EffectiveDate)
		if err != nil {
			return types.VerificationPayload{}, fmt.Errorf("policy %d effective date: %w", i, err)
		}
		expires, err := parseDate(p.ExpirationDate)
		if err != nil {
			return types.VerificationPayload{}, fmt.Errorf("policy %d expiration date: %w", i, err)
		}
		confidence := p.Confidence
		if confidence < 0 {
			confidence = 0
		} else if confidence > 1 {
			confidence = 1
		}
		out.Policies = append(out.Policies, types.Policy{
			Type:           p.Type,
			Carrier:        p.Carrier,
			PolicyNumber:   p.PolicyNumber,
			EffectiveDate:  effective,
			ExpirationDate: expires,
			EachOccurrence: p.EachOccurrence,
			Aggregate:      p.Aggregate,
			Confidence:     confidence,
		})
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
