package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/idpflow/internal/models"
)

// --- OCR Model Prompts ---
const OCRSystemPrompt = "You are a document text and form extraction engine. You read scanned documents and photos and return their layout as a graph of blocks. You never summarize, translate or correct the text you read."
const OCRUserPrompt = `Analyze the provided document and return its text and form structure as JSON.

Follow these rules precisely:
1.  Emit one WORD block per word, with the exact text as printed.
2.  Emit one LINE block per line of text, with the full line text and a CHILD relationship listing its WORD block ids in reading order.
3.  For every form field (a label with a filled-in value, such as "Invoice Number: INV-001"), emit two KEY_VALUE_SET blocks:
    - a KEY block, entityTypes ["KEY"], with a CHILD relationship to the WORD blocks of the label and a VALUE relationship to the id of its VALUE block;
    - a VALUE block, entityTypes ["VALUE"], with a CHILD relationship to the WORD blocks of the value.
4.  Block ids must be unique strings. Every id referenced in a relationship must be the id of a block you emitted.
5.  Read the pages in order, top to bottom, left to right. Do not invent text that is not in the document.`

// --- Classifier Model Prompts ---
const ClassifierSystemPrompt = "You are a document classifier. You answer with exactly one category name from the list you are given and nothing else."
const ClassifierUserPromptTemplate = `Classify this document into one of these categories: %s

Document content:
%s

Return only the category name.`

// --- Summarizer Model Prompts ---
const SummarizerSystemPrompt = "You are an assistant that writes short, factual summaries of business and personal documents."
const SummarizerUserPromptTemplate = `Create a concise summary of this document in 2-3 sentences:

%s`

// blockGraphSchema constrains the OCR model's JSON output to models.BlockGraph.
var blockGraphSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"blocks": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id": {Type: genai.TypeString},
					"blockType": {
						Type: genai.TypeString,
						Enum: []string{string(models.BlockTypeWord), string(models.BlockTypeLine), string(models.BlockTypeKeyValueSet)},
					},
					"text": {Type: genai.TypeString},
					"entityTypes": {
						Type:  genai.TypeArray,
						Items: &genai.Schema{Type: genai.TypeString, Enum: []string{string(models.EntityTypeKey), string(models.EntityTypeValue)}},
					},
					"relationships": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"type": {Type: genai.TypeString, Enum: []string{string(models.RelationshipChild), string(models.RelationshipValue)}},
								"ids":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
							},
							Required: []string{"type", "ids"},
						},
					},
				},
				Required: []string{"id", "blockType"},
			},
		},
	},
	Required: []string{"blocks"},
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// VertexClient holds all pre-configured generative models for our app. It
// serves as the OCR, classification and summarization backend.
type VertexClient struct {
	OCRModel        *genai.GenerativeModel
	ClassifierModel *genai.GenerativeModel
	SummarizerModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	safety := []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	// --- Configure the OCR model ---
	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   blockGraphSchema,
		Temperature:      genai.Ptr[float32](0.0),
	}
	ocrModel.SafetySettings = safety

	// --- Configure the classifier model ---
	classifierModel := baseClient.GenerativeModel(modelName)
	classifierModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ClassifierSystemPrompt)},
	}
	classifierModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.0),
		MaxOutputTokens: genai.Ptr[int32](50),
	}
	classifierModel.SafetySettings = safety

	// --- Configure the summarizer model ---
	summarizerModel := baseClient.GenerativeModel(modelName)
	summarizerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SummarizerSystemPrompt)},
	}
	summarizerModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: genai.Ptr[int32](200),
	}
	summarizerModel.SafetySettings = safety

	return &VertexClient{
		OCRModel:        ocrModel,
		ClassifierModel: classifierModel,
		SummarizerModel: summarizerModel,
		baseClient:      baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// AnalyzeDocument reads gs://bucket/objectKey and returns its block graph.
func (c *VertexClient) AnalyzeDocument(ctx context.Context, bucket, objectKey, fileType string) (models.BlockGraph, error) {
	filePart := genai.FileData{
		MIMEType: fileType,
		FileURI:  fmt.Sprintf("gs://%s/%s", bucket, objectKey),
	}
	resp, err := c.OCRModel.GenerateContent(ctx, filePart, genai.Text(OCRUserPrompt))
	if err != nil {
		return models.BlockGraph{}, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	raw := responseText(resp)
	if raw == "" {
		return models.BlockGraph{}, fmt.Errorf("gemini returned no OCR content for %s", objectKey)
	}
	var graph models.BlockGraph
	if err := json.Unmarshal([]byte(raw), &graph); err != nil {
		return models.BlockGraph{}, fmt.Errorf("failed to unmarshal block graph: %w", err)
	}
	return graph, nil
}

// Classify asks for one of labels. The raw answer is returned; mapping it onto
// the category set is the caller's job.
func (c *VertexClient) Classify(ctx context.Context, text string, labels []string) (string, error) {
	prompt := fmt.Sprintf(ClassifierUserPromptTemplate, strings.Join(labels, ", "), text)
	resp, err := c.ClassifierModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate classification from gemini: %w", err)
	}
	return responseText(resp), nil
}

func (c *VertexClient) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(SummarizerUserPromptTemplate, text)
	resp, err := c.SummarizerModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate summary from gemini: %w", err)
	}
	summary := responseText(resp)
	if isRefusal(summary) {
		return "", fmt.Errorf("gemini response indicates refusal to summarize")
	}
	return summary, nil
}

// responseText concatenates the text parts of the first candidate and strips
// any code fence the model wrapped them in.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}

	content := strings.TrimSpace(b.String())
	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(content, fence) {
			content = strings.TrimPrefix(content, fence)
			content = strings.TrimSuffix(strings.TrimSpace(content), "```")
			break
		}
	}
	return strings.TrimSpace(content)
}

func isRefusal(s string) bool {
	lower := strings.ToLower(s)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
