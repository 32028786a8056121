package gemini

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-updater/internal/ai"
	"github.com/spigell/resume-updater/internal/logger"
	"github.com/spigell/resume-updater/internal/utils"
)

const (
	providerName        = "gemini"
	defaultMaxLogLength = 200
	minAnchorWords      = 5
)

//go:embed prompts/*.md
var prompts embed.FS

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	GenerateJSON(ctx context.Context, system, message string, schema *genai.Schema) (string, error)
	Model() string
}

// Writer implements ai.Writer on top of a Gemini generator.
type Writer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Writer = (*Writer)(nil)

func NewWriter(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Writer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Writer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

var experienceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":   {Type: genai.TypeString},
		"summary": {Type: genai.TypeString},
	},
	Required: []string{"title", "summary"},
}

var sectionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {Type: genai.TypeString},
		"body":  {Type: genai.TypeString},
	},
	Required: []string{"title", "body"},
}

var anchorSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"analysis":     {Type: genai.TypeString},
		"start_phrase": {Type: genai.TypeString},
	},
	Required: []string{"analysis", "start_phrase"},
}

func (w *Writer) DraftExperience(ctx context.Context, req ai.DraftRequest) (*ai.Experience, error) {
	system := strings.ReplaceAll(prompt("draft.md"), "{{TODAY}}", req.Today.Format("January 2, 2006"))
	message := fmt.Sprintf("Project description:\n%s\n\nCurrent resume:\n%s", req.Project, req.Resume)

	raw, err := w.call(ctx, "draft experience", system, message, experienceSchema)
	if err != nil {
		return nil, err
	}

	var out struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parse drafted experience: %w", err)
	}

	exp := &ai.Experience{Title: strings.TrimSpace(out.Title), Summary: strings.TrimSpace(out.Summary)}
	if exp.Title == "" && exp.Summary == "" {
		return nil, errors.New("gemini returned an empty experience entry")
	}

	return exp, nil
}

func (w *Writer) AlreadyOnResume(ctx context.Context, resume, project string) (bool, error) {
	message := fmt.Sprintf("Project description:\n%s\n\nResume:\n%s", project, resume)

	raw, err := w.call(ctx, "classify project", prompt("classify.md"), message, nil)
	if err != nil {
		return false, err
	}

	answer := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".\"'`"))
	switch {
	case strings.HasPrefix(answer, "yes"):
		return true, nil
	case strings.HasPrefix(answer, "no"):
		return false, nil
	default:
		return false, fmt.Errorf("unexpected classification answer %q", utils.TruncateForLog(raw, w.maxLogLen))
	}
}

func (w *Writer) SplitDescription(ctx context.Context, text string) (*ai.Section, error) {
	raw, err := w.call(ctx, "split description", prompt("split.md"), text, sectionSchema)
	if err != nil {
		return nil, err
	}

	var out struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parse split description: %w", err)
	}

	section := &ai.Section{Title: strings.TrimSpace(out.Title), Body: strings.TrimSpace(out.Body)}
	if section.Title == "" {
		return nil, errors.New("gemini returned a section without title")
	}

	return section, nil
}

func (w *Writer) LocateAnchor(ctx context.Context, document string) (*ai.Anchor, error) {
	raw, err := w.call(ctx, "locate anchor", prompt("anchor.md"), document, anchorSchema)
	if err != nil {
		return nil, err
	}

	var out struct {
		Analysis    string `json:"analysis"`
		StartPhrase string `json:"start_phrase"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parse anchor: %w", err)
	}

	phrase := strings.TrimSpace(out.StartPhrase)
	if phrase == "" {
		return nil, errors.New("gemini returned an empty start phrase")
	}
	if strings.ContainsAny(phrase, "\r\n") {
		return nil, fmt.Errorf("start phrase spans several lines: %q", phrase)
	}
	if len(strings.Fields(phrase)) < minAnchorWords {
		w.logger.Warn("start phrase is shorter than expected", zap.String("start_phrase", phrase))
	}

	return &ai.Anchor{Analysis: strings.TrimSpace(out.Analysis), Phrase: phrase}, nil
}

func (w *Writer) call(ctx context.Context, operation, system, message string, schema *genai.Schema) (string, error) {
	log := logger.WithLLMCall(w.logger, providerName, w.generator.Model(), operation)

	log.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, w.maxLogLen)),
	)

	var (
		raw string
		err error
	)
	if schema != nil {
		raw, err = w.generator.GenerateJSON(ctx, system, message, schema)
	} else {
		raw, err = w.generator.GenerateContent(ctx, system, message)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", operation, err)
	}

	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, w.maxLogLen)),
	)

	return raw, nil
}

func prompt(name string) string {
	data, err := prompts.ReadFile("prompts/" + name)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt %s: %v", name, err))
	}
	return string(data)
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
