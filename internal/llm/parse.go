package llm

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/models"
)

// Extraction is the result of pulling a JSON payload out of a raw model
// response. Found=false means the model never emitted a json fence: a
// soft failure the caller may retry or skip, distinct from a malformed
// fence which ExtractJSON reports as an error.
type Extraction struct {
	Raw   json.RawMessage
	Found bool
}

const (
	jsonFenceOpen = "```json"
	fenceClose    = "```"
)

// ExtractJSON locates the ```json fenced block in a model response.
// No fence: logs and returns Found=false with a nil error. Fence present
// but content not valid JSON: returns a malformed-response error, which
// signals a prompt or template defect worth surfacing.
func ExtractJSON(text string) (Extraction, error) {
	start := strings.Index(text, jsonFenceOpen)
	if start < 0 {
		slog.Warn("model response contains no json fence", "response_len", len(text))
		return Extraction{}, nil
	}
	content := text[start+len(jsonFenceOpen):]
	end := strings.Index(content, fenceClose)
	if end >= 0 {
		content = content[:end]
	}
	content = strings.TrimSpace(content)

	if !json.Valid([]byte(content)) {
		return Extraction{}, apperr.MalformedLLMResponse(nil)
	}
	return Extraction{Raw: json.RawMessage(content), Found: true}, nil
}

// draftRequiredKeys are the keys every generated issue draft must carry.
var draftRequiredKeys = []string{"type", "name", "description", "title", "labels", "sprint", "body"}

// ValidateDraftKeys checks that a raw draft object carries every
// required key. Values are not type-checked here; decoding does that.
func ValidateDraftKeys(raw json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return apperr.IssueGenerate("issue draft is not a JSON object: %v", err)
	}
	for _, key := range draftRequiredKeys {
		if _, ok := obj[key]; !ok {
			return apperr.IssueGenerate("issue draft missing required key %q", key)
		}
	}
	return nil
}

// DecodeDrafts parses a raw JSON array of issue drafts, validating each
// element. Validation is atomic: one malformed draft rejects the whole
// batch, so the caller either gets every draft or none.
func DecodeDrafts(raw json.RawMessage) ([]models.IssueDraft, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, apperr.IssueGenerate("issue drafts payload is not a JSON array: %v", err)
	}
	for i, elem := range elems {
		if err := ValidateDraftKeys(elem); err != nil {
			return nil, apperr.IssueGenerate("draft %d of %d: %v", i+1, len(elems), err)
		}
	}

	drafts := make([]models.IssueDraft, 0, len(elems))
	for i, elem := range elems {
		var d models.IssueDraft
		if err := json.Unmarshal(elem, &d); err != nil {
			return nil, apperr.IssueGenerate("decode draft %d: %v", i+1, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}
