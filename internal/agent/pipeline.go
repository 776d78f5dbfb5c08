// Package agent runs the LLM planning pipeline: defining features from
// project documents, drafting issues for them, recommending assignees,
// and advising on reschedule requests. Every stage is one prompt, one
// completion, and one strict parse; stages never retry internally.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/llm"
	"github.com/devpilot-kr/devpilot/internal/models"
)

// completionTimeout bounds one model call. Generation prompts carry full
// planning documents, so this is much longer than the GitHub budget.
const completionTimeout = 120 * time.Second

// draftChunkSize caps how many features one drafting call covers.
// Large batches degrade draft quality long before they hit token limits.
const draftChunkSize = 5

// GitHubClient is the slice of the GitHub adapter the pipeline needs:
// creating confirmed issues and reading activity for assessment.
type GitHubClient interface {
	CreateIssue(ctx context.Context, repoFullname string, req github.IssueRequest) (*github.Issue, error)
	ListActivity(ctx context.Context, repoFullname, githubName string) (*github.Activity, error)
}

// Pipeline holds the collaborators shared by all stages.
type Pipeline struct {
	llm    llm.Completer
	github GitHubClient
	logger *slog.Logger
}

// NewPipeline builds the pipeline with explicit collaborators.
func NewPipeline(completer llm.Completer, gh GitHubClient, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{llm: completer, github: gh, logger: logger}
}

// complete runs one bounded model call and extracts its JSON payload.
// A response with no json fence is an error here: no stage can proceed
// without a payload, and stages do not retry.
func (p *Pipeline) complete(ctx context.Context, stage, prompt string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	started := time.Now()
	text, err := p.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindMalformedLLMResponse, http.StatusBadGateway,
			"%s completion failed", stage)
	}
	p.logger.Info("model call finished",
		"stage", stage, "elapsed", time.Since(started).Round(time.Millisecond), "response_len", len(text))

	extraction, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	if !extraction.Found {
		return nil, apperr.New(apperr.KindMalformedLLMResponse, http.StatusBadGateway,
			"%s response contained no JSON payload", stage)
	}
	return extraction.Raw, nil
}

// DefineFeatures asks the model for the ordered list of feature names
// needed to complete the project, derived from its planning documents.
func (p *Pipeline) DefineFeatures(ctx context.Context, project *models.Project, documents string) ([]string, error) {
	raw, err := p.complete(ctx, "define_features", buildDefineFeaturesPrompt(project, documents))
	if err != nil {
		return nil, err
	}

	var features []string
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, apperr.IssueGenerate("feature list is not a JSON array of strings: %v", err)
	}
	out := features[:0]
	for _, f := range features {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, apperr.IssueGenerate("model defined no features")
	}
	return out, nil
}

// DraftIssues generates one full draft per feature, calling the model in
// chunks so each prompt stays focused. The whole batch is atomic: any
// invalid draft in any chunk rejects everything.
func (p *Pipeline) DraftIssues(ctx context.Context, project *models.Project, documents string, features []string) ([]models.IssueDraft, error) {
	if len(features) == 0 {
		return nil, apperr.IssueGenerate("no features to draft")
	}

	var drafts []models.IssueDraft
	for start := 0; start < len(features); start += draftChunkSize {
		chunk := features[start:min(start+draftChunkSize, len(features))]

		raw, err := p.complete(ctx, "draft_issues", buildDraftIssuesPrompt(project, documents, chunk))
		if err != nil {
			return nil, err
		}
		batch, err := llm.DecodeDrafts(raw)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(chunk) {
			return nil, apperr.IssueGenerate("asked for %d drafts, model produced %d", len(chunk), len(batch))
		}
		drafts = append(drafts, batch...)
	}
	return drafts, nil
}

// RecommendAssignees matches drafted issues to team members using their
// competency profiles. Every draft must come back with at least one
// assignee.
func (p *Pipeline) RecommendAssignees(ctx context.Context, project *models.Project, drafts []models.IssueDraft, roster []*models.User) ([]models.Assignment, error) {
	if len(roster) == 0 {
		return nil, apperr.IssueGenerate("project has no members to assign")
	}

	raw, err := p.complete(ctx, "recommend_assignees", buildAssignPrompt(project, drafts, roster))
	if err != nil {
		return nil, err
	}

	var assignments []models.Assignment
	if err := json.Unmarshal(raw, &assignments); err != nil {
		return nil, apperr.IssueGenerate("assignment payload is not a JSON array: %v", err)
	}
	if len(assignments) != len(drafts) {
		return nil, apperr.IssueGenerate("asked for %d assignments, model produced %d", len(drafts), len(assignments))
	}
	for _, a := range assignments {
		if strings.TrimSpace(a.Assignee) == "" {
			return nil, apperr.IssueGenerate("issue %q came back without an assignee", a.Issue)
		}
	}
	return assignments, nil
}

// Feedback produces the two resolution options for a pending reschedule
// request: a new assignee, or a new sprint on the project's cadence.
func (p *Pipeline) Feedback(ctx context.Context, project *models.Project, issue *github.Issue, reason string, roster []*models.User) (*models.RescheduleFeedback, error) {
	raw, err := p.complete(ctx, "reschedule_feedback", buildFeedbackPrompt(project, issue, reason, roster))
	if err != nil {
		return nil, err
	}

	var feedback models.RescheduleFeedback
	if err := json.Unmarshal(raw, &feedback); err != nil {
		return nil, apperr.IssueGenerate("feedback payload is not a JSON object: %v", err)
	}
	if feedback.NewAssignee.Name == "" && feedback.NewSprint.Sprint == 0 {
		return nil, apperr.IssueGenerate("feedback carries neither a new assignee nor a new sprint")
	}
	return &feedback, nil
}

// ConfirmDrafts turns accepted drafts into real GitHub issues. Drafts
// are never created without this explicit step. A draft without a
// priority gets "M"; its sprint number becomes the issue iteration.
func (p *Pipeline) ConfirmDrafts(ctx context.Context, project *models.Project, drafts []models.IssueDraft, assignees map[string][]string) ([]*github.Issue, error) {
	created := make([]*github.Issue, 0, len(drafts))
	for _, draft := range drafts {
		priority := draft.Priority
		if priority == "" {
			priority = "M"
		}
		issue, err := p.github.CreateIssue(ctx, project.RepoFullname, github.IssueRequest{
			Title:     draft.Title,
			Body:      renderDraftBody(draft),
			Assignees: assignees[draft.Title],
			Labels:    draft.Labels,
			Priority:  priority,
			Iteration: draft.Sprint,
		})
		if err != nil {
			return created, err
		}
		p.logger.Info("created issue from draft",
			"repo", project.RepoFullname, "number", issue.Number, "title", issue.Title)
		created = append(created, issue)
	}
	return created, nil
}

// draftSectionAttrs are the attribute fields the body renderer reads.
type draftSectionAttrs struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// renderDraftBody flattens the structured draft sections into markdown.
// Sections whose attributes do not decode are skipped rather than
// failing the whole draft.
func renderDraftBody(draft models.IssueDraft) string {
	var b strings.Builder
	b.WriteString(draft.Description)
	for _, section := range draft.Body {
		var attrs draftSectionAttrs
		if err := json.Unmarshal(section.Attributes, &attrs); err != nil {
			continue
		}
		if attrs.Label == "" && attrs.Value == "" {
			continue
		}
		b.WriteString("\n\n### ")
		b.WriteString(attrs.Label)
		b.WriteString("\n")
		b.WriteString(attrs.Value)
	}
	return b.String()
}
