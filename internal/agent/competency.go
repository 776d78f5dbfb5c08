package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/devpilot-kr/devpilot/internal/apperr"
	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/models"
)

//go:embed rubric.yaml
var rubricYAML []byte

// rubricBand is one score range of the assessment rubric.
type rubricBand struct {
	Score       string `yaml:"score"`
	Description string `yaml:"description"`
}

type rubric struct {
	ProjectContribution []rubricBand `yaml:"project_contribution"`
	Troubleshooting     []rubricBand `yaml:"troubleshooting"`
}

var rubricOnce = sync.OnceValues(func() (string, error) {
	var r rubric
	if err := yaml.Unmarshal(rubricYAML, &r); err != nil {
		return "", fmt.Errorf("parse rubric: %w", err)
	}
	if len(r.ProjectContribution) == 0 || len(r.Troubleshooting) == 0 {
		return "", fmt.Errorf("rubric is missing scoring bands")
	}

	var b strings.Builder
	writeBands := func(title string, bands []rubricBand) {
		fmt.Fprintf(&b, "### %s\n", title)
		for _, band := range bands {
			fmt.Fprintf(&b, "- %s: %s\n", band.Score, band.Description)
		}
	}
	writeBands("Project Contribution", r.ProjectContribution)
	b.WriteString("\n")
	writeBands("Troubleshooting", r.Troubleshooting)
	return b.String(), nil
})

// AssessCompetency scores one user against the embedded rubric from
// their commit and pull-request history in the given repositories. The
// caller persists the returned profile; this stage only computes it.
func (p *Pipeline) AssessCompetency(ctx context.Context, user *models.User, repos []string) (*models.CompetencyProfile, error) {
	rubricText, err := rubricOnce()
	if err != nil {
		return nil, err
	}

	activity := make([]*github.Activity, 0, len(repos))
	for _, repo := range repos {
		a, err := p.github.ListActivity(ctx, repo, user.GitHubName)
		if err != nil {
			return nil, err
		}
		activity = append(activity, a)
	}

	raw, err := p.complete(ctx, "assess_competency", buildCompetencyPrompt(user, rubricText, activity))
	if err != nil {
		return nil, err
	}

	var profile models.CompetencyProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, apperr.MalformedLLMResponse(err)
	}
	for _, score := range []int{profile.ProjectContribution.Score, profile.Troubleshooting.Score} {
		if score < 0 || score > 100 {
			return nil, apperr.MalformedLLMResponse(fmt.Errorf("score %d outside 0-100", score))
		}
	}
	if profile.Name == "" {
		profile.Name = user.Name
	}
	return &profile, nil
}
