package agent

import (
	"fmt"
	"strings"

	"github.com/devpilot-kr/devpilot/internal/github"
	"github.com/devpilot-kr/devpilot/internal/models"
)

// systemPrompt frames every pipeline call. The json-fence instruction is
// load-bearing: the response parser only accepts payloads inside a
// ```json fence.
const systemPrompt = "You are a software project planning assistant. " +
	"You analyze project documents, team member profiles, and GitHub issues, " +
	"and produce structured planning output. " +
	"Always place your final answer inside a single ```json fenced block. " +
	"Do not include analysis or commentary outside that block."

// issueTemplateJSON is the shape every generated draft must follow. The
// keys match what the response parser validates.
const issueTemplateJSON = `{
  "type": "development role (Backend, Frontend, AI)",
  "name": "short feature name",
  "description": "what the feature does and why it matters",
  "title": "[Feature]: short feature name",
  "labels": ["✨ Feature"],
  "sprint": 1,
  "priority": "M",
  "body": [
    {
      "id": "description",
      "attributes": {
        "label": "Feature Description",
        "description": "Describe the feature in detail.",
        "value": "- core keyword\n- detail 1\n- detail 2"
      }
    },
    {
      "id": "todos",
      "attributes": {
        "label": "Implementation Steps (TODO)",
        "description": "Steps required to implement this feature.",
        "value": "- [ ] TODO 1\n- [ ] TODO 2"
      }
    },
    {
      "id": "wish-assignee-info",
      "attributes": {
        "label": "Desired Assignee Information",
        "description": "Criteria for a suitable assignee.",
        "value": "- Troubleshooting Score: \n- Project Contribution Score: "
      }
    }
  ]
}`

const assignOutputExample = `[
  {
    "issue": "issue title",
    "assignee": "developer name",
    "description": [
      "Developer1: Backend, experience with API development. Troubleshooting: 85, Contribution: 90. Assigned due to strong alignment with the backend stack."
    ]
  }
]`

const feedbackOutputExample = `{
  "issue_number": 123,
  "modification_reason": "The original assignee is overloaded during this sprint.",
  "new_assignee": {
    "name": "Alice Kim",
    "reason": "Alice has prior experience with similar issues and has available capacity this sprint."
  },
  "new_sprint": {
    "sprint": 4,
    "reason": "Extending the deadline by one sprint cycle to accommodate the current workload."
  }
}`

func writeProjectInfo(b *strings.Builder, project *models.Project) {
	b.WriteString("## Project\n")
	fmt.Fprintf(b, "- Name: %s\n", project.Name)
	fmt.Fprintf(b, "- Repository: %s\n", project.RepoFullname)
	fmt.Fprintf(b, "- Sprint unit: %d days\n", project.SprintUnit)
	if !project.StartDate.IsZero() {
		fmt.Fprintf(b, "- Start date: %s\n", project.StartDate.Format("2006-01-02"))
	}
	b.WriteString("\n")
}

// writeRoster renders the team members with their competency profiles.
// Members without an assessed profile still appear so the model never
// invents names.
func writeRoster(b *strings.Builder, roster []*models.User) {
	b.WriteString("## Team Members\n")
	for _, u := range roster {
		fmt.Fprintf(b, "- %s (github: %s)", u.Name, u.GitHubName)
		if u.Field != "" {
			fmt.Fprintf(b, ", field: %s", u.Field)
		}
		if u.Experience != "" {
			fmt.Fprintf(b, ", experience: %s", u.Experience)
		}
		b.WriteString("\n")
		if p := u.Profile; p != nil {
			fmt.Fprintf(b, "  - Troubleshooting: %d (%s)\n", p.Troubleshooting.Score, p.Troubleshooting.Justification)
			fmt.Fprintf(b, "  - Project contribution: %d (%s)\n", p.ProjectContribution.Score, p.ProjectContribution.Justification)
			if len(p.ImplementedFeatures) > 0 {
				fmt.Fprintf(b, "  - Implemented features: %s\n", strings.Join(p.ImplementedFeatures, ", "))
			}
		}
	}
	b.WriteString("\n")
}

// buildDefineFeaturesPrompt asks for the ordered list of feature names
// needed to complete the project, names only.
func buildDefineFeaturesPrompt(project *models.Project, documents string) string {
	var b strings.Builder
	writeProjectInfo(&b, project)

	b.WriteString("## Planning Documents\n")
	b.WriteString(documents)
	b.WriteString("\n\n")

	b.WriteString("## Task\n")
	b.WriteString("Analyze the planning documents and define the features needed to complete the project.\n")
	b.WriteString("- List the features in order of development sequence.\n")
	b.WriteString("- Each feature must be completable within one sprint.\n")
	b.WriteString("- Feature names are short, one line each, with no descriptions.\n")
	b.WriteString("- Prefix each name with its kind, e.g. \"[Feat]: Implement Login Endpoint\" or \"[Test]: Test Login Endpoint\".\n\n")

	b.WriteString("Output a JSON array of feature name strings.\n")
	return b.String()
}

// buildDraftIssuesPrompt asks for full issue drafts for one chunk of
// feature names.
func buildDraftIssuesPrompt(project *models.Project, documents string, features []string) string {
	var b strings.Builder
	writeProjectInfo(&b, project)

	b.WriteString("## Planning Documents\n")
	b.WriteString(documents)
	b.WriteString("\n\n")

	b.WriteString("## Features To Draft\n")
	for _, f := range features {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	b.WriteString("\n")

	b.WriteString("## Task\n")
	b.WriteString("Write one complete issue draft for each listed feature, and only for the listed features.\n")
	b.WriteString("- Analyze the planning documents and write concrete implementation steps for each feature.\n")
	b.WriteString("- Include additional context and reference materials needed to implement it.\n")
	b.WriteString("- State the desired assignee criteria as scores.\n")
	b.WriteString("- Choose a sprint number per feature from the project schedule and feature dependencies.\n")
	fmt.Fprintf(&b, "- The sprint unit is %d days; sprint 1 is the first sprint, sprint 2 the second.\n", project.SprintUnit)
	b.WriteString("- Every draft must include type, name, description, title, labels, sprint, and body.\n\n")

	b.WriteString("## Issue Template\n```json\n")
	b.WriteString(issueTemplateJSON)
	b.WriteString("\n```\n\n")

	b.WriteString("Output a JSON array with one draft per feature, each following the template.\n")
	return b.String()
}

// buildAssignPrompt asks for 1-2 recommended assignees per draft.
func buildAssignPrompt(project *models.Project, drafts []models.IssueDraft, roster []*models.User) string {
	var b strings.Builder
	writeProjectInfo(&b, project)
	writeRoster(&b, roster)

	b.WriteString("## Issues\n")
	for _, d := range drafts {
		fmt.Fprintf(&b, "- %s (type: %s, sprint: %d): %s\n", d.Title, d.Type, d.Sprint, d.Description)
	}
	b.WriteString("\n")

	b.WriteString("## Assignment Criteria\n")
	b.WriteString("1. Skill match: the developer's field and implemented features align with the issue.\n")
	b.WriteString("2. Relevant experience: prior work on similar features or systems.\n")
	b.WriteString("3. Troubleshooting score: higher scores indicate stronger problem solving.\n")
	b.WriteString("4. Project contribution score: reflects reliability and initiative.\n")
	b.WriteString("5. Workload: avoid overloading a single developer unless necessary.\n\n")

	b.WriteString("## Task\n")
	b.WriteString("Assign the most appropriate 1-2 developers from the team to each issue.\n")
	b.WriteString("- Every issue gets at least one assignee.\n")
	b.WriteString("- Assignee names must be names from the team member list.\n")
	b.WriteString("- If no developer fully meets an issue's criteria, assign whoever comes closest and explain why.\n")
	b.WriteString("- Justify each assigned developer against the criteria.\n\n")

	b.WriteString("Output a JSON array in this format:\n```json\n")
	b.WriteString(assignOutputExample)
	b.WriteString("\n```\n")
	return b.String()
}

// buildFeedbackPrompt asks for the two reschedule options: a new
// assignee, or a new sprint within the project's sprint cadence.
func buildFeedbackPrompt(project *models.Project, issue *github.Issue, reason string, roster []*models.User) string {
	var b strings.Builder
	writeProjectInfo(&b, project)
	writeRoster(&b, roster)

	b.WriteString("## Issue\n")
	fmt.Fprintf(&b, "- Number: %d\n", issue.Number)
	fmt.Fprintf(&b, "- Title: %s\n", issue.Title)
	fmt.Fprintf(&b, "- Current assignees: %s\n", strings.Join(issue.Assignees, ", "))
	fmt.Fprintf(&b, "- Current sprint: %d\n", issue.Iteration)
	fmt.Fprintf(&b, "- Body:\n%s\n\n", issue.Body)

	b.WriteString("## Reason For Rescheduling\n")
	b.WriteString(reason)
	b.WriteString("\n\n")

	b.WriteString("## Task\n")
	b.WriteString("The issue needs either a new assignee or a new due date. Suggest both options:\n")
	b.WriteString("1. A new assignee from the team who is suitable for this issue.\n")
	b.WriteString("2. A new sprint number aligned with the project's sprint unit, keeping the current assignees.\n")
	b.WriteString("Explain the reasons for each suggestion.\n\n")

	b.WriteString("Output a JSON object in this format:\n```json\n")
	b.WriteString(feedbackOutputExample)
	b.WriteString("\n```\n")
	return b.String()
}

// buildCompetencyPrompt asks for a scored competency profile from one
// user's commit and pull-request digest.
func buildCompetencyPrompt(user *models.User, rubric string, activity []*github.Activity) string {
	var b strings.Builder

	b.WriteString("## Scoring Rubric\n")
	b.WriteString(rubric)
	b.WriteString("\n\n")

	b.WriteString("## GitHub Activity\n")
	empty := true
	for _, a := range activity {
		if a.Commits == 0 && a.PullRequests == 0 {
			continue
		}
		empty = false
		fmt.Fprintf(&b, "### %s\n%s\n", a.RepoFullname, a.Digest)
	}
	if empty {
		b.WriteString("(no activity found)\n")
	}
	b.WriteString("\n")

	b.WriteString("## Task\n")
	fmt.Fprintf(&b, "Assess the competency of %s (github: %s) from the activity above.\n", user.Name, user.GitHubName)
	b.WriteString("- Score troubleshooting and project contribution using the rubric bands, 0-100.\n")
	b.WriteString("- Justify each score in 1-2 sentences citing specific commits or pull requests.\n")
	b.WriteString("- List the features the user has implemented, as commonly recognized feature names.\n")
	b.WriteString("- Infer the user's field (Backend, Frontend, AI, ...) and experience level (Junior, Middle, Senior).\n")
	b.WriteString("- If the activity is empty, give 0 for both scores.\n\n")

	b.WriteString("Output a JSON object in this format:\n```json\n")
	b.WriteString(`{
  "name": "user name",
  "field": "Backend",
  "experience": "Junior",
  "project_contribution": {"score": 75, "justification": "..."},
  "troubleshooting": {"score": 80, "justification": "..."},
  "implemented_features": ["User Authentication", "API Endpoint Creation"]
}`)
	b.WriteString("\n```\n")
	return b.String()
}
