package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var transcriptTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/transcript.html")
	if err != nil {
		// Fallback to built-in template if file not found
		transcriptTemplate = template.Must(template.New("transcript").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	transcriptTemplate = template.Must(template.New("transcript").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for transcript template rendering
type TemplateData struct {
	Title       string
	ProjectName string
	OwnerName   string
	UpdatedAt   time.Time
	Messages    []TemplateMessage
}

// TemplateMessage holds one message for the template
type TemplateMessage struct {
	Index  int
	Role   string
	Author string
	Body   string
	SentAt time.Time
}

// RenderTranscriptHTML renders the transcript template with provided data
func RenderTranscriptHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := transcriptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .message { padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
    .message.assistant { background: #f5f5f5; }
    .who { font-weight: bold; margin-bottom: 0.25rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.ProjectName}} | {{.OwnerName}} | {{.UpdatedAt.Format "Jan 2, 2006"}}</div>
  {{range .Messages}}
  <div class="message {{lower .Role}}">
    <div class="who">{{if .Author}}{{.Author}}{{else}}{{.Role}}{{end}}</div>
    <div>{{.Body}}</div>
  </div>
  {{end}}
</body>
</html>`
