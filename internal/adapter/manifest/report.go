package manifest

import (
	"fmt"
	"html/template"
	"os"
)

// The HTML report is a self-contained static page: job configuration
// snapshot, archive summary, then the full per-file table.
const reportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Backup manifest - {{.JobName}} / {{.BackupSetID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { font-size: 1.4em; }
h2 { font-size: 1.1em; margin-top: 1.6em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; font-size: 0.9em; }
th { background: #f0f0f0; }
code { background: #f6f6f6; padding: 1px 4px; }
</style>
</head>
<body>
<h1>Backup set {{.BackupSetID}} - job {{.JobName}}</h1>
<p>Manifest written: {{.Timestamp}}</p>

<h2>Configuration snapshot</h2>
<table>
<tr><th>Source</th><td><code>{{.Config.Source}}</code></td></tr>
<tr><th>Destination</th><td><code>{{.Config.Destination}}</code></td></tr>
<tr><th>Keep sets</th><td>{{.Config.KeepSets}}</td></tr>
<tr><th>Max archive size</th><td>{{sizefmt .Config.MaxArchiveBytes}}</td></tr>
<tr><th>Encrypted</th><td>{{.Config.Encrypted}}</td></tr>
{{if .Config.Exclude}}<tr><th>Exclude</th><td>{{range .Config.Exclude}}<code>{{.}}</code> {{end}}</td></tr>{{end}}
</table>

<h2>Archives ({{len .Archives}})</h2>
<table>
<tr><th>Archive</th><th>Size</th><th>Files</th></tr>
{{range .Archives}}<tr><td><code>{{.Name}}</code></td><td>{{sizefmt .SizeBytes}}</td><td>{{.Files}}</td></tr>
{{end}}</table>

<h2>Files ({{len .Files}})</h2>
<table>
<tr><th>Path</th><th>Size</th><th>Modified</th><th>Archive</th></tr>
{{range .Files}}<tr><td><code>{{.Path}}</code></td><td>{{sizefmt .SizeBytes}}</td><td>{{.Modified}}</td><td><code>{{.Tarball}}</code></td></tr>
{{end}}</table>
</body>
</html>
`

var reportTmpl = template.Must(
	template.New("manifest").Funcs(template.FuncMap{"sizefmt": sizeFmt}).Parse(reportTemplate))

func (m *Manifest) writeHTML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return reportTmpl.Execute(f, m)
}

func sizeFmt(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
