package web

import (
	"html/template"
	"net/http"

	"github.com/roselinebot/roseline/internal/store"
)

type indexData struct {
	VNs   int64
	Hooks int64
}

type searchData struct {
	Query string
	VNs   []store.VN
}

var (
	indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><title>roseline</title></head><body>
<h1>roseline</h1>
<p>{{.VNs}} VNs, {{.Hooks}} hooks</p>
<form action="/search" method="get">
<input type="text" name="q" placeholder="title">
<button type="submit">Search</button>
</form>
</body></html>
`))

	searchTemplate = template.Must(template.New("search").Parse(`<!DOCTYPE html>
<html><head><title>roseline - search</title></head><body>
<h1>Results for &quot;{{.Query}}&quot;</h1>
{{if .VNs}}
<ul>
{{range .VNs}}<li><a href="/vn/{{.ID}}">{{.Title}}</a></li>
{{end}}</ul>
{{else}}
<p>No matches.</p>
{{end}}
<p><a href="/">Back</a></p>
</body></html>
`))

	vnTemplate = template.Must(template.New("vn").Parse(`<!DOCTYPE html>
<html><head><title>roseline - {{.VN.Title}}</title></head><body>
<h1>{{.VN.Title}}</h1>
<p><a href="https://vndb.org/v{{.VN.ID}}">vndb.org/v{{.VN.ID}}</a></p>
{{if .Hooks}}
<table border="1">
<tr><th>Version</th><th>Code</th><th></th></tr>
{{range .Hooks}}<tr><td>{{.Version}}</td><td><code>{{.Code}}</code></td>
<td><form action="/vn/{{.VNID}}/hook/delete" method="post">
<input type="hidden" name="version" value="{{.Version}}">
<button type="submit">Delete</button>
</form></td></tr>
{{end}}</table>
{{else}}
<p>No hooks.</p>
{{end}}
<h2>Add hook</h2>
<form action="/vn/{{.VN.ID}}/hook" method="post">
<input type="text" name="version" placeholder="version">
<input type="text" name="code" placeholder="code">
<button type="submit">Add</button>
</form>
<h2>Danger</h2>
<form action="/vn/{{.VN.ID}}/delete" method="post">
<button type="submit">Delete VN and all hooks</button>
</form>
<p><a href="/">Back</a></p>
</body></html>
`))
)

func renderPage(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
