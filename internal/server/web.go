/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

package server

import (
	"bufio"
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
)

// A template's source for a HTML page should contain four blocks:
// "title", "style", "js", "content". Block "title" should contain the content of the "title" HTML tag.
// Block "style" should contain "link" HTML tags that are injected to the head of the page.
// Block "js" should contain "script" HTML tags that are injected to the bottom of the page's body.
// Block "content" should contain HTML content that is injected to the start of the page's body.
// Each block has access to the data of the rendered page.

// intWebLoader is a loader that serves the built-in page templates.
type intWebLoader struct {
	tmpls map[string]*template.Template
}

// newIntWebLoader creates an internal web loader's instance.
func newIntWebLoader() (*intWebLoader, error) {
	mainTmpl, err := template.New("main").Parse(mainT)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse the main template")
	}

	tmpls := make(map[string]*template.Template)
	for name, src := range intTmpls {
		t, err := mainTmpl.Clone()
		if err != nil {
			return nil, errors.Wrap(err, "failed to clone the main template")
		}
		tmpls[name] = template.Must(t.Parse(src))
	}
	return &intWebLoader{tmpls: tmpls}, nil
}

func (wl *intWebLoader) loadTemplate(name string) (*template.Template, error) {
	t, ok := wl.tmpls[name]
	if !ok {
		return nil, fmt.Errorf("the template %q does not exist", name)
	}
	return t, nil
}

// extWebLoader is a loader that serves page templates from an external directory.
// The implementation affords to replace templates without restart of the app.
type extWebLoader struct {
	root  *template.Template
	paths map[string]string
}

// newExtWebLoader creates an external web loader's instance.
func newExtWebLoader(webDir string) (*extWebLoader, error) {
	if _, err := os.Stat(webDir); err != nil {
		return nil, errors.Wrapf(err, "failed to load web dir %q", webDir)
	}
	files, err := filepath.Glob(path.Join(webDir, "*.tmpl"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load templates from web dir %q", webDir)
	}

	mainTmpl, err := template.New("main").Parse(mainT)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse the main template")
	}

	paths := make(map[string]string)
	for _, f := range files {
		paths[path.Base(f)] = f
	}
	return &extWebLoader{root: mainTmpl, paths: paths}, nil
}

func (wl *extWebLoader) loadTemplate(name string) (*template.Template, error) {
	p, ok := wl.paths[name]
	if !ok {
		return nil, fmt.Errorf("the template %q does not exist", name)
	}
	t, err := wl.root.Clone()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to clone the template %q", name)
	}
	return t.ParseFiles(p)
}

type langPref struct {
	Lang   string
	Weight float32
}

// renderConsentTemplate renders the consent page from the template with data.
func (srv *Server) renderConsentTemplate(w http.ResponseWriter, r *http.Request, data interface{}) error {
	t, err := srv.webldr.loadTemplate(consentTmplName)
	if err != nil {
		return err
	}

	basePath := srv.WebBasePath
	if basePath == "" {
		basePath = "/"
	}

	langPrefs := []langPref{{Lang: "en", Weight: 1}}
	if acceptLang := r.Header.Get("Accept-Language"); acceptLang != "" {
		tags, weights, err := language.ParseAcceptLanguage(acceptLang)
		if err != nil {
			return errors.Wrap(err, "failed to parse the header \"Accept-Language\"")
		}
		langPrefs = nil
		for i, tag := range tags {
			langPrefs = append(langPrefs, langPref{Lang: tag.String(), Weight: weights[i]})
		}
	}

	tmplData := map[string]interface{}{"WebBasePath": basePath, "LangPrefs": langPrefs, "Data": data}

	var (
		buf bytes.Buffer
		bw  = bufio.NewWriter(&buf)
	)
	if err := t.Execute(bw, tmplData); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

const mainT = `{{ define "main" }}
<!DOCTYPE html>
<html lang="{{ (index .LangPrefs 0).Lang }}">
	<head>
		<meta name="viewport" content="width=device-width, initial-scale=1">
		<title>{{ block "title" .Data }}{{ end }}</title>
		<base href="{{ .WebBasePath }}">
		{{ block "style" .Data }}{{ end }}
	</head>
	<body>
		{{ block "content" .Data }}<h1>NO CONTENT</h1>{{ end }}
		{{ block "js" .Data }}{{ end }}
	</body>
</html>
{{ end }}
`

// intTmpls contains the built-in page templates by name.
var intTmpls = map[string]string{
	consentTmplName: consentT,
}

const consentT = `{{ define "title" }}Consent{{ end }}
{{ define "content" }}
<h1>An application requests access to your data</h1>
<p>
	Application
	{{ if .Client.Name }}<strong>{{ .Client.Name }}</strong>{{ else }}<strong>{{ .Client.ID }}</strong>{{ end }}
	wants to access resources on behalf of <strong>{{ .Subject }}</strong>.
</p>
<form method="POST" action="{{ .ConsentURL }}">
	<input type="hidden" name="csrf_token" value="{{ .CSRFToken }}">
	<input type="hidden" name="challenge" value="{{ .Challenge }}">
	<ul>
		{{ range .RequestedScopes }}
		<li>
			<label>
				<input type="checkbox" name="grant_scope" value="{{ . }}" checked>
				{{ . }}
			</label>
		</li>
		{{ end }}
	</ul>
	<label>
		<input type="checkbox" name="remember" value="1">
		Do not ask me again
	</label>
	<button type="submit" name="submit" value="Allow access">Allow access</button>
	<button type="submit" name="submit" value="Deny access">Deny access</button>
</form>
{{ end }}
`
