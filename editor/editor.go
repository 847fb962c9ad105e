// Package editor serves the embedded web UI for writing and recalling notes.
package editor

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed dist/*
var assets embed.FS

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// Handler serves files from the embedded dist/ directory. Unknown paths fall
// back to index.html, which is never cached so UI updates show up on reload.
func Handler() http.Handler {
	distFS, _ := fs.Sub(assets, "dist")
	fileServer := http.FileServer(http.FS(distFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" {
			name = "index.html"
		}
		if _, err := fs.Stat(distFS, name); err != nil {
			r.URL.Path = "/"
			name = "index.html"
		}

		if ct, ok := contentTypes[path.Ext(name)]; ok {
			w.Header().Set("Content-Type", ct)
		}
		if name == "index.html" {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}
