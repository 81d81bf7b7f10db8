// Package static embeds the browser viewer served at the site root.
package static

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:dist/*
var distFS embed.FS

// Handler serves the viewer. Unknown paths get index.html so the page
// works behind any mount point.
func Handler() http.Handler {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		// Embedded at build time, cannot fail.
		panic(err)
	}
	files := http.FileServerFS(fsys)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := fs.Stat(fsys, trimSlash(r.URL.Path)); err != nil {
			http.ServeFileFS(w, r, fsys, "index.html")
			return
		}
		files.ServeHTTP(w, r)
	})
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	if p == "" {
		return "."
	}
	return p
}
