package instrument

import (
	"html"
	"net/url"
	"strings"
)

// Library is a third-party package a project can pull in by name.
// Resources load in the order listed.
type Library struct {
	Name      string   `json:"name"`
	Resources []string `json:"resources"`
}

// Registry lists the libraries a project may request. Requested libraries
// are emitted in this order, whatever order the project lists them in, so
// react always loads before react-dom.
var Registry = []Library{
	{Name: "jquery", Resources: []string{"https://code.jquery.com/jquery-3.7.1.min.js"}},
	{Name: "lodash", Resources: []string{"https://cdn.jsdelivr.net/npm/lodash@4.17.21/lodash.min.js"}},
	{Name: "react", Resources: []string{"https://unpkg.com/react@18/umd/react.development.js"}},
	{Name: "react-dom", Resources: []string{"https://unpkg.com/react-dom@18/umd/react-dom.development.js"}},
	{Name: "vue", Resources: []string{"https://unpkg.com/vue@3/dist/vue.global.js"}},
	{Name: "bootstrap", Resources: []string{
		"https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css",
		"https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/js/bootstrap.bundle.min.js",
	}},
	{Name: "tailwind", Resources: []string{"https://cdn.tailwindcss.com"}},
	{Name: "animate.css", Resources: []string{"https://cdnjs.cloudflare.com/ajax/libs/animate.css/4.1.1/animate.min.css"}},
	{Name: "d3", Resources: []string{"https://cdn.jsdelivr.net/npm/d3@7/dist/d3.min.js"}},
	{Name: "chart.js", Resources: []string{"https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js"}},
	{Name: "three", Resources: []string{"https://cdn.jsdelivr.net/npm/three@0.160.0/build/three.min.js"}},
	{Name: "gsap", Resources: []string{"https://cdn.jsdelivr.net/npm/gsap@3.12.5/dist/gsap.min.js"}},
	{Name: "axios", Resources: []string{"https://cdn.jsdelivr.net/npm/axios@1.6.7/dist/axios.min.js"}},
}

// Lookup returns the registered library with the given name.
func Lookup(name string) (Library, bool) {
	for _, lib := range Registry {
		if lib.Name == name {
			return lib, true
		}
	}
	return Library{}, false
}

// Resolve maps requested names to registry entries in registry order.
// Unknown and duplicate names are dropped.
func Resolve(names []string) []Library {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.TrimSpace(n)] = true
	}
	var out []Library
	for _, lib := range Registry {
		if wanted[lib.Name] {
			out = append(out, lib)
		}
	}
	return out
}

// Known filters names down to registered libraries, keeping the caller's
// order and dropping duplicates.
func Known(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if seen[n] {
			continue
		}
		if _, ok := Lookup(n); ok {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func isStylesheet(resource string) bool {
	p := resource
	if u, err := url.Parse(resource); err == nil {
		p = u.Path
	}
	return strings.HasSuffix(strings.ToLower(p), ".css")
}

func resourceTag(resource string) string {
	src := html.EscapeString(resource)
	if isStylesheet(resource) {
		return `<link rel="stylesheet" href="` + src + `">`
	}
	return `<script src="` + src + `"></script>`
}
