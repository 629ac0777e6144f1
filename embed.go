package amporaweb

import "embed"

// TemplateFS contains the embedded HTML templates used for rendering the dashboard. These templates
// are organized in a directory structure that separates layouts, pages, and partial views.
//
//go:embed templates/*
var TemplateFS embed.FS

// StaticFS contains the embedded static assets (stylesheet and the small script that consumes the
// dashboard event stream).
//
//go:embed static/*
var StaticFS embed.FS
