// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-gateway.
//
// go-webauthn-gateway is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package web embeds the browser-facing pages and their WebAuthn glue
// script.
package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl"))

// AuthenticatePage is the data for the login page.
type AuthenticatePage struct {
	Username string
}

// CredentialItem is one row on the credential management page.
type CredentialItem struct {
	ID   string
	Name string
}

// CredentialsPage is the data for the credential management page.
type CredentialsPage struct {
	Username    string
	Credentials []CredentialItem
}

// Render executes the named page template.
func Render(w io.Writer, name string, data any) error {
	return templates.ExecuteTemplate(w, name+".html.tmpl", data)
}

// Static returns the embedded static asset tree rooted at its contents.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
