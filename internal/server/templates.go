// ABOUTME: Template rendering for the login form and demo pages
// ABOUTME: Renders the optional login notice from Markdown via goldmark

package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"os"

	"github.com/yuin/goldmark"

	"github.com/me/gatehouse/internal/secure"
)

// loginPageData feeds the login template.
type loginPageData struct {
	Title     string
	Error     bool
	LoggedOut bool
	CSRFToken string
	Notice    template.HTML
}

// homePageData feeds the home/admin template.
type homePageData struct {
	Title    string
	Username string
	Admin    bool
}

type templates struct {
	login *template.Template
	home  *template.Template
}

// loadTemplates parses the embedded templates and renders the configured
// login notice once at startup.
func (s *Server) loadTemplates() error {
	login, err := template.ParseFS(templateFS, "templates/login.html")
	if err != nil {
		return fmt.Errorf("parsing login template: %w", err)
	}
	home, err := template.ParseFS(templateFS, "templates/home.html")
	if err != nil {
		return fmt.Errorf("parsing home template: %w", err)
	}
	s.templates = &templates{login: login, home: home}

	if path := s.cfg.Secure.LoginNotice; path != "" {
		md, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading login notice: %w", err)
		}
		var buf bytes.Buffer
		if err := goldmark.Convert(md, &buf); err != nil {
			return fmt.Errorf("rendering login notice: %w", err)
		}
		s.notice = template.HTML(buf.String())
	}

	return nil
}

// renderLogin is plugged into the gate as its login form renderer.
func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, data secure.LoginData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.templates.login.Execute(w, loginPageData{
		Title:     "Sign in",
		Error:     data.Flash == secure.FlashError,
		LoggedOut: data.Flash == secure.FlashLogout,
		CSRFToken: data.CSRFToken,
		Notice:    s.notice,
	})
	if err != nil {
		s.logger.Error("failed to render login page", "error", err)
	}
}

// renderHome renders the landing or admin page.
func (s *Server) renderHome(w http.ResponseWriter, username string, admin bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	title := "Home"
	if admin {
		title = "Admin"
	}
	err := s.templates.home.Execute(w, homePageData{
		Title:    title,
		Username: username,
		Admin:    admin,
	})
	if err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}
