// Package enrich selects curated background text for a chat message. It is
// a pure best-effort collaborator: whatever goes wrong, the caller gets an
// empty string, never an error.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"portfolio-chat/internal/integrations/github"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ProjectSource supplies the projects snapshot. *github.Client satisfies
// this interface; a nil source disables the projects section.
type ProjectSource interface {
	RecentRepos(ctx context.Context) ([]github.Repo, error)
}

// section keyword routing. A message matching several sections gets them
// all, in this order.
var sections = []struct {
	name     string
	param    string
	keywords []string
}{
	{
		name:  "resume",
		param: "/resume",
		keywords: []string{
			"experience", "work", "job", "skill", "background",
			"career", "education", "role", "resume", "cv",
		},
	},
	{
		name:  "interests",
		param: "/interests",
		keywords: []string{"interest", "hobby", "enjoy", "passion", "free time"},
	},
	{
		name:  "projects",
		param: "",
		keywords: []string{
			"project", "repo", "github", "built", "build",
			"portfolio", "code", "open source",
		},
	},
}

// Enricher routes messages to curated parameter-store sections plus a
// lazily fetched GitHub projects snapshot.
type Enricher struct {
	params   ParamGetter
	prefix   string
	projects ProjectSource

	mu      sync.RWMutex
	cache   map[string]string
	snapped bool
	snap    string
}

func New(params ParamGetter, paramPrefix string, projects ProjectSource) (*Enricher, error) {
	if params == nil {
		return nil, errors.New("enrich: param getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("enrich: parameter prefix must not be empty")
	}
	return &Enricher{
		params:   params,
		prefix:   paramPrefix,
		projects: projects,
		cache:    map[string]string{},
	}, nil
}

// Enrich returns background text relevant to the message, or "" when
// nothing matches or a source is unavailable.
func (e *Enricher) Enrich(ctx context.Context, message string) string {
	lower := strings.ToLower(message)
	var blocks []string
	for _, sec := range sections {
		if !matches(lower, sec.keywords) {
			continue
		}
		var text string
		if sec.param != "" {
			text = e.section(ctx, sec.param)
		} else {
			text = e.projectsSnapshot(ctx)
		}
		if text != "" {
			blocks = append(blocks, text)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func matches(lowerMessage string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowerMessage, kw) {
			return true
		}
	}
	return false
}

// section returns a cached parameter-store section, fetching on first use.
func (e *Enricher) section(ctx context.Context, param string) string {
	name := e.prefix + param

	e.mu.RLock()
	cached, ok := e.cache[name]
	e.mu.RUnlock()
	if ok {
		return cached
	}

	value, err := e.params.GetParameter(ctx, name)
	if err != nil {
		slog.Warn("enrich: section unavailable", "param", name, "err", err)
		return ""
	}
	value = strings.TrimSpace(value)

	e.mu.Lock()
	e.cache[name] = value
	e.mu.Unlock()
	return value
}

// projectsSnapshot fetches recent repositories once per process and keeps
// the formatted result. A failed fetch is retried on the next call.
func (e *Enricher) projectsSnapshot(ctx context.Context) string {
	if e.projects == nil {
		return ""
	}

	e.mu.RLock()
	if e.snapped {
		defer e.mu.RUnlock()
		return e.snap
	}
	e.mu.RUnlock()

	repos, err := e.projects.RecentRepos(ctx)
	if err != nil {
		slog.Warn("enrich: projects snapshot unavailable", "err", err)
		return ""
	}

	snap := formatRepos(repos)
	e.mu.Lock()
	e.snapped = true
	e.snap = snap
	e.mu.Unlock()
	return snap
}

func formatRepos(repos []github.Repo) string {
	if len(repos) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent projects:\n")
	for _, r := range repos {
		fmt.Fprintf(&b, "- %s", r.Name)
		if r.Language != "" {
			fmt.Fprintf(&b, " (%s)", r.Language)
		}
		if r.Description != "" {
			fmt.Fprintf(&b, ": %s", r.Description)
		}
		if r.Stars > 0 {
			fmt.Fprintf(&b, " [%d stars]", r.Stars)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
