package notifications

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/pulse/pkg/community"
)

//go:embed templates.yaml
var defaultCatalog []byte

const defaultKey = "default"

// TemplateSpec is the raw copy for one kind and channel.
type TemplateSpec struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// TemplateData is the value templates execute against.
type TemplateData struct {
	Title     string
	Message   string
	Kind      community.Kind
	Recipient string
	Data      map[string]any
}

type compiled struct {
	title *template.Template
	body  *template.Template
}

// Templates renders notification copy per kind and channel.
type Templates struct {
	set map[community.Kind]map[string]compiled
}

// ParseTemplates compiles a YAML catalog of kind -> channel -> template.
func ParseTemplates(raw []byte) (*Templates, error) {
	var catalog map[community.Kind]map[string]TemplateSpec
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, errors.Join(ErrTemplate, err)
	}

	t := &Templates{set: make(map[community.Kind]map[string]compiled, len(catalog))}
	for kind, channels := range catalog {
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrTemplate, kind)
		}
		t.set[kind] = make(map[string]compiled, len(channels))
		for channel, ts := range channels {
			c, err := compile(string(kind)+"/"+channel, ts)
			if err != nil {
				return nil, err
			}
			t.set[kind][channel] = c
		}
	}
	return t, nil
}

// LoadTemplates reads and compiles a catalog file.
func LoadTemplates(path string) (*Templates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrTemplate, err)
	}
	return ParseTemplates(raw)
}

// DefaultTemplates returns the built-in catalog.
func DefaultTemplates() *Templates {
	t, err := ParseTemplates(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return t
}

func compile(name string, ts TemplateSpec) (compiled, error) {
	var c compiled
	var err error
	if ts.Title != "" {
		if c.title, err = template.New(name + "/title").Option("missingkey=zero").Parse(ts.Title); err != nil {
			return c, errors.Join(ErrTemplate, err)
		}
	}
	if ts.Body != "" {
		if c.body, err = template.New(name + "/body").Option("missingkey=zero").Parse(ts.Body); err != nil {
			return c, errors.Join(ErrTemplate, err)
		}
	}
	return c, nil
}

// Render produces the title and body for kind on channel. Lookup falls back
// from the channel entry to the kind's default entry and finally to the raw
// title and message.
func (t *Templates) Render(kind community.Kind, channel ChannelName, data TemplateData) (string, string, error) {
	var titleTpl, bodyTpl *template.Template
	if t != nil {
		if byChannel, ok := t.set[kind]; ok {
			for _, key := range []string{string(channel), defaultKey} {
				c := byChannel[key]
				if titleTpl == nil {
					titleTpl = c.title
				}
				if bodyTpl == nil {
					bodyTpl = c.body
				}
			}
		}
	}

	title, err := execute(titleTpl, data, data.Title)
	if err != nil {
		return "", "", err
	}
	body, err := execute(bodyTpl, data, data.Message)
	if err != nil {
		return "", "", err
	}
	return title, body, nil
}

func execute(tpl *template.Template, data TemplateData, fallback string) (string, error) {
	if tpl == nil {
		return fallback, nil
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", errors.Join(ErrTemplate, err)
	}
	return strings.TrimSpace(sb.String()), nil
}
