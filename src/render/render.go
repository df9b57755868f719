// Package render writes instance-specific configuration files into a
// freshly materialized instance directory. The engine treats a Renderer as
// an external collaborator; the implementations here cover the common
// case of a directory of text templates plus a YAML description of the
// instance.
package render

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"instance-provision/src/instance"
)

var log = logrus.WithField("pkg", "render")

// TemplateSuffix marks files rendered by TemplateRenderer.
const TemplateSuffix = ".tmpl"

// ManifestFileName is the file written by ManifestRenderer.
const ManifestFileName = "instance.yml"

// Renderer writes configuration for spec into dir.
type Renderer interface {
	Render(ctx context.Context, dir string, spec instance.Spec) error
}

// Func adapts a function to Renderer.
type Func func(ctx context.Context, dir string, spec instance.Spec) error

func (f Func) Render(ctx context.Context, dir string, spec instance.Spec) error {
	return f(ctx, dir, spec)
}

// Nop renders nothing.
var Nop Renderer = Func(func(context.Context, string, instance.Spec) error { return nil })

// Chain runs renderers in order and stops at the first error.
type Chain []Renderer

func (c Chain) Render(ctx context.Context, dir string, spec instance.Spec) error {
	for _, r := range c {
		if r == nil {
			continue
		}
		if err := r.Render(ctx, dir, spec); err != nil {
			return err
		}
	}
	return nil
}

// Data is what templates see: {{ .Server.Name }}, {{ .Network.network_name }}.
type Data struct {
	Server  instance.Spec
	Network map[string]string
}

// TemplateRenderer renders every *.tmpl file below Dir to the same
// relative path inside the instance, minus the suffix.
type TemplateRenderer struct {
	Dir string
	// Network holds network-wide variables exposed to every template.
	Network map[string]string
}

func (r *TemplateRenderer) Render(ctx context.Context, dir string, spec instance.Spec) error {
	if r.Dir == "" {
		return nil
	}
	data := Data{Server: spec, Network: r.Network}
	rendered := 0
	err := filepath.WalkDir(r.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), TemplateSuffix) {
			return nil
		}
		rel, err := filepath.Rel(r.Dir, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dir, strings.TrimSuffix(rel, TemplateSuffix))
		if err := renderFile(path, out, data); err != nil {
			return err
		}
		rendered++
		return nil
	})
	if err != nil {
		return oops.In("render").With("templates", r.Dir).With("instance", dir).Wrapf(err, "render config templates")
	}
	log.WithFields(logrus.Fields{
		"at":       "render.TemplateRenderer.Render",
		"instance": dir,
		"files":    rendered,
	}).Debug("config_templates_rendered")
	return nil
}

func renderFile(src, dst string, data Data) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	tmpl, err := template.New(filepath.Base(src)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return oops.With("template", src).Wrapf(err, "parse template")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		return oops.With("template", src).Wrapf(err, "execute template")
	}
	return f.Close()
}

// ManifestRenderer writes a YAML description of the instance to
// <dir>/<Path>, defaulting to instance.yml.
type ManifestRenderer struct {
	Path string
}

type manifest struct {
	Server     instance.Spec `yaml:"server"`
	WorldCopy  string        `yaml:"world_copy"`
	PlayerData bool          `yaml:"player_data"`
	Logs       bool          `yaml:"logs"`
}

func (r ManifestRenderer) Render(_ context.Context, dir string, spec instance.Spec) error {
	name := r.Path
	if name == "" {
		name = ManifestFileName
	}
	out := filepath.Join(dir, name)
	data, err := yaml.Marshal(manifest{
		Server:     spec,
		WorldCopy:  spec.Options.WorldCopy.String(),
		PlayerData: spec.Options.SyncPlayerData,
		Logs:       spec.Options.SyncLogs,
	})
	if err != nil {
		return oops.In("render").Wrapf(err, "encode instance manifest")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return oops.In("render").With("path", out).Wrapf(err, "create manifest directory")
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return oops.In("render").With("path", out).Wrapf(err, "write instance manifest")
	}
	return nil
}

// ReadManifest loads a manifest written by ManifestRenderer.
func ReadManifest(path string) (instance.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return instance.Spec{}, oops.In("render").With("path", path).Wrapf(err, "read instance manifest")
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return instance.Spec{}, oops.In("render").With("path", path).Wrapf(err, "decode instance manifest")
	}
	copyType, err := instance.ParseCopyType(m.WorldCopy)
	if err != nil {
		return instance.Spec{}, oops.In("render").With("path", path).Wrapf(err, "decode instance manifest")
	}
	spec := m.Server
	spec.Options.WorldCopy = copyType
	spec.Options.SyncPlayerData = m.PlayerData
	spec.Options.SyncLogs = m.Logs
	return spec, nil
}
