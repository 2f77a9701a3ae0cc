// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

// placeholderRe matches a `{{var}}` placeholder. The name may be a dotted
// path into the instantiation vars ("limits.max", "steps.0.tool").
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_][A-Za-z0-9_.-]*)\s*\}\}`)

// TemplateStore is an in-memory catalog.TemplateRegistry: named workflow
// spec templates whose `{{var}}` placeholders are substituted from a vars
// map at instantiation time. Registration happens at wiring time (the
// embedding binary registers its templates once); Get/Instantiate run on
// the request path.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]json.RawMessage
}

// NewTemplateStore constructs an empty TemplateStore.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{templates: make(map[string]json.RawMessage)}
}

// Register stores spec under name, replacing any previous template of
// that name.
func (s *TemplateStore) Register(name string, spec map[string]any) error {
	raw, err := json.Marshal(spec)
	if err != nil {
		return mcperrors.NewInvalidArgumentError("workflow template is not JSON-encodable", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = raw
	return nil
}

// List returns the registered template names, sorted.
func (s *TemplateStore) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Get returns a copy of the named template, or ErrNotFound.
func (s *TemplateStore) Get(_ context.Context, name string) (map[string]any, error) {
	s.mu.RLock()
	raw, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return nil, mcperrors.New(mcperrors.ErrNotFound, fmt.Sprintf("no workflow template named %q", name), nil)
	}
	var tmpl map[string]any
	if err := json.Unmarshal(raw, &tmpl); err != nil {
		return nil, mcperrors.NewInternalError("stored workflow template is corrupt", err)
	}
	return tmpl, nil
}

// Instantiate substitutes every `{{var}}` placeholder in template with the
// matching value from vars. A string value that is exactly one placeholder
// is replaced by the variable's value with its JSON type preserved (so
// `"{{count}}"` with count=3 becomes the number 3, not "3"); placeholders
// embedded in a longer string are spliced in textually. A placeholder with
// no binding in vars fails the whole instantiation.
func (s *TemplateStore) Instantiate(_ context.Context, template map[string]any, vars map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(template)
	if err != nil {
		return nil, mcperrors.NewInvalidArgumentError("workflow template is not JSON-encodable", err)
	}
	varsRaw, err := json.Marshal(vars)
	if err != nil {
		return nil, mcperrors.NewInvalidArgumentError("template vars are not JSON-encodable", err)
	}

	out := raw
	var substErr error

	// Walk the template's leaves; substitution only ever replaces leaf
	// values, so the paths read from the original stay valid against out.
	var walk func(prefix string, value gjson.Result)
	walk = func(prefix string, value gjson.Result) {
		isArray := value.IsArray()
		value.ForEach(func(key, val gjson.Result) bool {
			if substErr != nil {
				return false
			}
			var path string
			if isArray {
				path = prefix + "." + key.String()
				if prefix == "" {
					path = key.String()
				}
			} else {
				comp := gjson.Escape(key.String())
				path = prefix + "." + comp
				if prefix == "" {
					path = comp
				}
			}
			switch {
			case val.IsObject() || val.IsArray():
				walk(path, val)
			case val.Type == gjson.String:
				out = s.substitute(out, varsRaw, path, val.String(), &substErr)
			}
			return true
		})
	}
	walk("", gjson.ParseBytes(raw))
	if substErr != nil {
		return nil, substErr
	}

	var instantiated map[string]any
	if err := json.Unmarshal(out, &instantiated); err != nil {
		return nil, mcperrors.NewInternalError("instantiated template is not valid JSON", err)
	}
	return instantiated, nil
}

func (s *TemplateStore) substitute(out, varsRaw []byte, path, str string, substErr *error) []byte {
	if m := placeholderRe.FindStringSubmatch(str); m != nil && m[0] == str {
		v := gjson.GetBytes(varsRaw, m[1])
		if !v.Exists() {
			*substErr = mcperrors.New(mcperrors.ErrInvalidParams, fmt.Sprintf("template placeholder %q has no binding", m[1]), nil)
			return out
		}
		replaced, err := sjson.SetRawBytes(out, path, []byte(v.Raw))
		if err != nil {
			*substErr = mcperrors.NewInternalError("failed to substitute template placeholder", err)
			return out
		}
		return replaced
	}

	replaced := placeholderRe.ReplaceAllStringFunc(str, func(ph string) string {
		name := placeholderRe.FindStringSubmatch(ph)[1]
		v := gjson.GetBytes(varsRaw, name)
		if !v.Exists() {
			*substErr = mcperrors.New(mcperrors.ErrInvalidParams, fmt.Sprintf("template placeholder %q has no binding", name), nil)
			return ph
		}
		return v.String()
	})
	if *substErr != nil || replaced == str {
		return out
	}
	updated, err := sjson.SetBytes(out, path, replaced)
	if err != nil {
		*substErr = mcperrors.NewInternalError("failed to substitute template placeholder", err)
		return out
	}
	return updated
}
