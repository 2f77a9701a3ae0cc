// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"regexp"

	"github.com/tool-mesh/mcpcore/pkg/catalog"
	mcperrors "github.com/tool-mesh/mcpcore/pkg/errors"
)

// uriPattern validates the `<scheme>://<type>/<id>` shape resource URIs
// requires for resource URIs. Additional schemes beyond workspace/memory
// are accepted verbatim, per §6, as long as they fit the general shape.
var uriPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[^/]+/.+$`)

// ResourceDTO is one entry of the resources/list response.
type ResourceDTO struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResources implements resources/list.
func (b *Bridge) ListResources(ctx context.Context) ([]ResourceDTO, error) {
	resources, err := b.Catalog.ListResources(ctx)
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to list resources", err)
	}
	out := make([]ResourceDTO, 0, len(resources))
	for _, r := range resources {
		out = append(out, ResourceDTO{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MimeType})
	}
	return out, nil
}

// ReadResource implements resources/read. An invalid URI, or one the
// catalog does not recognize, yields ErrResourceNotFound (-32001).
func (b *Bridge) ReadResource(ctx context.Context, uri string) (*ToolCallResult, error) {
	if !uriPattern.MatchString(uri) {
		return nil, mcperrors.NewResourceNotFoundError("invalid resource uri: "+uri, nil)
	}

	res, err := b.Catalog.ReadResource(ctx, uri)
	if err != nil {
		var nf *catalog.NotFound
		if asNotFound(err, &nf) {
			return nil, mcperrors.NewResourceNotFoundError("resource not found: "+uri, err)
		}
		return nil, mcperrors.NewInternalError("failed to read resource", err)
	}

	return &ToolCallResult{
		Content:  resultContent(res),
		Metadata: ResultMetadata{Tool: uri},
	}, nil
}

// PromptDTO is one entry of the prompts/list response.
type PromptDTO struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Arguments   []catalog.ParamDescriptor `json:"arguments,omitempty"`
}

// ListPrompts implements prompts/list.
func (b *Bridge) ListPrompts(ctx context.Context) ([]PromptDTO, error) {
	prompts, err := b.Catalog.ListPrompts(ctx)
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to list prompts", err)
	}
	out := make([]PromptDTO, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, PromptDTO{Name: p.Name, Description: p.Description, Arguments: p.Arguments})
	}
	return out, nil
}

// GetPrompt implements prompts/get.
func (b *Bridge) GetPrompt(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	res, err := b.Catalog.GetPrompt(ctx, name, args)
	if err != nil {
		var nf *catalog.NotFound
		if asNotFound(err, &nf) {
			return nil, mcperrors.NewResourceNotFoundError("prompt not found: "+name, err)
		}
		return nil, mcperrors.NewInternalError("failed to resolve prompt", err)
	}
	return &ToolCallResult{
		Content:  resultContent(res),
		Metadata: ResultMetadata{Tool: name},
	}, nil
}
