package adapter

import (
	"context"

	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
	"github.com/78Spinoza/claudeproxy/pkg/backend"
	"github.com/78Spinoza/claudeproxy/pkg/registry"
	"github.com/78Spinoza/claudeproxy/pkg/selector"
)

// XAI forwards translated requests unchanged. No interception.
type XAI struct {
	core
}

func NewXAI(reg *registry.Registry, sel *selector.Selector, client *backend.Client) *XAI {
	return &XAI{core: core{reg: reg, sel: sel, client: client}}
}

func (a *XAI) Name() string { return "xai" }

func (a *XAI) Handle(ctx context.Context, req *anthropic.Request) (*anthropic.MessageResponse, error) {
	return a.handle(ctx, req)
}

func (a *XAI) HandleStream(ctx context.Context, req *anthropic.Request) (<-chan anthropic.StreamEvent, error) {
	return a.handleStream(ctx, req)
}
