// Package content resolves off-ledger token metadata. The ledger stores only
// a content URI per property; the descriptive payload lives in a
// content-addressed store reached through an HTTP gateway.
package content

import "context"

// Metadata is the descriptive document a property's token URI points at.
type Metadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       string         `json:"image"`
	Attributes  []Attribute    `json:"attributes,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Attribute is one display trait of the asset.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// Resolver fetches metadata for a token URI. Implementations must treat the
// result as immutable: a content-addressed URI always resolves to the same
// document.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (*Metadata, error)
}

// Publisher uploads a metadata document and returns its content URI.
type Publisher interface {
	Publish(ctx context.Context, meta *Metadata) (string, error)
}
