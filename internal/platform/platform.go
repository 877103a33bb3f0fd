// Package platform lists the third-party stock and social platforms an
// image can be distributed to. Publishing is simulated: no external API is
// called and the returned ids are synthetic.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrUnknownPlatform is returned for an id missing from the catalog.
var ErrUnknownPlatform = errors.New("unknown platform")

// ErrRejected is returned when a platform refuses the image.
var ErrRejected = errors.New("rejected by platform")

// Platform describes one distribution target.
type Platform struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	AcceptedTypes []string `json:"acceptedTypes"`
}

func (p Platform) accepts(contentType string) bool {
	for _, t := range p.AcceptedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

// Request is what a platform receives when an image is pushed to it.
type Request struct {
	DistributionID string
	ImageID        string
	ContentType    string
}

// Catalog holds the known platforms in display order.
type Catalog struct {
	platforms []Platform
	byID      map[string]Platform
}

func NewCatalog(platforms ...Platform) *Catalog {
	c := &Catalog{byID: make(map[string]Platform, len(platforms))}
	for _, p := range platforms {
		c.platforms = append(c.platforms, p)
		c.byID[p.ID] = p
	}
	return c
}

// DefaultCatalog returns the built-in stub platforms.
func DefaultCatalog() *Catalog {
	stock := []string{"image/jpeg", "image/tiff"}
	social := []string{"image/jpeg", "image/png", "image/webp"}
	return NewCatalog(
		Platform{ID: "adobe_stock", Name: "Adobe Stock", Kind: "stock", AcceptedTypes: stock},
		Platform{ID: "shutterstock", Name: "Shutterstock", Kind: "stock", AcceptedTypes: stock},
		Platform{ID: "getty", Name: "Getty Images", Kind: "stock", AcceptedTypes: stock},
		Platform{ID: "instagram", Name: "Instagram", Kind: "social", AcceptedTypes: social},
		Platform{ID: "pinterest", Name: "Pinterest", Kind: "social", AcceptedTypes: social},
	)
}

// List returns a copy of the catalog.
func (c *Catalog) List() []Platform {
	out := make([]Platform, len(c.platforms))
	copy(out, c.platforms)
	return out
}

func (c *Catalog) Lookup(id string) (Platform, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Publish simulates pushing an image to platformID and returns the id the
// platform would assign.
func (c *Catalog) Publish(_ context.Context, platformID string, req Request) (string, error) {
	p, ok := c.byID[platformID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlatform, platformID)
	}
	if !p.accepts(req.ContentType) {
		return "", fmt.Errorf("%w: %s does not accept %s", ErrRejected, p.Name, req.ContentType)
	}
	return p.ID + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12], nil
}
