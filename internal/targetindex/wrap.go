package targetindex

import (
	"context"

	"github.com/edgefleet/otaupdater/internal/model"
)

// Source is the subset of controller.MetadataSource this package consumes;
// kept local to avoid an import of the controller package.
type Source interface {
	Targets(ctx context.Context) ([]model.Target, error)
}

// indexingSource decorates a Source, recording every fetched Target into an
// Index so a DeploymentAdapter built from the same Index can later resolve
// commit hashes back to full Target values.
type indexingSource struct {
	inner Source
	index *Index
}

// Wrap decorates inner so every successful fetch also updates index. Use the
// result as the controller.MetadataSource passed to controller.New.
func Wrap(inner Source, index *Index) Source {
	return indexingSource{inner: inner, index: index}
}

func (s indexingSource) Targets(ctx context.Context) ([]model.Target, error) {
	targets, err := s.inner.Targets(ctx)
	if err != nil {
		return nil, err
	}
	s.index.Update(targets)
	return targets, nil
}
