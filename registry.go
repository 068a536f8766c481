package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/labels"
)

type discoverer interface {
	ListContainers(ctx context.Context) ([]runtimeContainer, error)
}

// registry keeps the containers seen by the previous snapshot so that a
// container which stopped between two cycles still gets its tail collected
// once more.
type registry struct {
	discover  discoverer
	nameLabel string
	selector  labels.Selector
	previous  []container
}

func newRegistry(d discoverer, nameLabel string, selector labels.Selector) *registry {
	if selector == nil {
		selector = labels.Everything()
	}
	return &registry{
		discover:  d,
		nameLabel: nameLabel,
		selector:  selector,
	}
}

func (r *registry) snapshot(ctx context.Context) ([]container, error) {
	listed, err := r.discover.ListContainers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list containers")
	}
	live := make([]container, 0, len(listed))
	seen := map[container]struct{}{}
	for _, c := range listed {
		if !r.selector.Matches(labels.Set(c.Labels)) {
			continue
		}
		ct := container{ID: c.ID, Name: r.resolveName(c)}
		if _, dup := seen[ct]; dup {
			continue
		}
		seen[ct] = struct{}{}
		live = append(live, ct)
	}
	all := make([]container, len(live), len(live)+len(r.previous))
	copy(all, live)
	for _, p := range r.previous {
		if _, exists := seen[p]; exists {
			continue
		}
		seen[p] = struct{}{}
		logrus.WithFields(logrus.Fields{
			"id":   shortID(p.ID),
			"name": p.Name,
		}).Debug("container is gone, collecting its logs one last time")
		all = append(all, p)
	}
	r.previous = live
	return all, nil
}

func (r *registry) resolveName(c runtimeContainer) string {
	if r.nameLabel != "" {
		if name := c.Labels[r.nameLabel]; name != "" {
			return name
		}
	}
	var name string
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	logrus.WithFields(logrus.Fields{
		"id":    shortID(c.ID),
		"label": r.nameLabel,
	}).Infof("instance name label is not set, using first name %q as name", name)
	return name
}

func shortID(id string) string {
	if len(id) > maxContainerIDLength {
		return id[:maxContainerIDLength]
	}
	return id
}
