package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/minierp/core"
)

// DefaultTimeout bounds every store call made through a Gateway.
const DefaultTimeout = 5 * time.Second

// Gateway gives uniform access to the store and never lets a storage failure reach its callers:
// failed calls are logged, counted and turned into empty results.
// Callers must treat an empty result as "no data or store unreachable".
type Gateway struct {
	store   Store
	timeout time.Duration
	logger  core.Logger
	errors  *prometheus.CounterVec
}

func NewGateway(store Store, timeout time.Duration, logger core.Logger, registerer prometheus.Registerer) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	errs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstore",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Failed document store calls.",
		},
		[]string{"op", "collection"},
	)
	if registerer != nil {
		registerer.MustRegister(errs)
	}
	return &Gateway{
		store:   store,
		timeout: timeout,
		logger:  logger,
		errors:  errs,
	}
}

// Store returns the wrapped store, for callers that need the errors (e.g. write paths).
func (g *Gateway) Store() Store {
	return g.store
}

func (g *Gateway) fail(op, collection string, err error) {
	g.errors.WithLabelValues(op, collection).Inc()
	err = errors.Wrapf(err, "docstore.%s(%s)", op, collection)
	g.logger.Error(fmt.Sprintf("document store failure: %v", err), err)
}

// Get returns the document and true, or false when it is missing or the store failed.
func (g *Gateway) Get(ctx context.Context, collection, id string) (Document, bool) {
	doc, err := g.Lookup(ctx, collection, id)
	return doc, err == nil
}

// Lookup is Get for callers that tell a missing document (core.ErrNotFound) from a failed store.
func (g *Gateway) Lookup(ctx context.Context, collection, id string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	doc, err := g.store.Get(ctx, collection, id)
	if err != nil {
		if core.IsNotFound(err) {
			return Document{}, core.ErrNotFound
		}
		g.fail("get", collection, err)
		return Document{}, errors.Wrapf(err, "getting %s/%s", collection, id)
	}
	return doc, nil
}

func (g *Gateway) List(ctx context.Context, collection string) []Document {
	docs, _ := g.ListOK(ctx, collection)
	return docs
}

// ListOK is List, also reporting whether the store answered.
func (g *Gateway) ListOK(ctx context.Context, collection string) ([]Document, bool) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	docs, err := g.store.List(ctx, collection)
	if err != nil {
		g.fail("list", collection, err)
		return []Document{}, false
	}
	return docs, true
}

func (g *Gateway) Query(ctx context.Context, collection string, filter Filter) []Document {
	if !filter.Op.Valid() {
		g.fail("query", collection, errors.Errorf("invalid operator %q", filter.Op))
		return []Document{}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	docs, err := g.store.Query(ctx, collection, filter)
	if err != nil {
		g.fail("query", collection, err)
		return []Document{}
	}
	return docs
}

// Add returns the document id, or "" when the store failed.
func (g *Gateway) Add(ctx context.Context, collection string, data map[string]interface{}, id string) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	newID, err := g.store.Add(ctx, collection, data, id)
	if err != nil {
		g.fail("add", collection, err)
		return ""
	}
	return newID
}

func (g *Gateway) Update(ctx context.Context, collection, id string, partial map[string]interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.store.Update(ctx, collection, id, partial); err != nil {
		if !core.IsNotFound(err) {
			g.fail("update", collection, err)
		}
		return false
	}
	return true
}

func (g *Gateway) Delete(ctx context.Context, collection, id string) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.store.Delete(ctx, collection, id); err != nil {
		if !core.IsNotFound(err) {
			g.fail("delete", collection, err)
		}
		return false
	}
	return true
}

// Watch subscribes to the collection changes. The subscription lives until ctx is done,
// so no call timeout applies to it.
func (g *Gateway) Watch(ctx context.Context, collection string) (<-chan struct{}, error) {
	ch, err := g.store.Watch(ctx, collection)
	if err != nil {
		g.errors.WithLabelValues("watch", collection).Inc()
		return nil, errors.Wrapf(err, "docstore.watch(%s)", collection)
	}
	return ch, nil
}
