package feed

import (
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/plume/store"
)

// Newsfeed wires the engine's components around one store handle. The
// DynamoDB client is constructed by the caller and passed in; the engine
// holds no global connection state.
type Newsfeed struct {
	Store      *store.Store
	Registry   *Registry
	Activities *Activities
	Relations  *Relations

	cfg    Config
	logger *slog.Logger
}

// New creates a newsfeed engine with the default logger.
func New(client *dynamodb.Client, cfg Config) *Newsfeed {
	return NewWithLogger(client, cfg, nil)
}

// NewWithLogger creates a newsfeed engine with an explicit logger. A nil
// logger falls back to slog.Default().
func NewWithLogger(client *dynamodb.Client, cfg Config, logger *slog.Logger) *Newsfeed {
	cfg.validate()
	if logger == nil {
		logger = slog.Default()
	}

	st := store.New(client)
	registry := NewRegistry()
	return &Newsfeed{
		Store:      st,
		Registry:   registry,
		Activities: NewActivities(st, cfg, registry, logger),
		Relations:  NewRelations(st, cfg, registry, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// Feed returns the fan-out orchestrator for a registered kind, or
// ErrUnknownKind.
func (n *Newsfeed) Feed(kindName string) (*Feed, error) {
	kind, ok := n.Registry.Kind(kindName)
	if !ok {
		return nil, ErrUnknownKind
	}
	return &Feed{
		kind:       kind,
		store:      n.Store,
		registry:   n.Registry,
		activities: n.Activities,
		relations:  n.Relations,
		cfg:        n.cfg,
		logger:     n.logger,
	}, nil
}
