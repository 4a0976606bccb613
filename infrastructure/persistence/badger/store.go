// Package badger stores concepts and relationships in an embedded BadgerDB
// for local and offline tooling. Values are msgpack encoded.
//
// Keys (parts joined by a NUL byte):
//
//	c <concept id>              concept record
//	s <scope> <concept id>      scope index
//	e <edge id>                 edge record
//	o <source id> <edge id>     outgoing index
//	i <target id> <edge id>     incoming index
package badger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"conceptgraph/application/ports"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	apperrors "conceptgraph/pkg/errors"
	"conceptgraph/pkg/observability"
)

const sep = "\x00"

const (
	prefixConcept  = "c"
	prefixScope    = "s"
	prefixEdge     = "e"
	prefixOutgoing = "o"
	prefixIncoming = "i"
)

func key(parts ...string) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

// prefix returns key(parts...) followed by the separator so "a" never
// matches "ab"
func prefix(parts ...string) []byte {
	return append(key(parts...), sep...)
}

// Config holds configuration for the embedded store
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode, used by tests
	InMemory bool

	// SyncWrites enables synchronous writes for durability
	SyncWrites bool
}

// Store implements NodeRepository and EdgeRepository over BadgerDB
type Store struct {
	db      *badger.DB
	metrics *observability.Collector
	logger  *zap.Logger
	now     func() time.Time
}

var (
	_ ports.NodeRepository = (*Store)(nil)
	_ ports.EdgeRepository = (*Store)(nil)
)

// badgerLogger adapts zap to BadgerDB's Logger interface
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Infof(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// Open opens the database described by cfg. The caller must Close the store.
func Open(cfg Config, metrics *observability.Collector, logger *zap.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, apperrors.NewValidationError("path is required for persistent database")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, apperrors.Wrapf(err, "create database directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.Wrap(err, "open badger database")
	}
	return &Store{db: db, metrics: metrics, logger: logger, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) record(operation string, started time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBOperation(operation, "badger", started, err)
	}
}

func getValue(txn *badger.Txn, k []byte, v interface{}) (bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, v)
	})
}

func setValue(txn *badger.Txn, k []byte, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return apperrors.Wrapf(err, "encode %q", k)
	}
	return txn.Set(k, data)
}

// indexedIDs returns the last key part of every key under p, in key order
func indexedIDs(txn *badger.Txn, p []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = p

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.ValidForPrefix(p); it.Next() {
		k := it.Item().Key()
		ids = append(ids, string(k[len(p):]))
	}
	return ids
}

// Get retrieves a concept by ID; (nil, nil) when absent
func (s *Store) Get(_ context.Context, id valueobjects.ConceptID) (node *entities.ConceptNode, err error) {
	started := time.Now()
	defer func() { s.record("GetConcept", started, err) }()

	err = s.db.View(func(txn *badger.Txn) error {
		var n entities.ConceptNode
		found, err := getValue(txn, key(prefixConcept, id.String()), &n)
		if found {
			node = &n
		}
		return err
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("GetConcept", err)
	}
	return node, nil
}

// ListActive retrieves the active concepts of a scope ordered by ID
func (s *Store) ListActive(_ context.Context, scope valueobjects.ScopeID) (nodes []*entities.ConceptNode, err error) {
	started := time.Now()
	defer func() { s.record("ListConcepts", started, err) }()

	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range indexedIDs(txn, prefix(prefixScope, scope.String())) {
			var n entities.ConceptNode
			found, err := getValue(txn, key(prefixConcept, id), &n)
			if err != nil {
				return err
			}
			if found && n.Active && n.Scope == scope {
				nodes = append(nodes, &n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListConcepts", err)
	}
	return nodes, nil
}

// Save persists a concept and moves its scope index entry when the scope changed
func (s *Store) Save(_ context.Context, node *entities.ConceptNode) (err error) {
	if err := node.Validate(); err != nil {
		return err
	}

	started := time.Now()
	defer func() { s.record("SaveConcept", started, err) }()

	err = s.db.Update(func(txn *badger.Txn) error {
		var old entities.ConceptNode
		found, err := getValue(txn, key(prefixConcept, node.ID.String()), &old)
		if err != nil {
			return err
		}
		if found && old.Scope != node.Scope {
			if err := txn.Delete(key(prefixScope, old.Scope.String(), old.ID.String())); err != nil {
				return err
			}
		}
		if err := setValue(txn, key(prefixConcept, node.ID.String()), node); err != nil {
			return err
		}
		return txn.Set(key(prefixScope, node.Scope.String(), node.ID.String()), nil)
	})
	if err != nil {
		return apperrors.NewDatabaseError("SaveConcept", err)
	}
	return nil
}

// Outgoing returns active edges leaving nodeID ordered by edge ID
func (s *Store) Outgoing(_ context.Context, nodeID valueobjects.ConceptID, filter ...entities.RelationshipType) ([]*entities.ConceptEdge, error) {
	return s.edgesByIndex("OutgoingEdges", prefix(prefixOutgoing, nodeID.String()), filter)
}

// Incoming returns active edges entering nodeID ordered by edge ID
func (s *Store) Incoming(_ context.Context, nodeID valueobjects.ConceptID, filter ...entities.RelationshipType) ([]*entities.ConceptEdge, error) {
	return s.edgesByIndex("IncomingEdges", prefix(prefixIncoming, nodeID.String()), filter)
}

func (s *Store) edgesByIndex(operation string, p []byte, filter []entities.RelationshipType) (edges []*entities.ConceptEdge, err error) {
	started := time.Now()
	defer func() { s.record(operation, started, err) }()

	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range indexedIDs(txn, p) {
			var e entities.ConceptEdge
			found, err := getValue(txn, key(prefixEdge, id), &e)
			if err != nil {
				return err
			}
			if found && e.Active && e.MatchesType(filter...) {
				edges = append(edges, &e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError(operation, err)
	}
	return edges, nil
}

// Deactivate soft-deletes an edge. A missing edge yields ErrEdgeNotFound.
func (s *Store) Deactivate(_ context.Context, edgeID valueobjects.EdgeID) (err error) {
	started := time.Now()
	defer func() { s.record("DeactivateEdge", started, err) }()

	var missing bool
	err = s.db.Update(func(txn *badger.Txn) error {
		var e entities.ConceptEdge
		found, err := getValue(txn, key(prefixEdge, edgeID.String()), &e)
		if err != nil {
			return err
		}
		if !found {
			missing = true
			return nil
		}
		if !e.Deactivate(s.now()) {
			return nil
		}
		return setValue(txn, key(prefixEdge, edgeID.String()), &e)
	})
	if err != nil {
		return apperrors.NewDatabaseError("DeactivateEdge", err)
	}
	if missing {
		return apperrors.ErrEdgeNotFound.Clone().WithDetail("edge_id", edgeID.String())
	}
	return nil
}

// Upsert creates or replaces an edge and keeps both direction indexes in step
func (s *Store) Upsert(_ context.Context, scope valueobjects.ScopeID, edge *entities.ConceptEdge) (err error) {
	if err := edge.Validate(); err != nil {
		return err
	}

	started := time.Now()
	defer func() { s.record("UpsertEdge", started, err) }()

	id := edge.ID.String()
	err = s.db.Update(func(txn *badger.Txn) error {
		var old entities.ConceptEdge
		found, err := getValue(txn, key(prefixEdge, id), &old)
		if err != nil {
			return err
		}
		if found {
			if err := txn.Delete(key(prefixOutgoing, old.SourceID.String(), id)); err != nil {
				return err
			}
			if err := txn.Delete(key(prefixIncoming, old.TargetID.String(), id)); err != nil {
				return err
			}
		}
		if err := setValue(txn, key(prefixEdge, id), edge); err != nil {
			return err
		}
		if err := txn.Set(key(prefixOutgoing, edge.SourceID.String(), id), []byte(scope)); err != nil {
			return err
		}
		return txn.Set(key(prefixIncoming, edge.TargetID.String(), id), []byte(scope))
	})
	if err != nil {
		return apperrors.NewDatabaseError("UpsertEdge", err)
	}

	s.logger.Debug("Edge stored",
		zap.String("edgeID", id),
		zap.String("scope", scope.String()))
	return nil
}
