package dynamic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect/sql"
	"github.com/syssam/linkql/dialect/sql/schema"
	"github.com/syssam/linkql/privacy"
)

// Output is the output of a dynamic operation.
type Output = linkql.Output[map[string]any, map[string]any]

// Operation names accepted by Service.Do.
const (
	OpSelectOne = privacy.OpSelectOne
	OpSelectAll = privacy.OpSelectAll
	OpInsert    = privacy.OpInsert
	OpUpdate    = privacy.OpUpdate
	OpDelete    = privacy.OpDelete
)

// SelectRequest selects rows of a collection.
//
// Filters match a member or "id" by equality; a null value matches NULL
// and a list matches any of its values. Links maps link keys to their
// input, which select links ignore.
type SelectRequest struct {
	Collection string                     `json:"collection" msgpack:"collection"`
	Filters    map[string]any             `json:"filters,omitempty" msgpack:"filters"`
	Links      map[string]json.RawMessage `json:"links,omitempty" msgpack:"links"`
	OrderBy    []string                   `json:"order_by,omitempty" msgpack:"order_by"`
	Limit      *int                       `json:"limit,omitempty" msgpack:"limit"`
	Offset     *int                       `json:"offset,omitempty" msgpack:"offset"`
}

// InsertRequest inserts one row.
type InsertRequest struct {
	Collection string                     `json:"collection"`
	Data       map[string]any             `json:"data"`
	Links      map[string]json.RawMessage `json:"links,omitempty"`
}

// UpdateRequest updates the rows matching the filters. Absent members of
// Data are kept.
type UpdateRequest struct {
	Collection string                     `json:"collection"`
	Data       map[string]any             `json:"data"`
	Filters    map[string]any             `json:"filters,omitempty"`
	Links      map[string]json.RawMessage `json:"links,omitempty"`
}

// DeleteRequest deletes one row by id. Retrieve is accepted in place of
// Links; a request may set one of them.
type DeleteRequest struct {
	Collection string                     `json:"collection"`
	ID         int64                      `json:"id"`
	Links      map[string]json.RawMessage `json:"links,omitempty"`
	Retrieve   map[string]json.RawMessage `json:"retrieve,omitempty"`
}

func (r *DeleteRequest) links() (map[string]json.RawMessage, error) {
	switch {
	case len(r.Retrieve) == 0:
		return r.Links, nil
	case len(r.Links) > 0:
		return nil, linkql.NewValidationError("request", errors.New("links and retrieve are exclusive"))
	default:
		return r.Retrieve, nil
	}
}

// Service executes requests over the collections of a registry.
type Service struct {
	client *linkql.Client
	reg    *Registry
	cache  linkql.Cache
	ttl    time.Duration
	policy privacy.Policy
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache caches the responses of select requests run through Do. Writes
// invalidate the entries of the written collections and of the
// collections linked to them.
func WithCache(c linkql.Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithPolicy evaluates the policy before every request. Denied requests
// fail with an error wrapping privacy.Deny and never reach the database
// or the cache.
func WithPolicy(p privacy.Policy) ServiceOption {
	return func(s *Service) {
		s.policy = p
	}
}

// WithLogger sets the logger of the service. It defaults to the logger of
// the client.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService returns a service running the requests with the client.
func NewService(client *linkql.Client, reg *Registry, opts ...ServiceOption) *Service {
	s := &Service{client: client, reg: reg, logger: client.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry of the service.
func (s *Service) Registry() *Registry { return s.reg }

// Migrate creates the tables of the registry that do not exist yet.
func (s *Service) Migrate(ctx context.Context) error {
	return schema.Create(ctx, s.client, s.client.Dialect(), s.reg.Tables(), schema.WithLogger(s.logger))
}

// SelectOne returns the first matching row, or nil if no row matches.
func (s *Service) SelectOne(ctx context.Context, req *SelectRequest) (*Output, error) {
	if err := s.authorize(ctx, OpSelectOne, req.Collection, req.Links); err != nil {
		return nil, err
	}
	return s.selectOne(ctx, req)
}

func (s *Service) selectOne(ctx context.Context, req *SelectRequest) (*Output, error) {
	q, err := s.selectOp(req)
	if err != nil {
		return nil, err
	}
	return q.Optional(ctx, s.client)
}

// SelectAll returns the matching rows.
func (s *Service) SelectAll(ctx context.Context, req *SelectRequest) ([]*Output, error) {
	if err := s.authorize(ctx, OpSelectAll, req.Collection, req.Links); err != nil {
		return nil, err
	}
	return s.selectAll(ctx, req)
}

func (s *Service) selectAll(ctx context.Context, req *SelectRequest) ([]*Output, error) {
	q, err := s.selectOp(req)
	if err != nil {
		return nil, err
	}
	return q.All(ctx, s.client)
}

func (s *Service) selectOp(req *SelectRequest) (*linkql.SelectOp[map[string]any, map[string]any, map[string]any], error) {
	c, err := s.collection(req.Collection)
	if err != nil {
		return nil, err
	}
	links, err := s.links(c, req.Links, func(l Link, in json.RawMessage) (any, error) { return l.Select(in) })
	if err != nil {
		return nil, err
	}
	preds, err := filters(c, req.Filters)
	if err != nil {
		return nil, err
	}
	q := linkql.Select[map[string]any, map[string]any, map[string]any](c, links).Where(preds...)
	if len(req.OrderBy) > 0 {
		order := make([]string, len(req.OrderBy))
		for i, name := range req.OrderBy {
			if _, ok := c.Field(name); !ok && name != "id" {
				return nil, linkql.NewValidationError(name, fmt.Errorf("unknown order column"))
			}
			order[i] = sql.Qualify(c.Table(), name)
		}
		q.OrderBy(order...)
	}
	if req.Limit != nil {
		q.Limit(*req.Limit)
	}
	if req.Offset != nil {
		q.Offset(*req.Offset)
	}
	return q, nil
}

// Insert inserts a row and returns it.
func (s *Service) Insert(ctx context.Context, req *InsertRequest) (*Output, error) {
	if err := s.authorize(ctx, OpInsert, req.Collection, req.Links); err != nil {
		return nil, err
	}
	c, err := s.collection(req.Collection)
	if err != nil {
		return nil, err
	}
	links, err := s.links(c, req.Links, func(l Link, in json.RawMessage) (any, error) { return l.Insert(in) })
	if err != nil {
		return nil, err
	}
	return linkql.Insert[map[string]any, map[string]any, map[string]any](c, req.Data, links).Exec(ctx, s.client)
}

// Update updates the matching rows and returns them.
func (s *Service) Update(ctx context.Context, req *UpdateRequest) ([]*Output, error) {
	if err := s.authorize(ctx, OpUpdate, req.Collection, req.Links); err != nil {
		return nil, err
	}
	c, err := s.collection(req.Collection)
	if err != nil {
		return nil, err
	}
	links, err := s.links(c, req.Links, func(l Link, in json.RawMessage) (any, error) { return l.Update(in) })
	if err != nil {
		return nil, err
	}
	preds, err := filters(c, req.Filters)
	if err != nil {
		return nil, err
	}
	patch := req.Data
	if patch == nil {
		patch = map[string]any{}
	}
	return linkql.Update[map[string]any, map[string]any, map[string]any](c, patch, links).Where(preds...).Exec(ctx, s.client)
}

// Delete deletes a row and returns it as it was.
func (s *Service) Delete(ctx context.Context, req *DeleteRequest) (*Output, error) {
	input, err := req.links()
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, OpDelete, req.Collection, input); err != nil {
		return nil, err
	}
	c, err := s.collection(req.Collection)
	if err != nil {
		return nil, err
	}
	links, err := s.links(c, input, func(l Link, in json.RawMessage) (any, error) { return l.Delete(in) })
	if err != nil {
		return nil, err
	}
	return linkql.Delete[map[string]any, map[string]any, map[string]any](c, req.ID, links).Exec(ctx, s.client)
}

// Do decodes a JSON request for the operation, runs it and returns the
// JSON response.
func (s *Service) Do(ctx context.Context, op string, body []byte) ([]byte, error) {
	log := s.logger.With("request_id", uuid.NewString(), "op", op)
	switch op {
	case OpSelectOne, OpSelectAll:
		req := &SelectRequest{}
		if err := decode(body, req); err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, op, req.Collection, req.Links); err != nil {
			return nil, err
		}
		key := linkql.CacheKey{Table: req.Collection, Operation: op, Request: canonical(req)}
		if b, ok := s.cached(ctx, log, key); ok {
			return b, nil
		}
		var (
			v   any
			err error
		)
		if op == OpSelectOne {
			v, err = s.selectOne(ctx, req)
		} else {
			v, err = s.selectAll(ctx, req)
		}
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		s.store(ctx, log, key, b)
		return b, nil
	case OpInsert:
		req := &InsertRequest{}
		if err := decode(body, req); err != nil {
			return nil, err
		}
		out, err := s.Insert(ctx, req)
		if err != nil {
			return nil, err
		}
		s.invalidate(ctx, log, req.Collection, req.Links)
		return json.Marshal(out)
	case OpUpdate:
		req := &UpdateRequest{}
		if err := decode(body, req); err != nil {
			return nil, err
		}
		out, err := s.Update(ctx, req)
		if err != nil {
			return nil, err
		}
		s.invalidate(ctx, log, req.Collection, req.Links)
		return json.Marshal(out)
	case OpDelete:
		req := &DeleteRequest{}
		if err := decode(body, req); err != nil {
			return nil, err
		}
		out, err := s.Delete(ctx, req)
		if err != nil {
			return nil, err
		}
		input, _ := req.links()
		s.invalidate(ctx, log, req.Collection, input)
		return json.Marshal(out)
	default:
		return nil, fmt.Errorf("dynamic: unknown operation %q", op)
	}
}

// authorize evaluates the policy of the service for a request.
func (s *Service) authorize(ctx context.Context, op, collection string, links map[string]json.RawMessage) error {
	if len(s.policy) == 0 {
		return nil
	}
	keys := make([]string, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := s.policy.EvalRequest(ctx, &privacy.Request{Op: op, Collection: collection, Links: keys}); err != nil {
		return fmt.Errorf("dynamic: %s %s: %w", op, collection, err)
	}
	return nil
}

func (s *Service) collection(name string) (*Collection, error) {
	c, ok := s.reg.Collection(name)
	if !ok {
		return nil, linkql.NewNotFoundError("collection " + name)
	}
	return c, nil
}

// links builds the link set of a request. Every unknown key and every
// failing link is reported in one aggregate error.
func (s *Service) links(c *Collection, inputs map[string]json.RawMessage, build func(Link, json.RawMessage) (any, error)) (*linkql.Links, error) {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	set := linkql.NewLinks()
	var errs []error
	for _, k := range keys {
		l, ok := s.reg.Link(c.Table(), k)
		if !ok {
			errs = append(errs, linkql.NewValidationError(k, linkql.ErrUnusedInput))
			continue
		}
		built, err := build(l, inputs[k])
		if err != nil {
			errs = append(errs, linkql.NewValidationError(k, err))
			continue
		}
		set.Add(k, built)
	}
	if err := linkql.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return set, nil
}

// filters returns the predicates of request filters, in key order.
func filters(c *Collection, fs map[string]any) ([]sql.Binder, error) {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var (
		preds []sql.Binder
		errs  []error
	)
	for _, k := range keys {
		f, ok := c.Field(k)
		if k == "id" {
			f, ok = Field{Name: "id", Type: schema.TypeInt}, true
		}
		if !ok {
			errs = append(errs, linkql.NewValidationError(k, linkql.ErrUnusedInput))
			continue
		}
		column := sql.Qualify(c.Table(), k)
		switch v := fs[k].(type) {
		case nil:
			preds = append(preds, sql.IsNull(column))
		case []any:
			vs := make([]any, len(v))
			for i := range v {
				cv, err := f.convert(v[i])
				if err != nil {
					errs = append(errs, linkql.NewValidationError(k, err))
				}
				vs[i] = sql.Value(cv)
			}
			preds = append(preds, sql.In(column, vs...))
		default:
			cv, err := f.convert(v)
			if err != nil {
				errs = append(errs, linkql.NewValidationError(k, err))
				continue
			}
			preds = append(preds, sql.EQ(column, sql.Value(cv)))
		}
	}
	if err := linkql.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return preds, nil
}

// cachedResponse is the cache entry of a select response.
type cachedResponse struct {
	Body    []byte    `msgpack:"body"`
	Created time.Time `msgpack:"created"`
}

func (s *Service) cached(ctx context.Context, log *slog.Logger, key linkql.CacheKey) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, err := s.cache.Get(ctx, key.String())
	if err != nil || b == nil {
		if err != nil {
			log.WarnContext(ctx, "dynamic: cache get", "error", err)
		}
		return nil, false
	}
	var resp cachedResponse
	if err := msgpack.Unmarshal(b, &resp); err != nil {
		log.WarnContext(ctx, "dynamic: cache decode", "error", err)
		return nil, false
	}
	log.DebugContext(ctx, "dynamic: cache hit", "key", key.String(), "age", time.Since(resp.Created))
	return resp.Body, true
}

func (s *Service) store(ctx context.Context, log *slog.Logger, key linkql.CacheKey, body []byte) {
	if s.cache == nil {
		return
	}
	b, err := msgpack.Marshal(&cachedResponse{Body: body, Created: time.Now()})
	if err == nil {
		err = s.cache.Set(ctx, key.String(), b, s.ttl)
	}
	if err != nil {
		log.WarnContext(ctx, "dynamic: cache set", "error", err)
	}
}

// invalidate drops the cached responses of every collection depending on
// the tables written by a request.
func (s *Service) invalidate(ctx context.Context, log *slog.Logger, collection string, inputs map[string]json.RawMessage) {
	if s.cache == nil {
		return
	}
	tables := []string{collection}
	for k := range inputs {
		if l, ok := s.reg.Link(collection, k); ok {
			tables = append(tables, l.Tables()...)
		}
	}
	for _, dep := range s.reg.Dependents(tables...) {
		if err := s.cache.DeletePrefix(ctx, linkql.CacheKey{Table: dep}.Prefix()); err != nil {
			log.WarnContext(ctx, "dynamic: cache invalidate", "collection", dep, "error", err)
		}
	}
}

// canonical returns the msgpack encoding of the request with sorted map
// keys, as text.
func canonical(req *SelectRequest) string {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(req); err != nil {
		return uuid.NewString()
	}
	return fmt.Sprintf("%x", buf.Bytes())
}

// decode decodes a JSON request, rejecting unknown fields and data after
// the request object.
func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		if _, next := dec.Token(); !errors.Is(next, io.EOF) {
			err = errors.New("unexpected data after the request object")
		}
	}
	if err != nil {
		return linkql.NewValidationError("request", err)
	}
	return nil
}
