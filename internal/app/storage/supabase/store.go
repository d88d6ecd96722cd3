// Package supabase implements the storage interfaces over the Supabase
// PostgREST API. It expects the schema from internal/platform/migrations and
// a service-role key, since row level security is enforced by this service.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/R3E-Network/agency_layer/internal/app/storage"
	sbclient "github.com/R3E-Network/agency_layer/supabase/client"
)

// Store implements storage.Store over PostgREST.
type Store struct {
	client *sbclient.Client
}

var _ storage.Store = (*Store)(nil)

// New wraps a configured Supabase client.
func New(client *sbclient.Client) *Store {
	return &Store{client: client}
}

func newID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return uuid.NewString()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
}

func (s *Store) from(table string) *sbclient.QueryBuilder {
	return s.client.From(table).Select("*")
}

func (s *Store) scoped(table, agencyID, id string) *sbclient.QueryBuilder {
	return s.from(table).Eq("agency_id", agencyID).Eq("id", id)
}

// one fetches a single row into dst.
func (s *Store) one(ctx context.Context, q *sbclient.QueryBuilder, dst any, kind, id string) error {
	err := q.Single().Fetch(ctx, dst)
	if sbclient.IsNotFound(err) {
		return notFound(kind, id)
	}
	return err
}

// rows decodes a mutation's returned representation.
func rows[T any](resp *sbclient.Response, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var out []T
	if len(resp.Body) == 0 {
		return out, nil
	}
	if err := resp.JSON(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func insert[T any](ctx context.Context, s *Store, table string, row any) (T, error) {
	var zero T
	out, err := rows[T](s.client.From(table).ExecuteInsert(ctx, row))
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%s: insert returned no rows", table)
	}
	return out[0], nil
}

func update[T any](ctx context.Context, q *sbclient.QueryBuilder, kind, id string, body map[string]any) (T, error) {
	var zero T
	out, err := rows[T](q.ExecuteUpdate(ctx, body))
	if err != nil {
		return zero, err
	}
	if len(out) == 0 {
		return zero, notFound(kind, id)
	}
	return out[0], nil
}

func remove(ctx context.Context, q *sbclient.QueryBuilder, kind, id string) error {
	out, err := rows[json.RawMessage](q.ExecuteDelete(ctx))
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return notFound(kind, id)
	}
	return nil
}

// patch encodes v as a column map for PATCH. Keys in always are sent even
// when v's JSON omits them, so optional columns can be cleared. created_at is
// never rewritten.
func patch(v any, always map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	body := make(map[string]any)
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	for k, zero := range always {
		if _, ok := body[k]; !ok {
			body[k] = zero
		}
	}
	delete(body, "created_at")
	return body, nil
}

func quoted(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
