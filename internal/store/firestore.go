// README: Firestore-backed Store implementation. One Firebase app per store
// (passenger-side and driver-side) initialised from independent service
// account credentials.
package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Firestore struct {
	client *firestore.Client
}

// NewFirestore initialises a named Firebase app from a service-account file
// and returns its Firestore client wrapped as a Store. A failure here is
// fatal to the engine; the caller is expected to exit.
func NewFirestore(ctx context.Context, credentialsFile, appName string) (*Firestore, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app %q: %w", appName, err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firestore client %q: %w", appName, err)
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client connection.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) Get(ctx context.Context, col, id string) (Doc, error) {
	snap, err := f.client.Collection(col).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, fmt.Errorf("get %s/%s: %w", col, id, err)
	}
	return Doc{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (f *Firestore) Update(ctx context.Context, col, id string, fields map[string]any) error {
	_, err := f.client.Collection(col).Doc(id).Update(ctx, toUpdates(fields))
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", col, id, err)
	}
	return nil
}

func (f *Firestore) Query(ctx context.Context, col string, q Query) ([]Doc, error) {
	it := f.buildQuery(col, q).Documents(ctx)
	defer it.Stop()

	var out []Doc
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", col, err)
		}
		out = append(out, Doc{ID: snap.Ref.ID, Data: snap.Data()})
	}
}

func (f *Firestore) Subscribe(ctx context.Context, col string, q Query, fn func(Change)) error {
	it := f.buildQuery(col, q).Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("change feed on %s: %w", col, err)
		}
		for _, ch := range snap.Changes {
			fn(Change{
				Kind: changeKind(ch.Kind),
				ID:   ch.Doc.Ref.ID,
				Data: ch.Doc.Data(),
			})
		}
	}
}

func changeKind(k firestore.DocumentChangeKind) ChangeKind {
	switch k {
	case firestore.DocumentAdded:
		return Added
	case firestore.DocumentModified:
		return Modified
	case firestore.DocumentRemoved:
		return Removed
	}
	return Modified
}

func (f *Firestore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return f.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(&fsTx{client: f.client, t: t})
	})
}

func (f *Firestore) buildQuery(col string, q Query) firestore.Query {
	ref := f.client.Collection(col)
	if q.Field == "" {
		return ref.Query
	}
	in := make([]any, len(q.In))
	for i, v := range q.In {
		in[i] = v
	}
	return ref.Where(q.Field, "in", in)
}

type fsTx struct {
	client *firestore.Client
	t      *firestore.Transaction
}

func (tx *fsTx) Get(col, id string) (Doc, error) {
	snap, err := tx.t.Get(tx.client.Collection(col).Doc(id))
	if status.Code(err) == codes.NotFound {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, err
	}
	if !snap.Exists() {
		return Doc{}, ErrNotFound
	}
	return Doc{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (tx *fsTx) Update(col, id string, fields map[string]any) error {
	return tx.t.Update(tx.client.Collection(col).Doc(id), toUpdates(fields))
}

func (tx *fsTx) Create(col string, data map[string]any) (string, error) {
	ref := tx.client.Collection(col).NewDoc()
	if err := tx.t.Create(ref, toValues(data)); err != nil {
		return "", err
	}
	return ref.ID, nil
}

func toUpdates(fields map[string]any) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: toValue(v)})
	}
	return updates
}

func toValues(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) any {
	switch v {
	case Delete:
		return firestore.Delete
	case ServerTimestamp:
		return firestore.ServerTimestamp
	}
	return v
}
