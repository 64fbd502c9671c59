package docstore

import (
	"context"
	"errors"
	"fmt"

	"smartchef/internal/config"

	"cloud.google.com/go/firestore"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps meal plans in Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	log    logrus.FieldLogger
}

// NewFirestoreStore connects to the configured Firebase project. Without a
// real project (or an emulator) it fails and callers run local-only.
func NewFirestoreStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*FirestoreStore, error) {
	if cfg.Firebase.IsDemo() && cfg.Firebase.FirestoreEmulatorHost == "" {
		return nil, errors.New("firebase project not configured")
	}

	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.Firebase.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client, log: log}, nil
}

func (s *FirestoreStore) doc(path Path) (*firestore.DocumentRef, error) {
	if !path.Complete() {
		return nil, fmt.Errorf("incomplete document path %q", path)
	}
	ref := s.client.Doc(path.String())
	if ref == nil {
		return nil, fmt.Errorf("invalid document path %q", path)
	}
	return ref, nil
}

// Subscribe listens to the document with a snapshot iterator.
func (s *FirestoreStore) Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, err
	}

	it := ref.Snapshots(ctx)
	sub := newSubscriber()

	go func() {
		defer sub.close()
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				sub.offer(Snapshot{Err: fmt.Errorf("firestore listen %s: %w", path, err)})
				return
			}

			if !snap.Exists() {
				sub.offer(Snapshot{})
				continue
			}

			var doc Document
			if err := snap.DataTo(&doc); err != nil {
				sub.offer(Snapshot{Err: fmt.Errorf("failed to decode %s: %w", path, err)})
				return
			}
			sub.offer(Snapshot{Document: doc, Exists: true})
		}
	}()

	return sub.ch, nil
}

// MergeWrite sets the given fields with MergeAll semantics.
func (s *FirestoreStore) MergeWrite(ctx context.Context, path Path, doc Document) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}

	data := make(map[string]interface{}, len(doc))
	for key, r := range doc {
		data[key] = r.Fields()
	}

	if _, err := ref.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to merge %s: %w", path, err)
	}
	return nil
}

// DeleteField removes a single field.
func (s *FirestoreStore) DeleteField(ctx context.Context, path Path, key string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}

	_, err = ref.Update(ctx, []firestore.Update{{Path: key, Value: firestore.Delete}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			s.log.WithField("path", path.String()).Debug("delete on absent document ignored")
			return nil
		}
		return fmt.Errorf("failed to delete %s from %s: %w", key, path, err)
	}
	return nil
}

// Close closes the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
