package sink

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"biotune/backend/services/bridge-service/internal/models"
)

// documentSetter is the part of *firestore.DocumentRef the sink writes through.
type documentSetter interface {
	Set(ctx context.Context, data interface{}, opts ...firestore.SetOption) (*firestore.WriteResult, error)
}

// FirestoreSink overwrites one Firestore document with the latest reading.
type FirestoreSink struct {
	client *firestore.Client
	doc    documentSetter
	field  string
}

// NewFirestoreSink connects with the service account key in
// cfg.CredentialsFile, or Application Default Credentials when it is empty.
// The client refreshes access tokens itself and honours FIRESTORE_EMULATOR_HOST.
func NewFirestoreSink(ctx context.Context, cfg FirestoreConfig) (*FirestoreSink, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	s := newFirestoreSink(client.Collection(cfg.Collection).Doc(cfg.Document), cfg.Field)
	s.client = client
	return s, nil
}

func newFirestoreSink(doc documentSetter, field string) *FirestoreSink {
	return &FirestoreSink{doc: doc, field: field}
}

// Name implements Sink.
func (s *FirestoreSink) Name() string { return DriverFirestore }

// Upload implements Sink. Only the reading fields are merged, so other
// fields on the document survive.
func (s *FirestoreSink) Upload(ctx context.Context, r models.Reading) error {
	data := map[string]interface{}{
		s.field:      r.Value,
		"observedAt": r.ObservedAt.UTC(),
		"sessionId":  r.SessionID,
	}
	if _, err := s.doc.Set(ctx, data, firestore.MergeAll); err != nil {
		return uploadFailed(s.Name(), err)
	}
	return nil
}

// Close releases the client connection.
func (s *FirestoreSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ Sink = (*FirestoreSink)(nil)
