// Package firestore 在 Cloud Firestore 上实现全部集合，向量检索使用 FindNearest（余弦距离）。
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

// Collection names.
const (
	CollectionToneEmbeddings    = "tone_embeddings"
	CollectionMessageEmbeddings = "message_embeddings"
	CollectionAnalyses          = "tone_analysis"
	CollectionUsers             = "users"
	CollectionConversations     = "conversations"

	distanceField = "vector_distance"
)

// Store implements store.Store on Firestore.
type Store struct {
	client *firestore.Client
}

var _ store.Store = (*Store)(nil)

// New connects to projectID/databaseID. An empty databaseID selects the default database.
// FIRESTORE_EMULATOR_HOST is honoured by the client library.
func New(ctx context.Context, projectID, databaseID string) (*Store, error) {
	var (
		client *firestore.Client
		err    error
	)
	if databaseID == "" || databaseID == firestore.DefaultDatabaseID {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID), goerr.V("database_id", databaseID))
	}
	return &Store{client: client}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Collection(CollectionUsers).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return goerr.Wrap(err, "firestore ping failed")
	}
	return nil
}

type toneDoc struct {
	UserID             string             `firestore:"userId"`
	MessageID          string             `firestore:"messageId"`
	ToneVector         firestore.Vector32 `firestore:"toneVector"`
	MessageVector      firestore.Vector32 `firestore:"messageVector"`
	StyleVector        firestore.Vector32 `firestore:"styleVector"`
	Tone               string             `firestore:"tone"`
	MessageSample      string             `firestore:"messageSample"`
	Confidence         float64            `firestore:"confidence"`
	Relationship       string             `firestore:"relationship"`
	EmotionalIntensity float64            `firestore:"emotionalIntensity"`
	FormalityLevel     float64            `firestore:"formalityLevel"`
	VectorModel        string             `firestore:"vectorModel"`
	VectorDimension    int                `firestore:"vectorDimension"`
	CreatedAt          time.Time          `firestore:"createdAt"`
	// Distance is only populated on FindNearest results.
	Distance *float64 `firestore:"vector_distance,omitempty"`
}

func newToneDoc(e *tone.Embedding) toneDoc {
	return toneDoc{
		UserID:             e.UserID,
		MessageID:          e.MessageID,
		ToneVector:         firestore.Vector32(e.ToneVector),
		MessageVector:      firestore.Vector32(e.MessageVector),
		StyleVector:        firestore.Vector32(e.StyleVector),
		Tone:               e.Tone.String(),
		MessageSample:      e.MessageSample,
		Confidence:         e.Confidence,
		Relationship:       e.Relationship,
		EmotionalIntensity: e.EmotionalIntensity,
		FormalityLevel:     e.FormalityLevel,
		VectorModel:        e.VectorModel,
		VectorDimension:    e.VectorDimension,
		CreatedAt:          e.CreatedAt,
	}
}

func (d toneDoc) scored(id string) tone.Scored {
	t, _ := tone.Parse(d.Tone)
	sc := tone.Scored{Embedding: tone.Embedding{
		ID:                 id,
		UserID:             d.UserID,
		MessageID:          d.MessageID,
		ToneVector:         []float32(d.ToneVector),
		MessageVector:      []float32(d.MessageVector),
		StyleVector:        []float32(d.StyleVector),
		Tone:               t,
		MessageSample:      d.MessageSample,
		Confidence:         d.Confidence,
		Relationship:       d.Relationship,
		EmotionalIntensity: d.EmotionalIntensity,
		FormalityLevel:     d.FormalityLevel,
		VectorModel:        d.VectorModel,
		VectorDimension:    d.VectorDimension,
		CreatedAt:          d.CreatedAt,
	}}
	if d.Distance != nil {
		sc.Similarity = embedding.SimilarityFromCosineDistance(*d.Distance)
	}
	return sc
}

func (s *Store) InsertToneEmbedding(ctx context.Context, e *tone.Embedding) error {
	if e.ID == "" {
		e.ID = store.NewID()
	}
	if _, err := s.client.Collection(CollectionToneEmbeddings).Doc(e.ID).Create(ctx, newToneDoc(e)); err != nil {
		return goerr.Wrap(mapErr(err), "failed to insert tone embedding", goerr.V("id", e.ID))
	}
	return nil
}

func (s *Store) toneQuery(f store.Filter) firestore.Query {
	q := s.client.Collection(CollectionToneEmbeddings).Query
	if f.UserID != "" {
		q = q.Where("userId", "==", f.UserID)
	}
	if f.Relationship != "" {
		q = q.Where("relationship", "==", f.Relationship)
	}
	if !f.Since.IsZero() {
		q = q.Where("createdAt", ">=", f.Since)
	}
	return q
}

func (s *Store) SearchToneEmbeddings(ctx context.Context, f store.Filter, vector []float32, limit int) ([]tone.Scored, error) {
	if len(vector) == 0 {
		return nil, goerr.Wrap(store.ErrInvalidVector, "empty query vector")
	}
	if limit <= 0 {
		return nil, nil
	}

	vq := s.toneQuery(f).FindNearest("toneVector", firestore.Vector32(vector), limit,
		firestore.DistanceMeasureCosine, &firestore.FindNearestOptions{DistanceResultField: distanceField})

	var out []tone.Scored
	err := eachDoc(vq.Documents(ctx), func(doc *firestore.DocumentSnapshot) error {
		var d toneDoc
		if err := doc.DataTo(&d); err != nil {
			return goerr.Wrap(err, "corrupt tone embedding", goerr.V("id", doc.Ref.ID))
		}
		out = append(out, d.scored(doc.Ref.ID))
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "firestore vector search failed")
	}
	return store.TopK(out, limit), nil
}

func (s *Store) ListToneEmbeddings(ctx context.Context, f store.Filter, limit int) ([]tone.Embedding, error) {
	q := s.toneQuery(f).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []tone.Embedding
	err := eachDoc(q.Documents(ctx), func(doc *firestore.DocumentSnapshot) error {
		var d toneDoc
		if err := doc.DataTo(&d); err != nil {
			return goerr.Wrap(err, "corrupt tone embedding", goerr.V("id", doc.Ref.ID))
		}
		out = append(out, d.scored(doc.Ref.ID).Embedding)
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tone embeddings")
	}
	store.SortEmbeddings(out)
	return out, nil
}

type messageEmbeddingDoc struct {
	MessageID      string             `firestore:"messageId"`
	UserID         string             `firestore:"userId"`
	ConversationID string             `firestore:"conversationId"`
	ContentVector  firestore.Vector32 `firestore:"contentVector"`
	StyleVector    firestore.Vector32 `firestore:"styleVector"`
	ToneVector     firestore.Vector32 `firestore:"toneVector"`
	SemanticVector firestore.Vector32 `firestore:"semanticVector"`
	Tone           string             `firestore:"tone"`
	SentimentScore float64            `firestore:"sentimentScore"`
	EmotionalScore float64            `firestore:"emotionalScore"`
	FormalityScore float64            `firestore:"formalityScore"`
	VectorModel    string             `firestore:"vectorModel"`
	CreatedAt      time.Time          `firestore:"createdAt"`
}

func (s *Store) InsertMessageEmbedding(ctx context.Context, e *tone.MessageEmbedding) error {
	if e.ID == "" {
		e.ID = store.NewID()
	}
	doc := messageEmbeddingDoc{
		MessageID:      e.MessageID,
		UserID:         e.UserID,
		ConversationID: e.ConversationID,
		ContentVector:  firestore.Vector32(e.ContentVector),
		StyleVector:    firestore.Vector32(e.StyleVector),
		ToneVector:     firestore.Vector32(e.ToneVector),
		SemanticVector: firestore.Vector32(e.SemanticVector),
		Tone:           e.Tone.String(),
		SentimentScore: e.SentimentScore,
		EmotionalScore: e.EmotionalScore,
		FormalityScore: e.FormalityScore,
		VectorModel:    e.VectorModel,
		CreatedAt:      e.CreatedAt,
	}
	if _, err := s.client.Collection(CollectionMessageEmbeddings).Doc(e.ID).Create(ctx, doc); err != nil {
		return goerr.Wrap(mapErr(err), "failed to insert message embedding", goerr.V("id", e.ID))
	}
	return nil
}

// analysisDoc keeps the query fields flat and the full record as JSON.
type analysisDoc struct {
	UserID    string    `firestore:"userId"`
	Kind      string    `firestore:"kind"`
	Tone      string    `firestore:"primaryTone"`
	CreatedAt time.Time `firestore:"createdAt"`
	Payload   string    `firestore:"payload"`
}

func (s *Store) InsertAnalysis(ctx context.Context, r *tone.AnalysisRecord) error {
	if r.ID == "" {
		r.ID = store.NewID()
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return goerr.Wrap(err, "failed to encode analysis record")
	}
	doc := analysisDoc{
		UserID:    r.UserID,
		Kind:      string(r.Kind),
		Tone:      r.PrimaryTone.String(),
		CreatedAt: r.CreatedAt,
		Payload:   string(payload),
	}
	if _, err := s.client.Collection(CollectionAnalyses).Doc(r.ID).Create(ctx, doc); err != nil {
		return goerr.Wrap(mapErr(err), "failed to insert analysis", goerr.V("id", r.ID))
	}
	return nil
}

func (s *Store) ListAnalyses(ctx context.Context, userID string, limit int) ([]tone.AnalysisRecord, error) {
	q := s.client.Collection(CollectionAnalyses).Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []tone.AnalysisRecord
	err := eachDoc(q.Documents(ctx), func(doc *firestore.DocumentSnapshot) error {
		var d analysisDoc
		if err := doc.DataTo(&d); err != nil {
			return err
		}
		var r tone.AnalysisRecord
		if err := json.Unmarshal([]byte(d.Payload), &r); err != nil {
			return goerr.Wrap(err, "corrupt analysis payload", goerr.V("id", doc.Ref.ID))
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list analyses", goerr.V("user_id", userID))
	}
	store.SortAnalyses(out)
	return out, nil
}

type userDoc struct {
	PhoneNumber      string    `firestore:"phoneNumber"`
	Name             string    `firestore:"name"`
	Relationship     string    `firestore:"relationship"`
	PrimaryTone      string    `firestore:"primaryTone"`
	InteractionCount int       `firestore:"interactionCount"`
	LastInteraction  time.Time `firestore:"lastInteraction"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func newUserDoc(p *user.Profile) userDoc {
	return userDoc{
		PhoneNumber:      p.PhoneNumber,
		Name:             p.Name,
		Relationship:     p.Relationship,
		PrimaryTone:      p.PrimaryTone,
		InteractionCount: p.InteractionCount,
		LastInteraction:  p.LastInteraction,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (d userDoc) profile(id string) *user.Profile {
	return &user.Profile{
		ID:               id,
		PhoneNumber:      d.PhoneNumber,
		Name:             d.Name,
		Relationship:     d.Relationship,
		PrimaryTone:      d.PrimaryTone,
		InteractionCount: d.InteractionCount,
		LastInteraction:  d.LastInteraction,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (s *Store) phoneOwner(tx *firestore.Transaction, phone string) (string, error) {
	q := s.client.Collection(CollectionUsers).Where("phoneNumber", "==", phone).Limit(1)
	docs, err := tx.Documents(q).GetAll()
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].Ref.ID, nil
}

func (s *Store) CreateUser(ctx context.Context, p *user.Profile) error {
	if p.ID == "" {
		p.ID = store.NewID()
	}
	ref := s.client.Collection(CollectionUsers).Doc(p.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if p.PhoneNumber != "" {
			owner, err := s.phoneOwner(tx, p.PhoneNumber)
			if err != nil {
				return err
			}
			if owner != "" {
				return goerr.Wrap(store.ErrAlreadyExists, "phone number taken", goerr.V("phone", p.PhoneNumber))
			}
		}
		return tx.Create(ref, newUserDoc(p))
	})
	if err != nil {
		return goerr.Wrap(mapErr(err), "failed to create user", goerr.V("user_id", p.ID))
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.Profile, error) {
	doc, err := s.client.Collection(CollectionUsers).Doc(id).Get(ctx)
	if err != nil {
		return nil, goerr.Wrap(mapErr(err), "failed to get user", goerr.V("user_id", id))
	}
	var d userDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "corrupt user", goerr.V("user_id", id))
	}
	return d.profile(doc.Ref.ID), nil
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*user.Profile, error) {
	iter := s.client.Collection(CollectionUsers).Where("phoneNumber", "==", phone).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, goerr.Wrap(store.ErrNotFound, "user not found", goerr.V("phone", phone))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query user by phone", goerr.V("phone", phone))
	}
	var d userDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "corrupt user", goerr.V("user_id", doc.Ref.ID))
	}
	return d.profile(doc.Ref.ID), nil
}

func (s *Store) UpdateUser(ctx context.Context, p *user.Profile) error {
	ref := s.client.Collection(CollectionUsers).Doc(p.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var old userDoc
		if err := snap.DataTo(&old); err != nil {
			return err
		}
		if p.PhoneNumber != "" && p.PhoneNumber != old.PhoneNumber {
			owner, err := s.phoneOwner(tx, p.PhoneNumber)
			if err != nil {
				return err
			}
			if owner != "" && owner != p.ID {
				return goerr.Wrap(store.ErrAlreadyExists, "phone number taken", goerr.V("phone", p.PhoneNumber))
			}
		}
		return tx.Set(ref, newUserDoc(p))
	})
	if err != nil {
		return goerr.Wrap(mapErr(err), "failed to update user", goerr.V("user_id", p.ID))
	}
	return nil
}

type messageDoc struct {
	UserID         string            `firestore:"userId"`
	ConversationID string            `firestore:"conversationId"`
	Sender         string            `firestore:"sender"`
	Content        string            `firestore:"content"`
	Tone           string            `firestore:"detectedTone"`
	ToneConfidence float64           `firestore:"toneConfidence"`
	Metadata       map[string]string `firestore:"metadata,omitempty"`
	CreatedAt      time.Time         `firestore:"timestamp"`
}

func (s *Store) SaveMessage(ctx context.Context, m *chat.Message) error {
	if m.ID == "" {
		m.ID = store.NewID()
	}
	doc := messageDoc{
		UserID:         m.UserID,
		ConversationID: m.ConversationID,
		Sender:         m.Sender,
		Content:        m.Content,
		Tone:           m.Tone,
		ToneConfidence: m.ToneConfidence,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
	if _, err := s.client.Collection(CollectionConversations).Doc(m.ID).Create(ctx, doc); err != nil {
		return goerr.Wrap(mapErr(err), "failed to save message", goerr.V("message_id", m.ID))
	}
	return nil
}

func (s *Store) History(ctx context.Context, userID, conversationID string, limit int) ([]chat.Message, error) {
	q := s.client.Collection(CollectionConversations).Where("userId", "==", userID)
	if conversationID != "" {
		q = q.Where("conversationId", "==", conversationID)
	}
	q = q.OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []chat.Message
	err := eachDoc(q.Documents(ctx), func(doc *firestore.DocumentSnapshot) error {
		var d messageDoc
		if err := doc.DataTo(&d); err != nil {
			return err
		}
		out = append(out, chat.Message{
			ID:             doc.Ref.ID,
			UserID:         d.UserID,
			ConversationID: d.ConversationID,
			Sender:         d.Sender,
			Content:        d.Content,
			Tone:           d.Tone,
			ToneConfidence: d.ToneConfidence,
			Metadata:       d.Metadata,
			CreatedAt:      d.CreatedAt,
		})
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load history", goerr.V("user_id", userID))
	}
	store.SortMessages(out)
	return out, nil
}

func eachDoc(iter *firestore.DocumentIterator, fn func(*firestore.DocumentSnapshot) error) error {
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

// mapErr translates gRPC status codes into store sentinels.
func mapErr(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return errors.Join(store.ErrNotFound, err)
	case codes.AlreadyExists:
		return errors.Join(store.ErrAlreadyExists, err)
	}
	return err
}
