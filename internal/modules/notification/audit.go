// README: Notification audit trail stored in MongoDB.
package notification

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rxflow/internal/types"
)

type Action string

const (
	ActionCreated    Action = "created"
	ActionDispatched Action = "dispatched"
)

type AuditEntry struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	NotificationID string    `bson:"notification_id" json:"notificationId"`
	Action         Action    `bson:"action" json:"action"`
	Channel        Channel   `bson:"channel" json:"channel"`
	OrderID        string    `bson:"order_id,omitempty" json:"orderId,omitempty"`
	Sent           int       `bson:"sent" json:"sent"`
	Failed         int       `bson:"failed" json:"failed"`
	Pending        int       `bson:"pending" json:"pending"`
	Failures       bson.M    `bson:"failures,omitempty" json:"failures,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}

func newAuditEntry(action Action, n *Notification, at time.Time) AuditEntry {
	sent, failed, pending := n.Counts()
	e := AuditEntry{
		NotificationID: n.ID.String(),
		Action:         action,
		Channel:        n.Channel,
		OrderID:        n.OrderID.String(),
		Sent:           sent,
		Failed:         failed,
		Pending:        pending,
		CreatedAt:      at,
	}
	if failed > 0 {
		e.Failures = bson.M{}
		for _, r := range n.Recipients {
			if r.Status == RecipientFailed {
				e.Failures[r.UserID.String()] = r.FailureReason
			}
		}
	}
	return e
}

type Auditor interface {
	Record(ctx context.Context, e AuditEntry) error
	History(ctx context.Context, notificationID types.ID, limit int64) ([]AuditEntry, error)
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEntry) error { return nil }

func (nopAuditor) History(context.Context, types.ID, int64) ([]AuditEntry, error) { return nil, nil }

type MongoAuditor struct {
	collection *mongo.Collection
}

func NewMongoAuditor(db *mongo.Database, collection string) *MongoAuditor {
	return &MongoAuditor{collection: db.Collection(collection)}
}

func (a *MongoAuditor) Record(ctx context.Context, e AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := a.collection.InsertOne(ctx, e)
	return err
}

// History returns the newest entries for one notification first.
func (a *MongoAuditor) History(ctx context.Context, notificationID types.ID, limit int64) ([]AuditEntry, error) {
	filter := bson.M{"notification_id": notificationID.String()}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EnsureIndexes creates the lookup indexes used by History and order views.
func (a *MongoAuditor) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "notification_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("notification_created"),
		},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().
				SetName("order_lookup").
				SetPartialFilterExpression(bson.M{"order_id": bson.M{"$exists": true}}),
		},
	})
	return err
}

// History exposes the audit trail of one notification.
func (s *Service) History(ctx context.Context, id types.ID, limit int64) ([]AuditEntry, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.auditor.History(ctx, id, limit)
}
