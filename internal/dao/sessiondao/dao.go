package sessiondao

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/socialauth/internal/models"
)

const (
	sessionSK       = "SESSION"
	defaultTTLHours = 24 * 7 // Auto-expire sessions after 7 days
)

// TableName returns the session table for env, e.g. dev-socialauth--sessions
func TableName(env string) string {
	return fmt.Sprintf("%s-socialauth--sessions", env)
}

// Record represents a stored login session
type Record struct {
	PK          string `ddb:"hash" dynamodbav:"pk"`  // Session KSUID
	SK          string `ddb:"range" dynamodbav:"sk"` // Always "SESSION"
	Provider    string `dynamodbav:"provider"`
	State       string `dynamodbav:"state"`
	Stage       string `dynamodbav:"stage"`
	RedirectURI string `dynamodbav:"redirect_uri,omitempty"`
	AccessToken string `dynamodbav:"access_token,omitempty"`
	Expiry      int64  `dynamodbav:"expiry,omitempty"` // Unix timestamp when the access token expires
	Profile     string `dynamodbav:"profile,omitempty"` // Profile JSON
	CreatedAt   int64  `dynamodbav:"created_at"`
	TTL         int64  `dynamodbav:"ttl"` // Unix timestamp for DynamoDB TTL expiry
}

// Session converts the record back into a models.Session
func (r *Record) Session() (*models.Session, error) {
	session := &models.Session{
		ID:          r.PK,
		Provider:    r.Provider,
		State:       r.State,
		Stage:       models.Stage(r.Stage),
		RedirectURI: r.RedirectURI,
		AccessToken: r.AccessToken,
		CreatedAt:   time.Unix(r.CreatedAt, 0).UTC(),
	}
	if r.Expiry > 0 {
		session.Expiry = time.Unix(r.Expiry, 0).UTC()
	}
	if r.Profile != "" {
		var profile models.Profile
		if err := json.Unmarshal([]byte(r.Profile), &profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile for session %s: %w", r.PK, err)
		}
		session.Profile = &profile
	}
	return session, nil
}

// DAO provides data access operations for login sessions
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
	ttl   time.Duration
}

// New creates a new DAO instance. A ttl <= 0 uses the 7 day default.
func New(client *dynamodb.Client, tableName string, ttl time.Duration) *DAO {
	if ttl <= 0 {
		ttl = defaultTTLHours * time.Hour
	}

	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
		ttl:   ttl,
	}
}

// CreateTableIfNotExists creates the session table
func (d *DAO) CreateTableIfNotExists(ctx context.Context) error {
	return d.table.CreateTableIfNotExists(ctx)
}

// Save writes the session, replacing any previous version
func (d *DAO) Save(ctx context.Context, session *models.Session) error {
	record := &Record{
		PK:          session.ID,
		SK:          sessionSK,
		Provider:    session.Provider,
		State:       session.State,
		Stage:       string(session.Stage),
		RedirectURI: session.RedirectURI,
		AccessToken: session.AccessToken,
		CreatedAt:   session.CreatedAt.Unix(),
		TTL:         time.Now().Add(d.ttl).Unix(),
	}
	if !session.Expiry.IsZero() {
		record.Expiry = session.Expiry.Unix()
	}
	if session.Profile != nil {
		data, err := json.Marshal(session.Profile)
		if err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		record.Profile = string(data)
	}

	if err := d.table.Put(record).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Find retrieves a session by id
// Returns nil if not found or past its TTL (DynamoDB deletes expired items lazily)
func (d *DAO) Find(ctx context.Context, id string) (*models.Session, error) {
	var record Record

	err := d.table.Get(id).
		Range(sessionSK).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if record.PK == "" {
		return nil, nil
	}
	if record.TTL > 0 && time.Now().Unix() > record.TTL {
		return nil, nil
	}

	return record.Session()
}

// Delete removes a session record
func (d *DAO) Delete(ctx context.Context, id string) error {
	err := d.table.Delete(id).
		Range(sessionSK).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
