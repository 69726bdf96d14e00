package board

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messageboard/models"
	"messageboard/store"
)

type recordingPublisher struct {
	err  error
	msgs []models.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg models.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type failingRepo struct{ store.Repository }

func (failingRepo) InsertMessage(context.Context, models.Message) error {
	return errors.New("disk full")
}

func TestCreatePersistsBeforePublishing(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryStore()
	at := time.Date(2024, 1, 2, 3, 4, 5, 678901234, time.UTC)
	var seen []models.Message
	pub := publisherFunc(func(ctx context.Context, msg models.Message) error {
		all, err := repo.GetAllMessages(ctx)
		require.NoError(t, err)
		seen = all
		return nil
	})
	svc := NewService(repo, 100, WithPublisher(pub), WithClock(func() time.Time { return at }))

	msg, err := svc.Create(ctx, "This is the test message!")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "This is the test message!", msg.Text)
	assert.Equal(t, at.Truncate(time.Millisecond), msg.CreatedAt)
	require.Len(t, seen, 1, "message must be stored before it is published")
	assert.Equal(t, msg, seen[0])
}

type publisherFunc func(context.Context, models.Message) error

func (f publisherFunc) Publish(ctx context.Context, msg models.Message) error { return f(ctx, msg) }

func TestCreateFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &recordingPublisher{err: errors.New("broker down")}
	fallback := &recordingPublisher{}
	svc := NewService(store.NewMemoryStore(), 100, WithPublisher(primary), WithFallback(fallback))

	msg, err := svc.Create(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, fallback.msgs, 1)
	assert.Equal(t, msg.ID, fallback.msgs[0].ID)
}

func TestCreateUsesFallbackWithoutPrimary(t *testing.T) {
	fallback := &recordingPublisher{}
	svc := NewService(store.NewMemoryStore(), 100, WithFallback(fallback))

	_, err := svc.Create(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, fallback.msgs, 1)
}

func TestCreateValidation(t *testing.T) {
	repo := store.NewMemoryStore()
	svc := NewService(repo, 5)
	ctx := context.Background()

	_, err := svc.Create(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = svc.Create(ctx, "toolong")
	assert.ErrorIs(t, err, ErrTooLong)

	// length is counted in characters, not bytes
	_, err = svc.Create(ctx, "héllo")
	assert.NoError(t, err)

	// whitespace is still text
	_, err = svc.Create(ctx, "   ")
	assert.NoError(t, err)

	all, err := repo.GetAllMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateSurfacesStoreErrors(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(failingRepo{}, 100, WithPublisher(pub))

	_, err := svc.Create(context.Background(), "hello")
	assert.EqualError(t, err, "disk full")
	assert.Empty(t, pub.msgs)
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), 100)
	var created []models.Message
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		svc.now = func() time.Time { return at.Add(time.Duration(i) * time.Second) }
		m, err := svc.Create(ctx, text)
		require.NoError(t, err)
		created = append(created, m)
	}

	recent, err := svc.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Text)
	assert.Equal(t, "three", recent[1].Text)

	require.NoError(t, svc.Delete(ctx, created[0].ID))
	assert.ErrorIs(t, svc.Delete(ctx, created[0].ID), store.ErrNotFound)
}

func TestDeleteRemembersIDs(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), 100)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	m, err := svc.Create(ctx, "soon gone")
	require.NoError(t, err)
	assert.False(t, svc.Deleted(m.ID))

	require.NoError(t, svc.Delete(ctx, m.ID))
	assert.True(t, svc.Deleted(m.ID))

	// a failed delete leaves no tombstone
	assert.ErrorIs(t, svc.Delete(ctx, "missing"), store.ErrNotFound)
	assert.False(t, svc.Deleted("missing"))

	svc.now = func() time.Time { return at.Add(tombstoneTTL + time.Second) }
	assert.False(t, svc.Deleted(m.ID))
	other, err := svc.Create(ctx, "also gone")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, other.ID))
	svc.mu.Lock()
	assert.Len(t, svc.deleted, 1, "expired tombstones are pruned")
	svc.mu.Unlock()
}

func TestValidatorRejectsUnknownFields(t *testing.T) {
	v := NewMessageValidator()
	doc := map[string]interface{}{"id": "x", "text": "y", "created_at": "2024-01-01T00:00:00Z", "extra": true}
	err := v.Validate(doc)
	assert.ErrorIs(t, err, ErrInvalid)

	assert.NoError(t, v.Validate(models.Message{ID: "x", Text: "y", CreatedAt: time.Now()}))
}

func TestValidatorFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	strict := strings.Replace(messageSchema, `"text": {"type": "string", "minLength": 1}`, `"text": {"type": "string", "maxLength": 3}`, 1)
	require.NoError(t, os.WriteFile(path, []byte(strict), 0o600))

	svc := NewService(store.NewMemoryStore(), 100, WithValidator(NewMessageValidatorFromFile(path)))
	_, err := svc.Create(context.Background(), "long enough")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Create(context.Background(), "ok")
	assert.NoError(t, err)
}

func TestChannelPublisherHonoursContext(t *testing.T) {
	ch := make(chan models.Delivery)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ChannelPublisher{C: ch}.Publish(ctx, models.Message{ID: "x"})
	assert.ErrorIs(t, err, context.Canceled)

	buffered := make(chan models.Delivery, 1)
	require.NoError(t, ChannelPublisher{C: buffered}.Publish(context.Background(), models.Message{ID: "y"}))
	d := <-buffered
	assert.Equal(t, "y", d.Message.ID)
	assert.False(t, d.Remote)
}
