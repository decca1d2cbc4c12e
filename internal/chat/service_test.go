package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"multichat/internal/ai"
	"multichat/internal/catalog"
	"multichat/internal/files"
	"multichat/internal/ledger"
	"multichat/internal/pricing"
	"multichat/pkg/models"
)

// scriptedAdapter returns a fixed completion or error and records the
// turns it was called with.
type scriptedAdapter struct {
	completion *ai.Completion
	err        error
	gotTurns   []ai.Turn
}

func (a *scriptedAdapter) Complete(ctx context.Context, model catalog.ModelDescriptor, turns []ai.Turn) (*ai.Completion, error) {
	a.gotTurns = turns
	if a.err != nil {
		return nil, a.err
	}
	return a.completion, nil
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	adapter *scriptedAdapter
	files   *files.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Conversation{}, &models.Message{},
		&models.Transaction{}, &models.UsageLog{}, &models.StoredFile{},
	))

	cat := catalog.New(catalog.Credentials{OpenAI: true, Anthropic: true, Google: true, Together: true})
	adapter := &scriptedAdapter{completion: &ai.Completion{Text: "reply", InputTokens: 500_000, OutputTokens: 100_000}}
	dispatcher := ai.NewDispatcher(cat, map[catalog.Provider]ai.Adapter{
		catalog.ProviderOpenAI:    adapter,
		catalog.ProviderAnthropic: adapter,
		catalog.ProviderGoogle:    adapter,
		catalog.ProviderTogether:  adapter,
	}, 5*time.Second)

	led := ledger.NewService(db, pricing.NewEngine(cat))

	store, err := files.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	fileSvc := files.NewService(db, store, 1<<20)

	return &fixture{
		svc:     NewService(db, cat, dispatcher, led, fileSvc),
		db:      db,
		adapter: adapter,
		files:   fileSvc,
	}
}

func (f *fixture) createUser(t *testing.T, balance float64) *models.User {
	t.Helper()
	user := &models.User{Username: "tester", Email: "t@example.com", PasswordHash: "x", IsActive: true, Balance: balance}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func TestCreateConversation(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 10)

	conv, err := f.svc.CreateConversation(context.Background(), user.ID, "claude-sonnet-4.5", "")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4.5", conv.Model)
	assert.Equal(t, "Claude Sonnet 4.5 Chat", conv.Title)
}

func TestCreateConversation_UnknownModel(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 10)

	_, err := f.svc.CreateConversation(context.Background(), user.ID, "gpt-1", "")
	var unknown *catalog.ErrUnknownModel
	assert.True(t, errors.As(err, &unknown))
}

func TestSend_BillsAndPersistsReply(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 10.00)
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, user.ID, "claude-sonnet-4.5", "")
	require.NoError(t, err)

	// 500K in + 100K out on claude-sonnet-4.5 ($4/$20 per 1M) = $4.00.
	result, err := f.svc.Send(ctx, user.ID, conv.ID, "hello", nil)
	require.NoError(t, err)
	assert.True(t, result.Billed)
	assert.InDelta(t, 4.00, result.Cost, 1e-9)
	assert.Equal(t, "reply", result.Message.Content)

	msgs, err := f.svc.Messages(ctx, user.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ai.RoleUser, msgs[0].Role)
	assert.Equal(t, ai.RoleAssistant, msgs[1].Role)

	var refreshed models.User
	require.NoError(t, f.db.First(&refreshed, user.ID).Error)
	assert.InDelta(t, 6.00, refreshed.Balance, 1e-9)

	var log models.UsageLog
	require.NoError(t, f.db.First(&log).Error)
	assert.Equal(t, models.UsageChat, log.Kind)
}

func TestSend_ProviderFailureIsNotBilled(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 10.00)
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, user.ID, "gpt-5.2", "")
	require.NoError(t, err)

	f.adapter.err = errors.New("SERVICE_ERROR: OpenAI service temporarily unavailable")
	_, err = f.svc.Send(ctx, user.ID, conv.ID, "hello", nil)

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Contains(t, provErr.Detail, "SERVICE_ERROR")

	// The user's turn stays in the thread, nothing else is written.
	msgs, err := f.svc.Messages(ctx, user.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, ai.RoleUser, msgs[0].Role)

	var logCount int64
	require.NoError(t, f.db.Model(&models.UsageLog{}).Count(&logCount).Error)
	assert.Zero(t, logCount)

	var refreshed models.User
	require.NoError(t, f.db.First(&refreshed, user.ID).Error)
	assert.InDelta(t, 10.00, refreshed.Balance, 1e-9)
}

func TestSend_InsufficientFundsReturnsUnbilledText(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 1.00) // reply costs $4.00
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, user.ID, "claude-sonnet-4.5", "")
	require.NoError(t, err)

	result, err := f.svc.Send(ctx, user.ID, conv.ID, "hello", nil)

	var insufficient *ledger.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.InDelta(t, 4.00, insufficient.Required, 1e-9)
	assert.InDelta(t, 1.00, insufficient.Available, 1e-9)

	// Text comes back for transparency but is flagged unbilled and the
	// reply was not persisted.
	require.NotNil(t, result)
	assert.False(t, result.Billed)
	assert.Equal(t, "reply", result.Message.Content)

	msgs, err := f.svc.Messages(ctx, user.ID, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestSend_ZeroBalanceNeverReachesProvider(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 0)
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, user.ID, "claude-sonnet-4.5", "")
	require.NoError(t, err)

	result, err := f.svc.Send(ctx, user.ID, conv.ID, "hello", nil)
	require.ErrorIs(t, err, ErrBalanceExhausted)
	assert.Nil(t, result)

	// Rejected before dispatch: the adapter was never called and the
	// prompt was not persisted.
	assert.Empty(t, f.adapter.gotTurns)
	msgs, err := f.svc.Messages(ctx, user.ID, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSend_FileContextDecoratesOnlyOutgoingTurn(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 10.00)
	ctx := context.Background()

	upload, err := f.files.Upload(ctx, user.ID, "notes.txt", "text/plain", strings.NewReader("attached details"))
	require.NoError(t, err)

	conv, err := f.svc.CreateConversation(ctx, user.ID, "gpt-5.2", "")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, user.ID, conv.ID, "summarize this", []uint{upload.ID})
	require.NoError(t, err)

	// Outgoing turn carries the decorated content.
	require.NotEmpty(t, f.adapter.gotTurns)
	last := f.adapter.gotTurns[len(f.adapter.gotTurns)-1]
	assert.Contains(t, last.Content, "summarize this")
	assert.Contains(t, last.Content, "[File: notes.txt]")
	assert.Contains(t, last.Content, "attached details")

	// Persisted turn keeps the original undecorated text.
	msgs, err := f.svc.Messages(ctx, user.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "summarize this", msgs[0].Content)
}

func TestSend_EmptyMessageRejected(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 10.00)

	conv, err := f.svc.CreateConversation(context.Background(), user.ID, "gpt-5.2", "")
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), user.ID, conv.ID, "", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestConversationOwnership(t *testing.T) {
	f := newFixture(t)
	owner := f.createUser(t, 10.00)
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, owner.ID, "gpt-5.2", "")
	require.NoError(t, err)

	otherID := owner.ID + 1
	_, err = f.svc.GetConversation(ctx, otherID, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = f.svc.Send(ctx, otherID, conv.ID, "hi", nil)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestDelete_RemovesThreadAndMessages(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, 10.00)
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, user.ID, "gpt-5.2", "")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, user.ID, conv.ID, "hello", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, user.ID, conv.ID))

	_, err = f.svc.GetConversation(ctx, user.ID, conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	var msgCount int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&msgCount).Error)
	assert.Zero(t, msgCount)
}
