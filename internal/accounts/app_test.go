package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"

	"github.com/mcdev12/gavel/internal/config"
)

func newTestApp() (*App, *MemoryRepository) {
	repo := NewMemoryRepository()
	return NewApp(repo, config.NewStore(config.Default().Auction)), repo
}

func TestRegisterDefaultBalance(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()

	b, err := app.Register(ctx, CreateBidderRequest{ID: 1, Name: "alice"})
	assert.NoError(t, err)
	assert.Equal(t, int64(200_000_000), b.Balance)

	bal, err := app.GetBalance(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(200_000_000), bal)
}

func TestRegisterExplicitBalance(t *testing.T) {
	app, _ := newTestApp()
	start := int64(50_000_000)

	b, err := app.Register(context.Background(), CreateBidderRequest{ID: 2, Name: "bob", Balance: &start})
	assert.NoError(t, err)
	assert.Equal(t, start, b.Balance)
}

func TestBanUnban(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()

	_, err := app.Register(ctx, CreateBidderRequest{ID: 1, Name: "alice"})
	assert.NoError(t, err)

	banned, err := app.IsBanned(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, banned)

	assert.NoError(t, app.Ban(ctx, 1, "collusion"))
	banned, err = app.IsBanned(ctx, 1)
	assert.NoError(t, err)
	assert.True(t, banned)

	assert.NoError(t, app.Unban(ctx, 1))
	banned, err = app.IsBanned(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, banned)
}

func TestUnknownBidder(t *testing.T) {
	app, _ := newTestApp()

	_, err := app.GetBalance(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDebit(t *testing.T) {
	app, repo := newTestApp()
	ctx := context.Background()

	_, err := app.Register(ctx, CreateBidderRequest{ID: 1, Name: "alice"})
	assert.NoError(t, err)

	assert.NoError(t, repo.Debit(ctx, 1, 150_000_000))
	bal, err := app.GetBalance(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(50_000_000), bal)

	// A debit past the balance must not go through, even partially.
	err = repo.Debit(ctx, 1, 60_000_000)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	bal, err = app.GetBalance(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(50_000_000), bal)
}

func TestListExcludesBanned(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()

	_, err := app.Register(ctx, CreateBidderRequest{ID: 1, Name: "alice"})
	assert.NoError(t, err)
	_, err = app.Register(ctx, CreateBidderRequest{ID: 2, Name: "bob"})
	assert.NoError(t, err)
	assert.NoError(t, app.Ban(ctx, 2, "collusion"))

	active, err := app.List(ctx, false)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(active))
	assert.Equal(t, int64(1), active[0].ID)

	all, err := app.List(ctx, true)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(all))
}
