//go:build integration

package arbiter

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"mission-dispatch/internal/common/logger"
	"mission-dispatch/internal/dispatch/store"
	"mission-dispatch/internal/models"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newPostgresStore(t *testing.T) *store.PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dispatch"),
		tcpostgres.WithUsername("dispatch"),
		tcpostgres.WithPassword("dispatch"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(40)
	t.Cleanup(func() { db.Close() })

	st := store.NewPostgresStore(db)
	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestClaim_PostgresRowLockHasExactlyOneWinner(t *testing.T) {
	st := newPostgresStore(t)

	const n = 24
	candidates := make([]string, n)
	for i := range candidates {
		candidates[i] = fmt.Sprintf("w%02d", i)
	}
	seedPublished(t, st, "m-int", 30*time.Minute, candidates...)
	arb := New(st, nil, logger.NewTestLogger(t), func() time.Time { return sentAt.Add(time.Minute) })

	results := make(chan models.ClaimResult, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, c := range candidates {
		wg.Add(1)
		go func(candidate string) {
			defer wg.Done()
			<-start
			res, err := arb.Claim(context.Background(), "m-int", candidate)
			assert.NoError(t, err)
			results <- res
		}(c)
	}
	close(start)
	wg.Wait()
	close(results)

	counts := map[models.ClaimResult]int{}
	for r := range results {
		counts[r]++
	}
	assert.Equal(t, 1, counts[models.ClaimOK])
	assert.Equal(t, n-1, counts[models.ClaimAlreadyTaken])
	assertSingleAcceptance(t, st, "m-int")
}

func TestClaim_PostgresExpiredOffer(t *testing.T) {
	st := newPostgresStore(t)
	seedPublished(t, st, "m-exp", 30*time.Minute, "c")
	arb := New(st, nil, logger.NewTestLogger(t), func() time.Time { return sentAt.Add(time.Hour) })

	res, err := arb.Claim(context.Background(), "m-exp", "c")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimOfferNotFoundOrExpired, res)

	m, err := st.GetMission(context.Background(), "m-exp")
	require.NoError(t, err)
	assert.Equal(t, models.MissionPublished, m.Status)
	assert.Nil(t, m.AssignedWorkerID)
}
