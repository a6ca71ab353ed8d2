//go:build integration

package integration

import (
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	incidentspostgres "github.com/bissquit/incident-radar/internal/incidents/postgres"
	subscriberspostgres "github.com/bissquit/incident-radar/internal/subscribers/postgres"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidentRepository_BaselinePersisted(t *testing.T) {
	repo := incidentspostgres.NewRepository(testDB)

	for _, id := range testBaselineIDs {
		stored, err := repo.GetIncident(t.Context(), id)
		require.NoError(t, err, id)
		assert.Equal(t, "Example", stored.Provider)
		assert.Equal(t, "Main", stored.Source)
	}
}

func TestIncidentRepository_UpsertKeepsFirstSeen(t *testing.T) {
	repo := incidentspostgres.NewRepository(testDB)
	ctx := t.Context()

	published := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	inc := domain.Incident{
		ID:          "storage-" + uuid.New().String(),
		Provider:    "AWS",
		Source:      "EC2",
		Title:       "Investigating increased error rates",
		Summary:     "We are investigating.",
		Status:      domain.IncidentStatusInvestigating,
		Severity:    domain.SeverityLow,
		PublishedAt: &published,
	}

	require.NoError(t, repo.UpsertIncidents(ctx, []domain.Incident{inc, inc}))

	first, err := repo.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusInvestigating, first.Status)
	assert.Empty(t, first.Link)
	require.NotNil(t, first.PublishedAt)
	assert.True(t, published.Equal(*first.PublishedAt))

	inc.Status = domain.IncidentStatusResolved
	inc.Title = "Resolved: increased error rates"
	require.NoError(t, repo.UpsertIncidents(ctx, []domain.Incident{inc}))

	second, err := repo.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, second.Status)
	assert.Equal(t, "Resolved: increased error rates", second.Title)
	assert.True(t, first.FirstSeenAt.Equal(second.FirstSeenAt))
	assert.False(t, second.LastSeenAt.Before(first.LastSeenAt))
}

func TestIncidentRepository_NotFound(t *testing.T) {
	repo := incidentspostgres.NewRepository(testDB)

	_, err := repo.GetIncident(t.Context(), "missing-"+uuid.New().String())
	assert.ErrorIs(t, err, incidentspostgres.ErrNotFound)
}

func TestSubscriberRepository(t *testing.T) {
	repo := subscriberspostgres.NewRepository(testDB)
	ctx := t.Context()
	email := "repo-" + uuid.New().String()[:8] + "@example.com"

	require.NoError(t, repo.UpsertSubscriber(ctx, email))
	require.NoError(t, repo.UpsertSubscriber(ctx, email))

	emails, err := repo.LoadSubscribers(ctx)
	require.NoError(t, err)
	assert.Contains(t, emails, email)

	require.NoError(t, repo.DeleteSubscriber(ctx, email))
	require.NoError(t, repo.DeleteSubscriber(ctx, email))

	emails, err = repo.LoadSubscribers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, emails, email)
}
