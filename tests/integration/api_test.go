//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPI_Status(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/api/v1/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data domain.Snapshot `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	require.Len(t, result.Data.Providers, 1)
	assert.Equal(t, "Example", result.Data.Providers[0].Provider)
	assert.Empty(t, result.Data.Errors)

	byID := result.Data.IncidentsByID()
	outage, ok := byID["baseline-outage"]
	require.True(t, ok)
	assert.Equal(t, domain.IncidentStatusIncident, outage.Status)
	assert.Equal(t, domain.SeverityCritical, outage.Severity)
	assert.Equal(t, "Main", outage.Source)
}

func TestAPI_StatusProviderFilter(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/api/v1/status?provider=EXAMPLE")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data domain.Snapshot `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	assert.Len(t, result.Data.Providers, 1)

	resp, err = client.GET("/api/v1/status?provider=unknown")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	testutil.DecodeJSON(t, resp, &result)
	assert.Empty(t, result.Data.Providers)
}

func TestAPI_SubscriberLifecycle(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail("lifecycle")

	countBefore := subscriberCount(t, client)

	resp, err := client.POST("/api/v1/subscribers", map[string]string{"email": email})
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Equal(t, countBefore+1, subscriberCount(t, client))

	var stored int
	err = testDB.QueryRow(t.Context(), `SELECT COUNT(*) FROM subscribers WHERE email = $1`, email).Scan(&stored)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	resp, err = client.DELETEWithBody("/api/v1/subscribers", map[string]string{"email": email})
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Equal(t, countBefore, subscriberCount(t, client))

	err = testDB.QueryRow(t.Context(), `SELECT COUNT(*) FROM subscribers WHERE email = $1`, email).Scan(&stored)
	require.NoError(t, err)
	assert.Zero(t, stored)
}

func TestAPI_SubscribeInvalidEmail(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/subscribers", map[string]string{"email": "not-an-email"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPI_SubscribeUnknownField(t *testing.T) {
	client := newTestClientWithoutValidation()

	resp, err := client.POST("/api/v1/subscribers", map[string]string{"email": "a@b.com", "name": "x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPI_Probes(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status    string  `json:"status"`
		UpdatedAt *string `json:"updated_at"`
	}
	testutil.DecodeJSON(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.NotNil(t, health.UpdatedAt)

	resp, err = client.GET("/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.GET("/version")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPI_ServesOpenAPIDocument(t *testing.T) {
	client := newTestClientWithoutValidation()

	resp, err := client.GET("/api/openapi.yaml")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, testutil.ReadBody(t, resp), "Incident Radar API")
}

func subscriberCount(t *testing.T, client *testutil.Client) int {
	t.Helper()

	resp, err := client.GET("/api/v1/subscribers/count")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.Count
}
