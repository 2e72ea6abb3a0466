package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vitalsync-data/internal/config"
	"vitalsync-data/internal/domain"
)

func newFitbitTestClient(serverURL string, onTokensUpdated TokenUpdateFunc) *FitbitClient {
	cfg := config.FitbitConfig{
		BaseURL:      serverURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Timeout:      5 * time.Second,
	}
	return NewFitbitClient(cfg, "old-access", "old-refresh", onTokensUpdated, zap.NewNop())
}

func TestFitbitClientRefreshesExpiredToken(t *testing.T) {
	refreshCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.FormValue("grant_type"))
		require.Equal(t, "old-refresh", r.FormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh"}`))
	})
	mux.HandleFunc("/1/user/-/devices.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"deviceVersion":"Charge 6","lastSyncTime":"2026-03-10T08:15:00.000"}]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var persistedAccess, persistedRefresh string
	client := newFitbitTestClient(server.URL, func(accessToken, refreshToken string) error {
		persistedAccess = accessToken
		persistedRefresh = refreshToken
		return nil
	})

	info, err := client.GetDeviceInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Charge 6", info.DeviceVersion)
	require.Equal(t, time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC), info.LastSyncTime)

	// 只刷新一次，新 token 对已回写
	require.Equal(t, 1, refreshCalls)
	require.Equal(t, "new-access", persistedAccess)
	require.Equal(t, "new-refresh", persistedRefresh)
}

func TestFitbitClientRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newFitbitTestClient(server.URL, nil)

	_, err := client.GetDeviceInfo(context.Background())
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestFitbitClientDailySummaryToleratesMissingEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	respond := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/1/user/-/activities/date/2026-03-01.json", respond(`{
		"summary": {
			"steps": 5000,
			"distances": [{"activity": "total", "distance": 3.2}],
			"caloriesOut": 2100,
			"floors": 4,
			"elevation": 12,
			"veryActiveMinutes": 35,
			"sedentaryMinutes": 600
		}
	}`))
	mux.HandleFunc("/1/user/-/activities/heart/date/2026-03-01/1d.json", respond(`{
		"activities-heart": [{"value": {"restingHeartRate": 61}}]
	}`))
	mux.HandleFunc("/1.2/user/-/sleep/date/2026-03-01.json", respond(`{"sleep": []}`))
	mux.HandleFunc("/1/user/-/foods/log/date/2026-03-01.json", respond(`{"summary": {"calories": 1800}}`))
	mux.HandleFunc("/1/user/-/foods/log/water/date/2026-03-01.json", respond(`{"summary": {"water": 1500}}`))
	// spo2/br/temp 未开通，404 不报错
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newFitbitTestClient(server.URL, nil)

	fields, err := client.GetDailySummary(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, 5000, *fields.Steps)
	require.Equal(t, 3.2, *fields.Distance)
	require.Equal(t, 61.0, *fields.HeartRate)
	require.Equal(t, 600.0, *fields.SedentaryMinutes)
	require.Equal(t, 0.0, *fields.SleepMinutes)
	require.Equal(t, 1800.0, *fields.NutritionCalories)
	require.Nil(t, fields.OxygenSaturation)
	require.Nil(t, fields.RespiratoryRate)
	require.Nil(t, fields.Temperature)
}

func TestFitbitClientGetIntradayDay(t *testing.T) {
	mux := http.NewServeMux()
	respond := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/1/user/-/activities/heart/date/2026-03-01/1d/1min.json", respond(`{
		"activities-heart-intraday": {"dataset": [
			{"time": "10:00:00", "value": 72},
			{"time": "10:01:00", "value": 74}
		]}
	}`))
	mux.HandleFunc("/1/user/-/activities/steps/date/2026-03-01/1d/1min.json", respond(`{
		"activities-steps-intraday": {"dataset": [{"time": "10:00:00", "value": 40}]}
	}`))
	mux.HandleFunc("/1/user/-/activities/calories/date/2026-03-01/1d/1min.json", respond(`{
		"activities-calories-intraday": {"dataset": []}
	}`))
	mux.HandleFunc("/1/user/-/activities/distance/date/2026-03-01/1d/1min.json", respond(`{
		"activities-distance-intraday": {"dataset": []}
	}`))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newFitbitTestClient(server.URL, nil)

	points, err := client.GetIntradayDay(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 3)

	require.Equal(t, domain.MetricHeartRate, points[0].MetricType)
	require.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), points[0].Time)
	require.Equal(t, 72.0, points[0].Value)
	require.Equal(t, domain.MetricSteps, points[2].MetricType)
	require.Equal(t, 40.0, points[2].Value)
}

func TestFitbitClientGetSleepSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sleep": [{
			"startTime": "2026-03-01T23:10:00.000",
			"endTime": "2026-03-02T07:10:00.000",
			"isMainSleep": true,
			"duration": 28800000,
			"minutesAsleep": 430,
			"minutesAwake": 50,
			"timeInBed": 480,
			"logType": "auto_detected",
			"type": "stages",
			"levels": {
				"data": [
					{"dateTime": "2026-03-01T23:10:00.000", "level": "light", "seconds": 1800},
					{"dateTime": "2026-03-01T23:40:00.000", "level": "deep", "seconds": 3600}
				],
				"shortData": [
					{"dateTime": "2026-03-02T01:10:00.000", "level": "wake", "seconds": 120}
				]
			}
		}]}`))
	}))
	defer server.Close()

	client := newFitbitTestClient(server.URL, nil)

	sessions, err := client.GetSleepSessions(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	require.Equal(t, time.Date(2026, 3, 1, 23, 10, 0, 0, time.UTC), s.StartTime)
	require.True(t, s.IsMainSleep)
	require.Equal(t, int64(28800000), s.Duration)
	require.Equal(t, 430, s.MinutesAsleep)
	require.Len(t, s.Stages, 2)
	require.Equal(t, domain.SleepLevelDeep, s.Stages[1].Level)
	require.Equal(t, 3600, s.Stages[1].Seconds)
	require.Len(t, s.ShortWakes, 1)
	require.Equal(t, 120, s.ShortWakes[0].Seconds)
}
