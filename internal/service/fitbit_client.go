package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"vitalsync-data/internal/config"
	"vitalsync-data/internal/domain"
)

// ErrRateLimited 上游返回 429 时由客户端方法返回
var ErrRateLimited = errors.New("fitbit rate limited")

// IntradayPoint 一条分钟级采样点
type IntradayPoint struct {
	Time       time.Time
	MetricType string
	Value      float64
}

// FitbitDeviceInfo 设备元信息（devices.json 首条记录）
type FitbitDeviceInfo struct {
	DeviceVersion string
	LastSyncTime  time.Time
}

// FitbitAPI 采集器消费的上游接口，便于测试替换
type FitbitAPI interface {
	GetDailySummary(ctx context.Context, date time.Time) (*domain.DailySummaryFields, error)
	GetIntradayDay(ctx context.Context, date time.Time) ([]IntradayPoint, error)
	GetSleepSessions(ctx context.Context, date time.Time) ([]*domain.SleepLog, error)
	GetDeviceInfo(ctx context.Context) (*FitbitDeviceInfo, error)
}

// TokenUpdateFunc 刷新成功后持久化新 token 对
type TokenUpdateFunc func(accessToken, refreshToken string) error

// FitbitClient Fitbit Web API 客户端，单设备作用域。
// 401 时自动刷新一次 token 并重试原请求，刷新结果通过 onTokensUpdated 回写。
type FitbitClient struct {
	httpClient   *resty.Client
	clientID     string
	clientSecret string

	mu              sync.Mutex
	accessToken     string
	refreshToken    string
	onTokensUpdated TokenUpdateFunc

	logger *zap.Logger
}

// NewFitbitClient 创建 Fitbit 客户端
func NewFitbitClient(cfg config.FitbitConfig, accessToken, refreshToken string, onTokensUpdated TokenUpdateFunc, logger *zap.Logger) *FitbitClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &FitbitClient{
		httpClient:      client,
		clientID:        cfg.ClientID,
		clientSecret:    cfg.ClientSecret,
		accessToken:     accessToken,
		refreshToken:    refreshToken,
		onTokensUpdated: onTokensUpdated,
		logger:          logger,
	}
}

var _ FitbitAPI = (*FitbitClient)(nil)

// get 单次 GET，401 刷新一次后重试；optional 时 400/404 视为无数据
func (c *FitbitClient) get(ctx context.Context, path string, optional bool, out interface{}) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.currentAccessToken()).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to call Fitbit API: %w", err)
	}

	if resp.StatusCode() == 401 {
		c.logger.Warn("Fitbit token expired, refreshing", zap.String("path", path))
		if err := c.refresh(ctx); err != nil {
			return err
		}
		resp, err = c.httpClient.R().
			SetContext(ctx).
			SetAuthToken(c.currentAccessToken()).
			Get(path)
		if err != nil {
			return fmt.Errorf("failed to call Fitbit API: %w", err)
		}
	}

	switch {
	case resp.StatusCode() == 200:
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to unmarshal Fitbit response: %w", err)
		}
		return nil
	case resp.StatusCode() == 429:
		return ErrRateLimited
	case optional && (resp.StatusCode() == 404 || resp.StatusCode() == 400):
		return nil
	default:
		return fmt.Errorf("Fitbit API error: %s (status: %d)", resp.String(), resp.StatusCode())
	}
}

func (c *FitbitClient) currentAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// refresh 用 refresh token 换新 token 对，并通过回调持久化
func (c *FitbitClient) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()

	authHeader := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+authHeader).
		SetFormData(map[string]string{
			"client_id":     c.clientID,
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		}).
		SetResult(&tokens).
		Post("/oauth2/token")
	if err != nil {
		return fmt.Errorf("failed to refresh Fitbit token: %w", err)
	}
	if resp.StatusCode() != 200 || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return fmt.Errorf("Fitbit token refresh failed (status: %d)", resp.StatusCode())
	}

	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	c.mu.Unlock()

	c.logger.Info("Fitbit token refreshed")

	if c.onTokensUpdated != nil {
		if err := c.onTokensUpdated(tokens.AccessToken, tokens.RefreshToken); err != nil {
			c.logger.Error("Failed to persist refreshed Fitbit tokens", zap.Error(err))
		}
	}
	return nil
}

// activitySummaryResponse activities/date/{date}.json
type activitySummaryResponse struct {
	Summary struct {
		Steps     int `json:"steps"`
		Distances []struct {
			Activity string  `json:"activity"`
			Distance float64 `json:"distance"`
		} `json:"distances"`
		CaloriesOut       float64 `json:"caloriesOut"`
		Floors            float64 `json:"floors"`
		Elevation         float64 `json:"elevation"`
		VeryActiveMinutes float64 `json:"veryActiveMinutes"`
		SedentaryMinutes  float64 `json:"sedentaryMinutes"`
	} `json:"summary"`
}

// heartSummaryResponse activities/heart/date/{date}/1d.json
type heartSummaryResponse struct {
	ActivitiesHeart []struct {
		Value struct {
			RestingHeartRate float64 `json:"restingHeartRate"`
		} `json:"value"`
	} `json:"activities-heart"`
}

// sleepResponse sleep/date/{date}.json
type sleepResponse struct {
	Sleep []struct {
		StartTime     string `json:"startTime"`
		EndTime       string `json:"endTime"`
		IsMainSleep   bool   `json:"isMainSleep"`
		Duration      int64  `json:"duration"`
		MinutesAsleep int    `json:"minutesAsleep"`
		MinutesAwake  int    `json:"minutesAwake"`
		TimeInBed     int    `json:"timeInBed"`
		LogType       string `json:"logType"`
		Type          string `json:"type"`
		Levels        struct {
			Data []struct {
				DateTime string `json:"dateTime"`
				Level    string `json:"level"`
				Seconds  int    `json:"seconds"`
			} `json:"data"`
			ShortData []struct {
				DateTime string `json:"dateTime"`
				Level    string `json:"level"`
				Seconds  int    `json:"seconds"`
			} `json:"shortData"`
		} `json:"levels"`
	} `json:"sleep"`
}

// foodsResponse foods/log/date/{date}.json
type foodsResponse struct {
	Summary struct {
		Calories float64 `json:"calories"`
	} `json:"summary"`
}

// waterResponse foods/log/water/date/{date}.json
type waterResponse struct {
	Summary struct {
		Water float64 `json:"water"`
	} `json:"summary"`
}

// fitbitTimeLayout Fitbit 本地时间格式（无时区）
const fitbitTimeLayout = "2006-01-02T15:04:05.000"

// GetDailySummary 汇总多个端点为一天的指标字段，缺失端点对应字段留 nil
func (c *FitbitClient) GetDailySummary(ctx context.Context, date time.Time) (*domain.DailySummaryFields, error) {
	dateStr := date.Format("2006-01-02")
	fields := &domain.DailySummaryFields{}

	var activity activitySummaryResponse
	if err := c.get(ctx, fmt.Sprintf("/1/user/-/activities/date/%s.json", dateStr), false, &activity); err != nil {
		return nil, err
	}
	steps := activity.Summary.Steps
	fields.Steps = &steps
	if len(activity.Summary.Distances) > 0 {
		fields.Distance = &activity.Summary.Distances[0].Distance
	}
	fields.Calories = &activity.Summary.CaloriesOut
	fields.Floors = &activity.Summary.Floors
	fields.Elevation = &activity.Summary.Elevation
	fields.ActiveMinutes = &activity.Summary.VeryActiveMinutes
	fields.SedentaryMinutes = &activity.Summary.SedentaryMinutes

	var heart heartSummaryResponse
	if err := c.get(ctx, fmt.Sprintf("/1/user/-/activities/heart/date/%s/1d.json", dateStr), false, &heart); err != nil {
		return nil, err
	}
	if len(heart.ActivitiesHeart) > 0 {
		fields.HeartRate = &heart.ActivitiesHeart[0].Value.RestingHeartRate
	}

	var sleep sleepResponse
	if err := c.get(ctx, fmt.Sprintf("/1.2/user/-/sleep/date/%s.json", dateStr), false, &sleep); err != nil {
		return nil, err
	}
	sleepMinutes := 0.0
	for _, s := range sleep.Sleep {
		sleepMinutes += float64(s.MinutesAsleep)
	}
	fields.SleepMinutes = &sleepMinutes

	var foods foodsResponse
	if err := c.get(ctx, fmt.Sprintf("/1/user/-/foods/log/date/%s.json", dateStr), false, &foods); err != nil {
		return nil, err
	}
	fields.NutritionCalories = &foods.Summary.Calories

	var water waterResponse
	if err := c.get(ctx, fmt.Sprintf("/1/user/-/foods/log/water/date/%s.json", dateStr), false, &water); err != nil {
		return nil, err
	}
	fields.Water = &water.Summary.Water

	// spo2 / br / temp 端点并非所有设备都有，404 时对应字段留空
	var spo2 struct {
		Value struct {
			Avg float64 `json:"avg"`
		} `json:"value"`
	}
	if err := c.get(ctx, fmt.Sprintf("/1/user/-/spo2/date/%s.json", dateStr), true, &spo2); err != nil {
		return nil, err
	}
	if spo2.Value.Avg > 0 {
		fields.OxygenSaturation = &spo2.Value.Avg
	}

	var br struct {
		Value struct {
			BreathingRate float64 `json:"breathingRate"`
		} `json:"value"`
	}
	if err := c.get(ctx, fmt.Sprintf("/1/user/-/br/date/%s.json", dateStr), true, &br); err != nil {
		return nil, err
	}
	if br.Value.BreathingRate > 0 {
		fields.RespiratoryRate = &br.Value.BreathingRate
	}

	var temp struct {
		Value float64 `json:"value"`
	}
	if err := c.get(ctx, fmt.Sprintf("/1/user/-/temp/core/date/%s.json", dateStr), true, &temp); err != nil {
		return nil, err
	}
	if temp.Value > 0 {
		fields.Temperature = &temp.Value
	}

	return fields, nil
}

// intradayResponse activities/{resource}/date/{date}/1d/1min.json
type intradayResponse struct {
	Dataset []struct {
		Time  string  `json:"time"`
		Value float64 `json:"value"`
	} `json:"dataset"`
}

// GetIntradayDay 拉取一天的分钟级序列（心率/步数/卡路里/距离），按时间升序
func (c *FitbitClient) GetIntradayDay(ctx context.Context, date time.Time) ([]IntradayPoint, error) {
	dateStr := date.Format("2006-01-02")

	resources := []struct {
		metricType string
		path       string
		key        string
	}{
		{domain.MetricHeartRate, fmt.Sprintf("/1/user/-/activities/heart/date/%s/1d/1min.json", dateStr), "activities-heart-intraday"},
		{domain.MetricSteps, fmt.Sprintf("/1/user/-/activities/steps/date/%s/1d/1min.json", dateStr), "activities-steps-intraday"},
		{domain.MetricCalories, fmt.Sprintf("/1/user/-/activities/calories/date/%s/1d/1min.json", dateStr), "activities-calories-intraday"},
		{domain.MetricDistance, fmt.Sprintf("/1/user/-/activities/distance/date/%s/1d/1min.json", dateStr), "activities-distance-intraday"},
	}

	points := make([]IntradayPoint, 0)
	for _, res := range resources {
		var raw map[string]json.RawMessage
		if err := c.get(ctx, res.path, false, &raw); err != nil {
			return nil, err
		}

		series, ok := raw[res.key]
		if !ok {
			continue
		}
		var parsed intradayResponse
		if err := json.Unmarshal(series, &parsed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intraday series: %w", err)
		}

		for _, p := range parsed.Dataset {
			ts, err := time.Parse("2006-01-02 15:04:05", dateStr+" "+p.Time)
			if err != nil {
				continue
			}
			points = append(points, IntradayPoint{
				Time:       ts,
				MetricType: res.metricType,
				Value:      p.Value,
			})
		}
	}

	return points, nil
}

// GetSleepSessions 拉取一天的睡眠会话，含阶段和短醒子区间
func (c *FitbitClient) GetSleepSessions(ctx context.Context, date time.Time) ([]*domain.SleepLog, error) {
	dateStr := date.Format("2006-01-02")

	var resp sleepResponse
	if err := c.get(ctx, fmt.Sprintf("/1.2/user/-/sleep/date/%s.json", dateStr), false, &resp); err != nil {
		return nil, err
	}

	sessions := make([]*domain.SleepLog, 0, len(resp.Sleep))
	for _, s := range resp.Sleep {
		startTime, err := time.Parse(fitbitTimeLayout, s.StartTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sleep start time: %w", err)
		}
		endTime, err := time.Parse(fitbitTimeLayout, s.EndTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sleep end time: %w", err)
		}

		log := &domain.SleepLog{
			StartTime:     startTime,
			EndTime:       endTime,
			IsMainSleep:   s.IsMainSleep,
			Duration:      s.Duration,
			MinutesAsleep: s.MinutesAsleep,
			MinutesAwake:  s.MinutesAwake,
			TimeInBed:     s.TimeInBed,
			LogType:       s.LogType,
			Type:          s.Type,
			Stages:        make([]domain.SleepStage, 0, len(s.Levels.Data)),
			ShortWakes:    make([]domain.SleepWake, 0, len(s.Levels.ShortData)),
		}

		for _, lv := range s.Levels.Data {
			t, err := time.Parse(fitbitTimeLayout, lv.DateTime)
			if err != nil {
				continue
			}
			log.Stages = append(log.Stages, domain.SleepStage{
				Time:    t,
				Level:   lv.Level,
				Seconds: lv.Seconds,
			})
		}

		// shortData 只在 stages 类型的会话里有意义
		if s.Type == "stages" {
			for _, sd := range s.Levels.ShortData {
				t, err := time.Parse(fitbitTimeLayout, sd.DateTime)
				if err != nil {
					continue
				}
				log.ShortWakes = append(log.ShortWakes, domain.SleepWake{
					Time:    t,
					Seconds: sd.Seconds,
				})
			}
		}

		sessions = append(sessions, log)
	}

	return sessions, nil
}

// devicesResponse devices.json
type devicesResponse []struct {
	DeviceVersion string `json:"deviceVersion"`
	LastSyncTime  string `json:"lastSyncTime"`
}

// GetDeviceInfo 取设备元信息（型号、最近同步时间）
func (c *FitbitClient) GetDeviceInfo(ctx context.Context) (*FitbitDeviceInfo, error) {
	var resp devicesResponse
	if err := c.get(ctx, "/1/user/-/devices.json", false, &resp); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("no devices found in Fitbit response")
	}

	lastSync, err := time.Parse(fitbitTimeLayout, resp[0].LastSyncTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lastSyncTime: %w", err)
	}

	return &FitbitDeviceInfo{
		DeviceVersion: resp[0].DeviceVersion,
		LastSyncTime:  lastSync,
	}, nil
}
