package store

import (
	"context"
	"fmt"
	"strings"
)

// token 对由授权服务按设备写入，采集器读取；刷新后回写
const (
	tokenAccessPrefix  = "vitalsync:token:access:"
	tokenRefreshPrefix = "vitalsync:token:refresh:"
)

// TokenStore 设备级 OAuth token 存取
type TokenStore struct {
	kv KV
}

func NewTokenStore(kv KV) *TokenStore {
	return &TokenStore{kv: kv}
}

// GetTokens 读取一台设备的 token 对
func (s *TokenStore) GetTokens(ctx context.Context, deviceID string) (accessToken, refreshToken string, err error) {
	accessToken, err = s.kv.Get(ctx, tokenAccessPrefix+deviceID)
	if err != nil {
		return "", "", fmt.Errorf("no access token for device %s: %w", deviceID, err)
	}
	refreshToken, err = s.kv.Get(ctx, tokenRefreshPrefix+deviceID)
	if err != nil {
		return "", "", fmt.Errorf("no refresh token for device %s: %w", deviceID, err)
	}
	return accessToken, refreshToken, nil
}

// SaveTokens 回写刷新后的 token 对
func (s *TokenStore) SaveTokens(ctx context.Context, deviceID, accessToken, refreshToken string) error {
	if err := s.kv.Set(ctx, tokenAccessPrefix+deviceID, accessToken, 0); err != nil {
		return err
	}
	return s.kv.Set(ctx, tokenRefreshPrefix+deviceID, refreshToken, 0)
}

// DeviceIDs 列出已有 token 对的设备，升序
func (s *TokenStore) DeviceIDs(ctx context.Context) ([]string, error) {
	keys, err := s.kv.ScanKeys(ctx, tokenRefreshPrefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, tokenRefreshPrefix))
	}
	return ids, nil
}
