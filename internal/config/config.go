package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Engine names accepted by MOOD_ENGINE.
const (
	EngineRemote = "remote"
	EngineArk    = "ark"
	EngineNone   = "none"
)

// Config 聚合整个客户端的配置项。
type Config struct {
	Server  ServerConfig
	Channel ChannelConfig
	Camera  CameraConfig
	Mood    MoodConfig
	Vision  VisionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	channel, err := loadChannelConfig()
	if err != nil {
		return nil, err
	}

	camera, err := loadCameraConfig()
	if err != nil {
		return nil, err
	}

	mood, err := loadMoodConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Channel: channel,
		Camera:  camera,
		Mood:    mood,
		Vision:  loadVisionConfig(),
	}, nil
}

// ServerConfig 描述本地界面 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8090"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8090" 或 "127.0.0.1:8090"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ChannelConfig 描述与远端应答方之间的双向通道。
type ChannelConfig struct {
	URL           string
	Reconnect     bool
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func loadChannelConfig() (ChannelConfig, error) {
	reconnect, err := parseBoolEnv("CHANNEL_RECONNECT", true)
	if err != nil {
		return ChannelConfig{}, err
	}

	maxRetries := 5
	if override, err := parseOptionalIntEnv("CHANNEL_MAX_RETRIES"); err != nil {
		return ChannelConfig{}, err
	} else if override != nil {
		if *override < 0 {
			maxRetries = 0
		} else {
			maxRetries = *override
		}
	}

	retryDelay, err := parseDurationEnv("CHANNEL_RETRY_DELAY", time.Second)
	if err != nil {
		return ChannelConfig{}, err
	}

	maxRetryDelay, err := parseDurationEnv("CHANNEL_MAX_RETRY_DELAY", 30*time.Second)
	if err != nil {
		return ChannelConfig{}, err
	}
	if maxRetryDelay < retryDelay {
		maxRetryDelay = retryDelay
	}

	return ChannelConfig{
		URL:           getEnvOrDefault("CHANNEL_URL", "ws://localhost:3000/ws"),
		Reconnect:     reconnect,
		MaxRetries:    maxRetries,
		RetryDelay:    retryDelay,
		MaxRetryDelay: maxRetryDelay,
	}, nil
}

// CameraConfig 描述快照摄像头。URL 为空表示没有摄像头。
type CameraConfig struct {
	URL      string
	Username string
	Password string
	FPS      float64
}

func loadCameraConfig() (CameraConfig, error) {
	fps := 5.0
	if override, err := parseOptionalFloatEnv("CAMERA_FPS"); err != nil {
		return CameraConfig{}, err
	} else if override != nil {
		fps = *override
	}

	return CameraConfig{
		URL:      strings.TrimSpace(os.Getenv("CAMERA_URL")),
		Username: strings.TrimSpace(os.Getenv("CAMERA_USERNAME")),
		Password: os.Getenv("CAMERA_PASSWORD"),
		FPS:      fps,
	}, nil
}

// MoodConfig 控制情绪检测循环。
type MoodConfig struct {
	Interval  time.Duration
	Engine    string
	ModelsURL string
}

func loadMoodConfig() (MoodConfig, error) {
	interval, err := parseDurationEnv("MOOD_INTERVAL", time.Second)
	if err != nil {
		return MoodConfig{}, err
	}
	if interval <= 0 {
		return MoodConfig{}, fmt.Errorf("invalid MOOD_INTERVAL value %q: must be positive", interval)
	}

	engine := strings.ToLower(getEnvOrDefault("MOOD_ENGINE", EngineRemote))
	switch engine {
	case EngineRemote, EngineArk, EngineNone:
	default:
		return MoodConfig{}, fmt.Errorf("invalid MOOD_ENGINE value %q", engine)
	}

	return MoodConfig{
		Interval:  interval,
		Engine:    engine,
		ModelsURL: getEnvOrDefault("MODELS_URL", "http://localhost:3000/models"),
	}, nil
}

// VisionConfig 描述 Ark 视觉大模型相关配置。
type VisionConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled 表示是否提供了必需的密钥。
func (c VisionConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c VisionConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	temperature := float32(0)
	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadVisionConfig() VisionConfig {
	return VisionConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:     strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
