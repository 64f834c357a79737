package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// Config 与配置中心（Nacos / Etcd）及本地文件中的配置结构对应
// 金额字段使用字符串，避免浮点误差，由业务层转 decimal
type Config struct {
	Server struct {
		Port     int    `yaml:"port" json:"port"`
		LogLevel string `yaml:"log_level" json:"log_level"`
	} `yaml:"server" json:"server"`

	Database struct {
		DSN                string `yaml:"dsn" json:"dsn"`
		MaxOpenConns       int    `yaml:"max_open_conns" json:"max_open_conns"`
		MaxIdleConns       int    `yaml:"max_idle_conns" json:"max_idle_conns"`
		ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec" json:"conn_max_lifetime_sec"`
		LockWaitTimeoutSec int    `yaml:"lock_wait_timeout_sec" json:"lock_wait_timeout_sec"`
	} `yaml:"database" json:"database"`

	Redis struct {
		Addr     string `yaml:"addr" json:"addr"`
		Password string `yaml:"password" json:"password"`
		DB       int    `yaml:"db" json:"db"`
	} `yaml:"redis" json:"redis"`

	RocketMQ struct {
		Endpoint       string `yaml:"endpoint" json:"endpoint"`
		ConsumerGroup  string `yaml:"consumer_group" json:"consumer_group"`
		ProducerTopics string `yaml:"producer_topics" json:"producer_topics"`
		ConsumeTopics  string `yaml:"consume_topics" json:"consume_topics"`
		AccessKey      string `yaml:"access_key" json:"access_key"`
		SecretKey      string `yaml:"secret_key" json:"secret_key"`
	} `yaml:"rocketmq" json:"rocketmq"`

	Observability struct {
		EnableProm bool   `yaml:"enable_prom" json:"enable_prom"`
		PromAddr   string `yaml:"prom_addr" json:"prom_addr"`
	} `yaml:"observability" json:"observability"`

	Auth struct {
		Admin struct {
			Enabled bool   `yaml:"enabled" json:"enabled"`
			Token   string `yaml:"token" json:"token"`
		} `yaml:"admin" json:"admin"`
	} `yaml:"auth" json:"auth"`

	RateLimit struct {
		Enabled bool `yaml:"enabled" json:"enabled"`
		ByUser  struct {
			Requests      int `yaml:"requests" json:"requests"`
			WindowSeconds int `yaml:"window_seconds" json:"window_seconds"`
		} `yaml:"by_user" json:"by_user"`
	} `yaml:"rate_limit" json:"rate_limit"`

	Game struct {
		AssignWindowMinutes int  `yaml:"assign_window_minutes" json:"assign_window_minutes"`
		FreeBoxLimit        int  `yaml:"free_box_limit" json:"free_box_limit"`
		TxTimeoutMs         int  `yaml:"tx_timeout_ms" json:"tx_timeout_ms"`
		AutoAssign          bool `yaml:"auto_assign" json:"auto_assign"`
		AutoAssignEverySec  int  `yaml:"auto_assign_every_sec" json:"auto_assign_every_sec"`
	} `yaml:"game" json:"game"`

	Withdrawal struct {
		MinAmount string `yaml:"min_amount" json:"min_amount"`
		DailyCap  string `yaml:"daily_cap" json:"daily_cap"`
	} `yaml:"withdrawal" json:"withdrawal"`

	// 动态配置：功能开关与业务阈值
	FeatureFlags map[string]bool  `yaml:"feature_flags" json:"feature_flags"`
	Thresholds   map[string]int64 `yaml:"thresholds" json:"thresholds"`
}

// 默认值
const (
	DefaultAssignWindowMinutes = 60
	DefaultFreeBoxLimit        = 2
	DefaultTxTimeoutMs         = 3000
	DefaultWithdrawalMin       = "10.00"
	DefaultWithdrawalDailyCap  = "1000.00"
)

// ApplyDefaults 为未设置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Game.AssignWindowMinutes <= 0 {
		c.Game.AssignWindowMinutes = DefaultAssignWindowMinutes
	}
	if c.Game.FreeBoxLimit <= 0 {
		c.Game.FreeBoxLimit = DefaultFreeBoxLimit
	}
	if c.Game.TxTimeoutMs <= 0 {
		c.Game.TxTimeoutMs = DefaultTxTimeoutMs
	}
	if c.Game.AutoAssignEverySec <= 0 {
		c.Game.AutoAssignEverySec = 30
	}
	if strings.TrimSpace(c.Withdrawal.MinAmount) == "" {
		c.Withdrawal.MinAmount = DefaultWithdrawalMin
	}
	if strings.TrimSpace(c.Withdrawal.DailyCap) == "" {
		c.Withdrawal.DailyCap = DefaultWithdrawalDailyCap
	}
}

// Validate 启动前的必要校验
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if c.Auth.Admin.Enabled && strings.TrimSpace(c.Auth.Admin.Token) == "" {
		return errors.New("auth.admin.token is required when admin auth is enabled")
	}
	return nil
}

// Load 配置加载顺序：Nacos -> Etcd -> 本地文件（兜底）
// 支持以下环境变量：
//   - NACOS_SERVER_ADDR / NACOS_DATA_ID / NACOS_NAMESPACE / NACOS_GROUP
//   - ETCD_ENDPOINTS / ETCD_CONFIG_KEY
//   - CONFIG_FILE: 配置文件路径（默认：config/dev.yaml）
func Load(ctx context.Context) (*Config, error) {
	if strings.TrimSpace(os.Getenv("NACOS_SERVER_ADDR")) != "" {
		cfg, err := loadFromNacos(ctx)
		if err == nil {
			fmt.Printf("[Config] 配置已从 Nacos 加载: dataId=%s, group=%s\n",
				os.Getenv("NACOS_DATA_ID"), getEnvOrDefault("NACOS_GROUP", "DEFAULT_GROUP"))
			return finish(cfg), nil
		}
		fmt.Printf("[Config] 从 Nacos 加载配置失败，降级: error=%v\n", err)
	}

	if strings.TrimSpace(os.Getenv("ETCD_ENDPOINTS")) != "" {
		cfg, err := loadFromEtcd(ctx)
		if err == nil {
			fmt.Printf("[Config] 配置已从 Etcd 加载: key=%s\n", os.Getenv("ETCD_CONFIG_KEY"))
			return finish(cfg), nil
		}
		fmt.Printf("[Config] 从 Etcd 加载配置失败，降级使用本地文件: error=%v\n", err)
	}

	configFile := getEnvOrDefault("CONFIG_FILE", "config/dev.yaml")
	cfg, err := loadFromFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from nacos/etcd and local file (%s): %w", configFile, err)
	}
	fmt.Printf("[Config] 配置已从本地文件加载: file=%s\n", configFile)
	return finish(cfg), nil
}

func finish(cfg *Config) *Config {
	cfg.ApplyDefaults()
	return cfg
}

// getEnvOrDefault 获取环境变量，如果不存在则返回默认值
func getEnvOrDefault(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// Parse 按扩展名解析配置内容；未知扩展名先尝试 YAML 再尝试 JSON
func Parse(name string, data []byte) (*Config, error) {
	var cfg Config
	switch filepath.Ext(name) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			if err2 := json.Unmarshal(data, &cfg); err2 != nil {
				return nil, fmt.Errorf("failed to parse config (tried YAML and JSON): yaml_err=%v, json_err=%v", err, err2)
			}
		}
	}
	return &cfg, nil
}

// loadFromFile 从本地 JSON 或 YAML 文件加载配置
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", filePath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	switch filepath.Ext(filePath) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .json, .yaml, .yml)", filepath.Ext(filePath))
	}
	return Parse(filePath, data)
}

func loadFromEtcd(ctx context.Context) (*Config, error) {
	endpoints := strings.Split(os.Getenv("ETCD_ENDPOINTS"), ",")
	for i := range endpoints {
		endpoints[i] = strings.TrimSpace(endpoints[i])
	}
	if len(endpoints) == 0 || endpoints[0] == "" {
		return nil, errors.New("empty ETCD_ENDPOINTS")
	}
	key := strings.TrimSpace(os.Getenv("ETCD_CONFIG_KEY"))
	if key == "" {
		return nil, errors.New("ETCD_CONFIG_KEY not set")
	}
	dialTimeout := 5 * time.Second
	if v := strings.TrimSpace(os.Getenv("ETCD_DIAL_TIMEOUT_SEC")); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			dialTimeout = time.Duration(sec) * time.Second
		}
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Username:    os.Getenv("ETCD_USERNAME"),
		Password:    os.Getenv("ETCD_PASSWORD"),
	})
	if err != nil {
		return nil, fmt.Errorf("etcd connect failed: %w", err)
	}
	defer cli.Close()

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := cli.Get(ctx2, key)
	if err != nil {
		return nil, fmt.Errorf("etcd get failed: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("etcd key not found: %s", key)
	}
	return Parse(key, resp.Kvs[0].Value)
}

// nacosParams 从环境变量读取 Nacos 连接参数
type nacosParams struct {
	serverConfigs []constant.ServerConfig
	clientConfig  constant.ClientConfig
	dataID        string
	group         string
}

func readNacosParams() (*nacosParams, error) {
	serverAddr := strings.TrimSpace(os.Getenv("NACOS_SERVER_ADDR"))
	if serverAddr == "" {
		return nil, errors.New("NACOS_SERVER_ADDR not set")
	}
	dataID := strings.TrimSpace(os.Getenv("NACOS_DATA_ID"))
	if dataID == "" {
		return nil, errors.New("NACOS_DATA_ID not set")
	}

	timeoutMS := 5000
	if t, err := strconv.Atoi(strings.TrimSpace(os.Getenv("NACOS_TIMEOUT_MS"))); err == nil && t > 0 {
		timeoutMS = t
	}

	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(serverAddr, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid NACOS_SERVER_ADDR format: %s (expected host:port)", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in NACOS_SERVER_ADDR: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, constant.ServerConfig{IpAddr: parts[0], Port: port})
	}
	if len(serverConfigs) == 0 {
		return nil, errors.New("no valid server address in NACOS_SERVER_ADDR")
	}

	cc := constant.ClientConfig{
		NamespaceId:         getEnvOrDefault("NACOS_NAMESPACE", "public"),
		TimeoutMs:           uint64(timeoutMS),
		NotLoadCacheAtStart: true,
		LogDir:              "/tmp/nacos/log",
		CacheDir:            "/tmp/nacos/cache",
		LogLevel:            "warn",
	}
	username := strings.TrimSpace(os.Getenv("NACOS_USERNAME"))
	password := strings.TrimSpace(os.Getenv("NACOS_PASSWORD"))
	if username != "" && password != "" {
		cc.Username = username
		cc.Password = password
	}

	return &nacosParams{
		serverConfigs: serverConfigs,
		clientConfig:  cc,
		dataID:        dataID,
		group:         getEnvOrDefault("NACOS_GROUP", "DEFAULT_GROUP"),
	}, nil
}

func newNacosClient(p *nacosParams) (config_client.IConfigClient, error) {
	return clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &p.clientConfig,
		ServerConfigs: p.serverConfigs,
	})
}

// loadFromNacos 从 Nacos 配置中心加载配置
func loadFromNacos(_ context.Context) (*Config, error) {
	p, err := readNacosParams()
	if err != nil {
		return nil, err
	}
	client, err := newNacosClient(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos config client: %w", err)
	}
	content, err := client.GetConfig(vo.ConfigParam{DataId: p.dataID, Group: p.group})
	if err != nil {
		return nil, fmt.Errorf("failed to get config from nacos: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("nacos config is empty: dataId=%s, group=%s", p.dataID, p.group)
	}
	return Parse(p.dataID, []byte(content))
}

// globalConfig 启动时加载的配置实例（只读）
var globalConfig *Config

// Set 设置全局配置
func Set(cfg *Config) {
	globalConfig = cfg
	SetCurrent(cfg)
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}
