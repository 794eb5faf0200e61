package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	xerrors "OrchKeeper/internal/errors"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultMinRetainedStakeWei 对应 1 LPT。
	DefaultMinRetainedStakeWei = "1000000000000000000"
	// DefaultFeeWithdrawThresholdWei 对应 0.03 ETH。
	DefaultFeeWithdrawThresholdWei = "30000000000000000"
	DefaultPollInterval            = 30 * time.Minute
	DefaultReceiptTimeout          = 5 * time.Minute
	DefaultReceiptPollInterval     = 2 * time.Second
)

// Duration 允许在 JSON 中以 "30m" 这样的字符串书写时长。
type Duration time.Duration

// UnmarshalJSON 支持字符串与纳秒整数两种写法。
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("无法解析时长: %s", string(data))
	}
	return nil
}

// UnmarshalText 供环境变量解析使用。
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std 返回标准库时长。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 描述 keeper 启动时加载的全部配置，加载后不可变。
type Config struct {
	Chain   ChainConfig   `json:"chain"`
	Wallet  WalletConfig  `json:"wallet"`
	Policy  PolicyConfig  `json:"policy"`
	Journal JournalConfig `json:"journal"`
	Events  EventsConfig  `json:"events"`
	Metrics MetricsConfig `json:"metrics"`
	Log     LogConfig     `json:"log"`
}

// ChainConfig 描述 RPC 节点与协议合约所在网络。
type ChainConfig struct {
	RPCURL              string   `json:"rpc_url" env:"RPC_ENDPOINT_URL"`
	ChainID             uint64   `json:"chain_id" env:"CHAIN_ID"`
	Network             string   `json:"network" env:"NETWORK"`
	NetworksFile        string   `json:"networks_file" env:"NETWORKS_FILE"`
	ReceiptTimeout      Duration `json:"receipt_timeout" env:"RECEIPT_TIMEOUT"`
	ReceiptPollInterval Duration `json:"receipt_poll_interval" env:"RECEIPT_POLL_INTERVAL"`
}

// WalletConfig 描述签名密钥的位置。
type WalletConfig struct {
	KeystorePath   string        `json:"keystore_path" env:"JSON_KEY_FILE"`
	PassphraseFile string        `json:"passphrase_file" env:"PASSPHRASE_FILE"`
	Address        string        `json:"address" env:"ORCH_ETH_ADDR"`
	Keyring        KeyringConfig `json:"keyring"`
}

// KeyringConfig 允许从系统密钥环读取口令，优先于口令文件。
type KeyringConfig struct {
	Service      string   `json:"service" env:"KEYRING_SERVICE"`
	Key          string   `json:"key" env:"KEYRING_KEY"`
	Backends     []string `json:"backends" env:"KEYRING_BACKENDS"`
	FileDir      string   `json:"file_dir" env:"KEYRING_FILE_DIR"`
	FilePassword string   `json:"-" env:"KEYRING_FILE_PASSWORD"`
}

// PolicyConfig 描述阈值与收款地址。金额均以 wei 的十进制字符串表示。
type PolicyConfig struct {
	StakeRecipient          string   `json:"stake_recipient" env:"TRANSFER_BOND_RECIPIENT_ETH_ADDR"`
	FeeRecipient            string   `json:"fee_recipient" env:"ETH_FEE_RECIPIENT_ETH_ADDR"`
	MinRetainedStakeWei     string   `json:"min_retained_stake_wei" env:"MIN_RETAINED_STAKE_WEI"`
	FeeWithdrawThresholdWei string   `json:"fee_withdraw_threshold_wei" env:"FEE_WITHDRAW_THRESHOLD_WEI"`
	PollInterval            Duration `json:"poll_interval" env:"POLL_INTERVAL"`
	RewardCrossCheck        *bool    `json:"reward_cross_check" env:"REWARD_CROSS_CHECK"`
	DryRun                  bool     `json:"dry_run" env:"DRY_RUN"`
}

// JournalConfig 控制交易流水的落库方式：memory 或 mysql。
type JournalConfig struct {
	Driver          string   `json:"driver" env:"JOURNAL_DRIVER"`
	DSN             string   `json:"dsn" env:"JOURNAL_DSN"`
	MaxOpenConns    int      `json:"max_open_conns"`
	MaxIdleConns    int      `json:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
}

// EventsConfig 控制交易结果事件的投递：none、redis 或 rabbitmq。
type EventsConfig struct {
	Driver   string         `json:"driver" env:"EVENTS_DRIVER"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 事件通道。
type RedisConfig struct {
	Address    string `json:"address" env:"EVENTS_REDIS_ADDRESS"`
	Password   string `json:"password" env:"EVENTS_REDIS_PASSWORD"`
	DB         int    `json:"db" env:"EVENTS_REDIS_DB"`
	Channel    string `json:"channel" env:"EVENTS_REDIS_CHANNEL"`
	HistoryKey string `json:"history_key"`
	HistoryLen int64  `json:"history_len"`
}

// RabbitMQConfig 描述 RabbitMQ 事件队列。
type RabbitMQConfig struct {
	URL     string `json:"url" env:"EVENTS_RABBITMQ_URL"`
	Queue   string `json:"queue" env:"EVENTS_RABBITMQ_QUEUE"`
	Durable bool   `json:"durable"`
}

// MetricsConfig 为空地址时不启动 Prometheus 端点。
type MetricsConfig struct {
	Address string `json:"address" env:"METRICS_ADDRESS"`
}

// LogConfig 对应 pkg/logger 的配置。
type LogConfig struct {
	Level       string   `json:"level" env:"LOG_LEVEL"`
	Format      string   `json:"format" env:"LOG_FORMAT"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path" env:"AUDIT_LOG_PATH"`
}

// Load 读取 JSON 配置文件（可为空），再用环境变量覆盖，最后补齐默认值。
// 校验请调用 Validate。
func Load(path string) (*Config, error) {
	var cfg Config
	baseDir := "."

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "读取配置文件失败")
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "解析配置失败")
		}
		baseDir = filepath.Dir(path)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "解析环境变量失败")
	}

	cfg.applyDefaults(baseDir)
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置默认值，默认值沿用线上运行参数。
func (c *Config) applyDefaults(baseDir string) {
	if c.Policy.MinRetainedStakeWei == "" {
		c.Policy.MinRetainedStakeWei = DefaultMinRetainedStakeWei
	}
	if c.Policy.FeeWithdrawThresholdWei == "" {
		c.Policy.FeeWithdrawThresholdWei = DefaultFeeWithdrawThresholdWei
	}
	if c.Policy.PollInterval <= 0 {
		c.Policy.PollInterval = Duration(DefaultPollInterval)
	}
	if c.Policy.RewardCrossCheck == nil {
		enabled := true
		c.Policy.RewardCrossCheck = &enabled
	}
	if c.Chain.ReceiptTimeout <= 0 {
		c.Chain.ReceiptTimeout = Duration(DefaultReceiptTimeout)
	}
	if c.Chain.ReceiptPollInterval <= 0 {
		c.Chain.ReceiptPollInterval = Duration(DefaultReceiptPollInterval)
	}
	if c.Chain.NetworksFile != "" && !filepath.IsAbs(c.Chain.NetworksFile) {
		c.Chain.NetworksFile = filepath.Join(baseDir, c.Chain.NetworksFile)
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate 检查必填项与取值合法性。任何错误都属于启动期致命错误。
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		add("chain.rpc_url (RPC_ENDPOINT_URL) 不能为空")
	}
	if strings.TrimSpace(c.Wallet.KeystorePath) == "" {
		add("wallet.keystore_path (JSON_KEY_FILE) 不能为空")
	}
	if strings.TrimSpace(c.Wallet.PassphraseFile) == "" && strings.TrimSpace(c.Wallet.Keyring.Service) == "" {
		add("wallet.passphrase_file (PASSPHRASE_FILE) 或 wallet.keyring.service 至少配置一个")
	}
	if c.Wallet.Keyring.Service != "" && c.Wallet.Keyring.Key == "" {
		add("wallet.keyring.key 不能为空")
	}
	if c.Wallet.Address != "" && !common.IsHexAddress(c.Wallet.Address) {
		add("wallet.address (ORCH_ETH_ADDR) 不是合法地址: %q", c.Wallet.Address)
	}
	if !isRecipient(c.Policy.StakeRecipient) {
		add("policy.stake_recipient (TRANSFER_BOND_RECIPIENT_ETH_ADDR) 不是合法的非零地址: %q", c.Policy.StakeRecipient)
	}
	if !isRecipient(c.Policy.FeeRecipient) {
		add("policy.fee_recipient (ETH_FEE_RECIPIENT_ETH_ADDR) 不是合法的非零地址: %q", c.Policy.FeeRecipient)
	}
	if _, err := parseWei(c.Policy.MinRetainedStakeWei); err != nil {
		add("policy.min_retained_stake_wei: %v", err)
	}
	if threshold, err := parseWei(c.Policy.FeeWithdrawThresholdWei); err != nil {
		add("policy.fee_withdraw_threshold_wei: %v", err)
	} else if threshold.Sign() == 0 {
		add("policy.fee_withdraw_threshold_wei (FEE_WITHDRAW_THRESHOLD_WEI) 必须大于 0")
	}
	if c.Policy.PollInterval.Std() < time.Second {
		add("policy.poll_interval 不能小于 1s")
	}
	if c.Chain.ReceiptTimeout.Std() <= 0 {
		add("chain.receipt_timeout 必须为正数")
	}

	switch c.Journal.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			add("journal.dsn 在 mysql 驱动下不能为空")
		}
	default:
		add("未知的 journal 驱动: %s", c.Journal.Driver)
	}

	switch c.Events.Driver {
	case "none", "memory":
	case "redis":
		if strings.TrimSpace(c.Events.Redis.Address) == "" {
			add("events.redis.address 不能为空")
		}
	case "rabbitmq":
		if strings.TrimSpace(c.Events.RabbitMQ.URL) == "" {
			add("events.rabbitmq.url 不能为空")
		}
	default:
		add("未知的 events 驱动: %s", c.Events.Driver)
	}

	if len(problems) > 0 {
		return xerrors.Wrap(xerrors.CodeInvalidConfig, errors.Join(problems...), "配置校验失败")
	}
	return nil
}

// Thresholds 是策略所需的不可变参数，金额已转换为 *big.Int。
type Thresholds struct {
	MinRetainedStake     *big.Int
	FeeWithdrawThreshold *big.Int
	PollInterval         time.Duration
	ReceiptTimeout       time.Duration
	StakeRecipient       common.Address
	FeeRecipient         common.Address
}

// Thresholds 在 Validate 通过后把策略配置转换为强类型。
func (c *Config) Thresholds() (Thresholds, error) {
	minStake, err := parseWei(c.Policy.MinRetainedStakeWei)
	if err != nil {
		return Thresholds{}, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "min_retained_stake_wei")
	}
	feeThreshold, err := parseWei(c.Policy.FeeWithdrawThresholdWei)
	if err != nil {
		return Thresholds{}, xerrors.Wrap(xerrors.CodeInvalidConfig, err, "fee_withdraw_threshold_wei")
	}
	return Thresholds{
		MinRetainedStake:     minStake,
		FeeWithdrawThreshold: feeThreshold,
		PollInterval:         c.Policy.PollInterval.Std(),
		ReceiptTimeout:       c.Chain.ReceiptTimeout.Std(),
		StakeRecipient:       common.HexToAddress(c.Policy.StakeRecipient),
		FeeRecipient:         common.HexToAddress(c.Policy.FeeRecipient),
	}, nil
}

// OrchestratorAddress 返回配置的编排者地址，未配置时返回零地址（由密钥推导）。
func (c *Config) OrchestratorAddress() common.Address {
	if c.Wallet.Address == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Wallet.Address)
}

func parseWei(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return nil, errors.New("金额不能为空")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("无法解析金额 %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("金额不能为负数: %s", value)
	}
	return amount, nil
}

// isRecipient 拒绝零地址，转入零地址的资金无法取回。
func isRecipient(addr string) bool {
	return common.IsHexAddress(addr) && common.HexToAddress(addr) != (common.Address{})
}
