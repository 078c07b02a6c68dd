package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	SettlementResult string `mapstructure:"settlement_result"`
	ActivityResult   string `mapstructure:"activity_result"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// SettlementConfig 活动结算参数
type SettlementConfig struct {
	// 活动类型倍率，未配置的类型按 1.0 计算
	EventTypeMultipliers map[string]float64 `mapstructure:"event_type_multipliers"`
	HalfAttendanceFactor int64              `mapstructure:"half_attendance_factor"`
	FullAttendanceFactor int64              `mapstructure:"full_attendance_factor"`
	LockTTL              time.Duration      `mapstructure:"lock_ttl"`
}

// EventTypeMultiplier 返回活动类型对应的倍率
func (c SettlementConfig) EventTypeMultiplier(eventType string) float64 {
	if m, ok := c.EventTypeMultipliers[strings.ToLower(eventType)]; ok && m > 0 {
		return m
	}
	return 1.0
}

// Tier 分数分级表中的一行
type Tier struct {
	Label        string  `mapstructure:"label"`
	MinScore     float64 `mapstructure:"min_score"`
	RewardPoints int64   `mapstructure:"reward_points"`
}

// ScoringWeights 俱乐部综合分各项权重
type ScoringWeights struct {
	Events       float64 `mapstructure:"events"`
	Feedback     float64 `mapstructure:"feedback"`
	Checkin      float64 `mapstructure:"checkin"`
	MemberScore  float64 `mapstructure:"member_score"`
	StaffQuality float64 `mapstructure:"staff_quality"`
}

func (w ScoringWeights) sum() float64 {
	return w.Events + w.Feedback + w.Checkin + w.MemberScore + w.StaffQuality
}

// ScoringConfig 月度活跃度评分参数
type ScoringConfig struct {
	AttendanceBaseScore int            `mapstructure:"attendance_base_score"`
	StaffPointPerTask   int            `mapstructure:"staff_point_per_task"`
	StaffEvaluation     map[string]int `mapstructure:"staff_evaluation"`
	DefaultStaffScore   float64        `mapstructure:"default_staff_score"`
	EventCountCap       int            `mapstructure:"event_count_cap"`
	Weights             ScoringWeights `mapstructure:"weights"`
	MemberTiers         []Tier         `mapstructure:"member_tiers"`
	ClubTiers           []Tier         `mapstructure:"club_tiers"`
	Parallelism         int            `mapstructure:"parallelism"`
	LockTTL             time.Duration  `mapstructure:"lock_ttl"`
}

type PolicyConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type JobsConfig struct {
	ScoringInterval time.Duration `mapstructure:"scoring_interval"`
	OutboxInterval  time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize int           `mapstructure:"outbox_batch_size"`
	MaxRetryCount   int           `mapstructure:"max_retry_count"`
	AuditInterval   time.Duration `mapstructure:"audit_interval"`
	AuditBatchSize  int           `mapstructure:"audit_batch_size"`
	AuditRepair     bool          `mapstructure:"audit_repair"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件，环境变量 CLUBPOINTS_* 可覆盖文件中的同名配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("clubpoints")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "读取配置文件失败: %s", configPath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "解析配置文件失败")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	return cfg, nil
}

// Default 返回只包含默认值的配置，测试与本地运行使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.database", "clubpoints")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.settlement_result", "clubpoints.settlement.result")
	v.SetDefault("kafka.topic.activity_result", "clubpoints.activity.result")

	v.SetDefault("tracing.service_name", "clubpoints")

	v.SetDefault("settlement.event_type_multipliers", map[string]float64{"special": 1.5})
	v.SetDefault("settlement.half_attendance_factor", 1)
	v.SetDefault("settlement.full_attendance_factor", 2)
	v.SetDefault("settlement.lock_ttl", 30*time.Second)

	v.SetDefault("scoring.attendance_base_score", 50)
	v.SetDefault("scoring.staff_point_per_task", 5)
	v.SetDefault("scoring.staff_evaluation", map[string]int{
		"poor": 40, "average": 70, "good": 90, "excellent": 100,
	})
	v.SetDefault("scoring.default_staff_score", 50)
	v.SetDefault("scoring.event_count_cap", 4)
	v.SetDefault("scoring.weights.events", 0.25)
	v.SetDefault("scoring.weights.feedback", 0.2)
	v.SetDefault("scoring.weights.checkin", 0.2)
	v.SetDefault("scoring.weights.member_score", 0.2)
	v.SetDefault("scoring.weights.staff_quality", 0.15)
	v.SetDefault("scoring.member_tiers", []map[string]interface{}{
		{"label": "LOW", "min_score": 0},
		{"label": "NORMAL", "min_score": 20},
		{"label": "POSITIVE", "min_score": 50},
		{"label": "OUTSTANDING", "min_score": 80},
	})
	v.SetDefault("scoring.club_tiers", []map[string]interface{}{
		{"label": "LOW", "min_score": 0, "reward_points": 0},
		{"label": "NORMAL", "min_score": 40, "reward_points": 100},
		{"label": "POSITIVE", "min_score": 65, "reward_points": 300},
		{"label": "OUTSTANDING", "min_score": 85, "reward_points": 500},
	})
	v.SetDefault("scoring.parallelism", 4)
	v.SetDefault("scoring.lock_ttl", 30*time.Minute)

	v.SetDefault("policy.cache_ttl", time.Minute)

	v.SetDefault("jobs.scoring_interval", time.Hour)
	v.SetDefault("jobs.outbox_interval", 500*time.Millisecond)
	v.SetDefault("jobs.outbox_batch_size", 100)
	v.SetDefault("jobs.max_retry_count", 5)
	v.SetDefault("jobs.audit_interval", 6*time.Hour)
	v.SetDefault("jobs.audit_batch_size", 200)
	v.SetDefault("jobs.audit_repair", false)
}

// Validate 校验会导致结算或评分结果失真的配置
func (c *Config) Validate() error {
	s := c.Scoring
	if s.AttendanceBaseScore < 0 || s.StaffPointPerTask < 0 {
		return fmt.Errorf("scoring: 基础分与任务分不能为负数")
	}
	if s.EventCountCap <= 0 {
		return fmt.Errorf("scoring: event_count_cap 必须大于0")
	}
	if s.Weights.sum() <= 0 {
		return fmt.Errorf("scoring: 权重之和必须大于0")
	}
	if len(s.MemberTiers) == 0 || len(s.ClubTiers) == 0 {
		return fmt.Errorf("scoring: 分级表不能为空")
	}
	if s.Parallelism <= 0 {
		return fmt.Errorf("scoring: parallelism 必须大于0")
	}
	st := c.Settlement
	if st.HalfAttendanceFactor < 0 || st.FullAttendanceFactor < 0 {
		return fmt.Errorf("settlement: 出勤系数不能为负数")
	}
	for k, m := range st.EventTypeMultipliers {
		if m <= 0 {
			return fmt.Errorf("settlement: 活动类型 %s 的倍率必须大于0", k)
		}
	}
	return nil
}
