package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 流水号生成器
// ============================================================================
//
// 流水号（transaction_no）是 wallet_transaction 的唯一键，一次转账生成两个。
// 采用雪花算法：
//
//   0 - 41位时间戳 - 10位节点号 - 12位序列号
//
// 单节点每毫秒最多 4096 个，序列号用完时等待下一毫秒。
//
// ============================================================================

const (
	epoch          = int64(1735689600000) // 2025-01-01 00:00:00 UTC
	nodeIDBits     = 10
	sequenceBits   = 12
	maxNodeID      = -1 ^ (-1 << nodeIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	nodeIDShift    = sequenceBits
	timestampShift = sequenceBits + nodeIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	sequence  int64
	now       func() time.Time
}

// NewSnowflake 创建指定节点号的生成器
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("nodeID 必须在 0-%d 之间", maxNodeID)
	}
	return &Snowflake{nodeID: nodeID, now: time.Now}, nil
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init 初始化默认生成器，只有第一次调用生效
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(nodeID)
	})
	return err
}

// NextID 使用默认生成器生成ID，未初始化时使用节点号 1
func NextID() int64 {
	if defaultGenerator == nil {
		_ = Init(1)
	}
	return defaultGenerator.Generate()
}

// Generate 生成ID，同一生成器返回的ID严格递增
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	if ts < s.timestamp {
		// 时钟回拨时沿用上一次的时间戳
		ts = s.timestamp
	}

	if ts == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for ts <= s.timestamp {
				ts = s.now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = ts

	return ((ts - epoch) << timestampShift) | (s.nodeID << nodeIDShift) | s.sequence
}

// GenerateTransactionNo 生成流水号，格式 TXN + 雪花ID
func GenerateTransactionNo() string {
	return fmt.Sprintf("TXN%d", NextID())
}

// GenerateSettlementNo 生成结算单号，作为结算产生的全部流水的 reference_no
// 例如：STL12_5260938275840000
func GenerateSettlementNo(eventID int64) string {
	return fmt.Sprintf("STL%d_%d", eventID, NextID())
}
