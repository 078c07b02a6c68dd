// Package testkit 提供测试用的内存数据库和测试数据构造函数。
package testkit

import (
	"fmt"
	"io"
	"testing"
	"time"

	"clubpoints/internal/infrastructure/database"
	"clubpoints/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试独立的内存 SQLite
// 只开一个连接：SQLite 不支持行锁，单连接让并发事务串行执行
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Logger 丢弃输出的日志器
func Logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Fixtures 构造测试数据
type Fixtures struct {
	t  testing.TB
	db *gorm.DB
}

func NewFixtures(t testing.TB, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) create(v interface{}) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(v).Error)
}

// Wallet 直接写入带初始余额的钱包和对应的开户流水，保证余额与流水一致
func (f *Fixtures) Wallet(ownerType model.OwnerType, ownerID, balance int64) *model.Wallet {
	f.t.Helper()
	w := model.NewWallet(ownerType, ownerID)
	w.Balance = balance
	f.create(w)
	if balance != 0 {
		f.create(&model.WalletTransaction{
			TransactionNo: "FIX" + uuid.NewString()[:20],
			WalletID:      w.ID,
			Kind:          model.KindInitialGrant,
			Amount:        balance,
			BalanceBefore: 0,
			BalanceAfter:  balance,
			Reason:        "fixture",
		})
	}
	return w
}

func (f *Fixtures) Club(name string, multiplier float64) *model.Club {
	f.t.Helper()
	c := &model.Club{Name: name, ClubMultiplier: multiplier, Level: model.LevelBasic, Active: true}
	f.create(c)
	return c
}

func (f *Fixtures) Membership(userID, clubID int64, multiplier float64, state string) *model.Membership {
	f.t.Helper()
	m := &model.Membership{UserID: userID, ClubID: clubID, MemberMultiplier: multiplier, Level: model.LevelBasic, State: state}
	f.create(m)
	return m
}

func (f *Fixtures) Event(hostClubID int64, eventType, status string, startAt time.Time, coHosts ...int64) *model.Event {
	f.t.Helper()
	e := &model.Event{
		Title:      "event",
		HostClubID: hostClubID,
		Type:       eventType,
		Status:     status,
		StartAt:    startAt,
		EndAt:      startAt.Add(2 * time.Hour),
	}
	f.create(e)
	for _, c := range coHosts {
		f.create(&model.EventCoHost{EventID: e.ID, ClubID: c})
	}
	return e
}

func (f *Fixtures) Registration(eventID, userID, committed int64, attendance, status string) *model.EventRegistration {
	f.t.Helper()
	r := &model.EventRegistration{
		EventID:         eventID,
		UserID:          userID,
		CommittedPoints: committed,
		AttendanceLevel: attendance,
		Status:          status,
	}
	f.create(r)
	return r
}

func (f *Fixtures) Feedback(eventID, userID int64, rating int) {
	f.t.Helper()
	f.create(&model.EventFeedback{EventID: eventID, UserID: userID, Rating: rating})
}

func (f *Fixtures) Session(clubID int64, heldAt time.Time) *model.AttendanceSession {
	f.t.Helper()
	s := &model.AttendanceSession{ClubID: clubID, HeldAt: heldAt}
	f.create(s)
	return s
}

func (f *Fixtures) Attendance(sessionID, membershipID int64, status string) {
	f.t.Helper()
	f.create(&model.AttendanceRecord{SessionID: sessionID, MembershipID: membershipID, Status: status})
}

func (f *Fixtures) Penalty(m *model.Membership, points int, at time.Time) {
	f.t.Helper()
	f.create(&model.ClubPenalty{MembershipID: m.ID, ClubID: m.ClubID, Points: points, Reason: "fixture", CreatedBy: 1, OccurredAt: at})
}

func (f *Fixtures) StaffEvaluation(m *model.Membership, evaluation string, at time.Time) {
	f.t.Helper()
	f.create(&model.StaffPerformance{MembershipID: m.ID, ClubID: m.ClubID, Evaluation: evaluation, CreatedBy: 1, EvaluatedAt: at})
}

func (f *Fixtures) Policy(target model.TargetType, activity, level string, threshold, multiplier float64) *model.MultiplierPolicy {
	f.t.Helper()
	p := &model.MultiplierPolicy{
		TargetType:         target,
		ActivityType:       activity,
		LevelOrStatus:      level,
		MinEventsThreshold: threshold,
		Multiplier:         multiplier,
		Active:             true,
		EffectiveFrom:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.create(p)
	return p
}
