package scoring

import (
	"fmt"
	"time"

	"clubpoints/internal/apperr"
)

// Period 自然月，按 UTC 计算边界
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, apperr.Newf(apperr.ErrInvalidArgument, "月份不合法: %d", month)
	}
	if year < 2000 || year > 9999 {
		return Period{}, apperr.Newf(apperr.ErrInvalidArgument, "年份不合法: %d", year)
	}
	return Period{Year: year, Month: month}, nil
}

// PreviousPeriod 返回 now 所在月份的上一个月
func PreviousPeriod(now time.Time) Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	return Period{Year: prev.Year(), Month: int(prev.Month())}
}

// Key 可比较的月份编号，例如 202603
func (p Period) Key() int {
	return p.Year*100 + p.Month
}

// Start 月初（含）
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End 下月初（不含）
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
