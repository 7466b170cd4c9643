package types

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// Timestamp 绝对时间（自 Unix 纪元起的微秒数）
//
// 线上以网络字节序的 uint64 传输。
type Timestamp uint64

// Forever 表示无限延迟/无限远时间
const Forever = Timestamp(math.MaxUint64)

// Now 使用给定时钟返回当前时间戳
//
// clk 为 nil 时使用系统时钟。
func Now(clk clock.Clock) Timestamp {
	if clk == nil {
		clk = clock.New()
	}
	return FromTime(clk.Now())
}

// FromTime 转换 time.Time
func FromTime(t time.Time) Timestamp {
	us := t.UnixMicro()
	if us < 0 {
		return 0
	}
	return Timestamp(us)
}

// Time 转换为 time.Time
func (ts Timestamp) Time() time.Time {
	if ts == Forever {
		return time.Unix(math.MaxInt64/int64(time.Second), 0)
	}
	return time.UnixMicro(int64(ts))
}

// Add 加上一个相对时长（饱和到 Forever）
func (ts Timestamp) Add(d time.Duration) Timestamp {
	if d < 0 {
		return Forever
	}
	us := uint64(d / time.Microsecond)
	if ts == Forever || uint64(ts) > math.MaxUint64-us {
		return Forever
	}
	return ts + Timestamp(us)
}

// TimestampDifference 返回 end - start，end 不晚于 start 时为零
func TimestampDifference(start, end Timestamp) time.Duration {
	if end <= start {
		return 0
	}
	diff := uint64(end - start)
	if diff > uint64(math.MaxInt64/int64(time.Microsecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(diff) * time.Microsecond
}

// Remaining 返回距离 deadline 的剩余时长（已过期为零）
func Remaining(now, deadline Timestamp) time.Duration {
	return TimestampDifference(now, deadline)
}
