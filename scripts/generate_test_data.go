package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/blogpulse/internal/config"
	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/service"
	"github.com/blogpulse/internal/stats"
	"gorm.io/gorm"
)

const seedDays = 45

// 测试数据生成器：为本地开发写入一段带周末回落和一次流量尖峰的统计序列
func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("数据库初始化失败: 未设置 DATABASE_URL")
	}
	if err := db.Init(cfg.DatabaseURL, cfg.DatabasePassword); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	written, err := seedStats(context.Background(), db.DB, time.Now().UTC(), seedDays)
	if err != nil {
		log.Fatal("写入统计数据失败:", err)
	}
	if written == 0 {
		fmt.Println("统计数据已存在，跳过创建")
		return
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("日期: %d 天\n", written)
}

// seedStats 在表为空时写入 days 天的数据，返回写入的日期数。
func seedStats(ctx context.Context, gdb *gorm.DB, end time.Time, days int) (int, error) {
	var count int64
	if err := gdb.Model(&db.BlogStat{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	result := service.NewStatsService(gdb).IngestFacts(ctx, generateFacts(end, days, 42))
	if err := result.Err(); err != nil {
		return len(result.Dates), err
	}
	return len(result.Dates), nil
}

// generateFacts 生成截至 end 的 days 天数据，每天一条浏览量和一条访客数。
// 最早的两天只有浏览量，用来模拟扩展尚未抓取访客数的情况。
func generateFacts(end time.Time, days int, seed uint64) []stats.DailyFact {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	start := end.AddDate(0, 0, -(days - 1))

	facts := make([]stats.DailyFact, 0, days*2)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		date := day.Format(stats.DateLayout)

		base := 180 + i*3
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			base = base * 6 / 10
		}
		if i == days*2/3 {
			base *= 4
		}
		views := int64(base + rng.IntN(60))
		visitors := views*int64(35+rng.IntN(10))/100

		facts = append(facts, stats.DailyFact{Date: date, Metric: stats.MetricViews, Count: views})
		if i >= 2 {
			facts = append(facts, stats.DailyFact{Date: date, Metric: stats.MetricVisitors, Count: visitors})
		}
	}
	return facts
}
