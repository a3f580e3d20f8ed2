package catalogue

import (
	"math/rand/v2"
	"time"
)

const dailySeedSalt = 0x6d6f7661

// DailyIndex picks an index in [0, count) from the calendar date of day. The
// same date and count always give the same index, in any process.
func DailyIndex(day time.Time, count int) int {
	if count <= 0 {
		return -1
	}

	year, month, date := day.Date()
	seed := uint64(year*10000 + int(month)*100 + date)
	generator := rand.New(rand.NewPCG(seed, seed^dailySeedSalt))

	return generator.IntN(count)
}
