package clients

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// ExponentialBackoffWithJitter returns a duration to sleep for based on
// the attempt number, the minimum and maximum durations, and the
// response.
//
// If the response is a 429, the Retry-After header determines the sleep
// duration. Otherwise it is min * 2^attemptNum, capped at max, with up
// to 25% random jitter added below the cap.
func ExponentialBackoffWithJitter(
	min, max time.Duration,
	attemptNum int,
	resp *http.Response,
) time.Duration {
	addJitter := func(duration time.Duration) time.Duration {
		jitter := SecondsToDuration(rand.Float64() * 0.25 * DurationToSeconds(duration))
		return duration + jitter
	}

	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if s, ok := resp.Header["Retry-After"]; ok {
			if sleep, err := strconv.ParseFloat(s[0], 64); err == nil {
				return addJitter(SecondsToDuration(sleep))
			}
		}
	}

	sleep := SecondsToDuration(math.Pow(2, float64(attemptNum)) * DurationToSeconds(min))
	sleep = addJitter(sleep)

	if sleep > max {
		sleep = max
	}
	return sleep
}
