package crawl

import "time"

// NextWindowStart computes where the next fetch window for an account
// begins. With no checkpoint, or one at or below the history floor, the
// window starts at the floor; otherwise it starts one second past the
// checkpoint so the boundary tweet is not fetched again.
func NextWindowStart(lastSeen *time.Time, floor time.Time) time.Time {
	if lastSeen != nil && lastSeen.After(floor) {
		return lastSeen.Add(time.Second)
	}
	return floor
}
