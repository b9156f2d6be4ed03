package services

import (
	"sort"
	"time"

	"ah_scanner/models"
)

// ClassifyDisappearance decides what happened to a listing that is no longer
// on the auction house at observedAt. Its timer kept running since it was last
// seen, so a listing whose remaining time had elapsed by then (within the
// grace period), or was unknown, ran out. Anything else was bought.
func ClassifyDisappearance(last *models.Listing, observedAt int64, expiryGrace time.Duration) models.EventType {
	if last.TimeLeft <= 0 {
		return models.EventRemoved
	}
	elapsed := max(0, observedAt-last.SeenAt)
	if last.TimeLeft <= elapsed+expiryGrace.Milliseconds() {
		return models.EventRemoved
	}
	return models.EventSold
}

// Coverage records which feed pages a cycle actually read. Listings from the
// previous snapshot are only judged gone when their page was read again.
type Coverage struct {
	Pages map[int]bool
	// EndPage is the page that reported no more pages, 0 when the end of the
	// feed was not reached. Every page after it is covered.
	EndPage int
}

// Covers reports whether a listing last seen on page was observable this
// cycle. A nil Coverage covers everything, as does an unknown page.
func (c *Coverage) Covers(page int) bool {
	if c == nil || page <= 0 {
		return true
	}
	return c.Pages[page] || (c.EndPage > 0 && page > c.EndPage)
}

// DiffResult is the outcome of comparing two consecutive snapshots.
type DiffResult struct {
	Events []models.Event
	// Vanished lists ids that left the active set, with or without an event.
	Vanished []string
	// Carried holds previous listings on pages this cycle did not read. They
	// stay in the snapshot until their page is read or their timer runs out.
	Carried []models.Listing
	// Expired counts listings dropped without an event because their time ran
	// out while their page went unread.
	Expired int
}

// DiffListings compares the previous and current snapshots and emits
// new_listing, price_change and removed/sold events stamped ts. Events come
// out ordered by listing id within each group: appearances and changes first,
// then disappearances.
func DiffListings(prev, curr map[string]models.Listing, cov *Coverage, ts int64, expiryGrace time.Duration) DiffResult {
	var res DiffResult

	for _, id := range sortedIDs(curr) {
		l := curr[id]
		old, seen := prev[id]
		switch {
		case !seen:
			res.Events = append(res.Events, models.EventFromListing(models.EventNewListing, ts, &l))
		case old.Price != l.Price:
			e := models.EventFromListing(models.EventPriceChange, ts, &l)
			p := old.Price
			e.PreviousPrice = &p
			res.Events = append(res.Events, e)
		}
	}

	for _, id := range sortedIDs(prev) {
		if _, ok := curr[id]; ok {
			continue
		}
		old := prev[id]
		if !cov.Covers(old.Page) {
			if old.TimeLeft > 0 && old.TimeLeft > ts-old.SeenAt {
				res.Carried = append(res.Carried, old)
			} else {
				res.Expired++
				res.Vanished = append(res.Vanished, id)
			}
			continue
		}
		res.Events = append(res.Events, models.EventFromListing(ClassifyDisappearance(&old, ts, expiryGrace), ts, &old))
		res.Vanished = append(res.Vanished, id)
	}

	return res
}

func sortedIDs(m map[string]models.Listing) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
