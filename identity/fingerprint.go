package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"ah_scanner/models"
)

// Fingerprint identifies a listing by seller and item stack. Price is left out
// so a repriced listing keeps its id.
func Fingerprint(l *models.Listing) string {
	input := fmt.Sprintf("%s|%s|%s|%d",
		strings.ToLower(strings.TrimSpace(l.SellerUUID)),
		strings.ToLower(strings.TrimSpace(l.ItemID)),
		NormalizeName(l.ItemName),
		l.Count,
	)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16])
}

func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// AssignIDs fills in ids for listings that arrived without one. Identical stacks
// from the same seller get ordinal suffixes in price, then time_left order, so
// the assignment does not depend on page order.
func AssignIDs(listings []models.Listing) {
	groups := make(map[string][]int)
	for i := range listings {
		if listings[i].ID != "" {
			continue
		}
		fp := Fingerprint(&listings[i])
		groups[fp] = append(groups[fp], i)
	}

	for fp, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			la, lb := &listings[idx[a]], &listings[idx[b]]
			if la.Price != lb.Price {
				return la.Price < lb.Price
			}
			return la.TimeLeft > lb.TimeLeft
		})
		for n, i := range idx {
			if n == 0 {
				listings[i].ID = fp
				continue
			}
			listings[i].ID = fmt.Sprintf("%s#%d", fp, n+1)
		}
	}
}
