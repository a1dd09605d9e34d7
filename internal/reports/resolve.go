package reports

import (
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// newer reports whether a supersedes b under last-write-wins: the later
// CreatedAt wins and equal timestamps fall back to the greater ID.
func newer(a, b *models.Report) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}

// resolveLatest keeps one report per business key, the last write winning.
// Superseded versions stay in the store; they are only hidden from reads.
func resolveLatest(all []models.Report, logger *logging.Logger) []models.Report {
	winners := make(map[string]int, len(all))
	out := make([]models.Report, 0, len(all))

	for i := range all {
		key := all[i].BusinessKey()
		idx, seen := winners[key]
		if !seen {
			winners[key] = len(out)
			out = append(out, all[i])
			continue
		}

		winner, loser := &all[i], &out[idx]
		if !newer(winner, loser) {
			winner, loser = loser, winner
		}
		logger.Debug("Report superseded by later write",
			map[string]interface{}{
				"business_key": key,
				"winner_id":    winner.ID.String(),
				"loser_id":     loser.ID.String(),
			})
		out[idx] = *winner
	}
	return out
}
