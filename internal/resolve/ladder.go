package resolve

import (
	"sort"

	"github.com/samber/lo"

	"bilirelay/internal/media"
)

// standardTiers are the renditions tried below the requested ceiling.
var standardTiers = []media.Quality{media.Q1080P, media.Q720P, media.Q480P, media.Q360P}

// BuildLadder returns the tiers to attempt for a requested ceiling: the
// requested tier first, followed by every standard tier strictly below it,
// deduplicated and in strictly descending order. A non-positive request
// starts from media.QDefault.
func BuildLadder(requested media.Quality) []media.Quality {
	if requested <= 0 {
		requested = media.QDefault
	}

	ladder := lo.Filter(standardTiers, func(q media.Quality, _ int) bool {
		return q < requested
	})
	ladder = lo.Uniq(append([]media.Quality{requested}, ladder...))

	sort.Slice(ladder, func(i, j int) bool { return ladder[i] > ladder[j] })
	return ladder
}
