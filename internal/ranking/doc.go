// Package ranking holds the tunable data of the evaluation engines: weights,
// boosts, decay bases, thresholds and the keyword, synonym and typo tables.
//
// Basic Usage:
//
//	// Load calibration and lexicon (typically at startup)
//	weights, version, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//	lex, _ := ranking.LoadLexicon("configs/lexicon.yaml")
//	store := ranking.NewStore(version, weights, lex)
//
//	// Every scoring call reads one snapshot
//	snap := store.Current()
//	tw := snap.Weights.Trending
//
// Calibration:
//
// Calibration files are partial: any field left at zero keeps its default.
// A file that fails to parse or holds out-of-range values is rejected and
// the defaults (or, when hot-reloading, the current snapshot) stay active.
//
// Hot swapping:
//
// Store publishes snapshots through an atomic pointer, so scoring never
// takes a lock. Watcher reloads local files when they change and
// ObjectSource pulls calibration from an S3-compatible bucket.
//
// Example calibration file:
//
//	{
//	  "version": "2026-03-trending-boost",
//	  "weights": {
//	    "trending": {"velocity": 0.3},
//	    "thresholds": {"trending": {"min_views": {"daily": 20}}}
//	  }
//	}
package ranking
