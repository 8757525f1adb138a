package pipeline

import (
	"sort"

	"github.com/mbartos/photon/internal/extractor"
)

// overlapIoU is the intersection-over-union above which two detections on
// the same image are considered the same face.
const overlapIoU = 0.5

// computeIoU calculates intersection over union between two bounding boxes.
// Boxes are [x1, y1, x2, y2] in the same coordinate system.
func computeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)

	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// dedupeDetections drops detections that heavily overlap a higher-scored
// one. Extractors occasionally report the same face twice with slightly
// different boxes; keeping both would double-count the person in clustering.
func dedupeDetections(detected []extractor.Face) []extractor.Face {
	if len(detected) < 2 {
		return detected
	}

	ordered := make([]extractor.Face, len(detected))
	copy(ordered, detected)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DetScore > ordered[j].DetScore
	})

	var kept []extractor.Face
	for _, candidate := range ordered {
		duplicate := false
		for _, k := range kept {
			if computeIoU(candidate.BBox, k.BBox) >= overlapIoU {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	return kept
}
