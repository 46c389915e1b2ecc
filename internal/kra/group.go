package kra

import "sort"

// GroupKeyframes partitions keyframe times by content reference and classifies
// each group with sizeOf. A reference whose blob is missing, or smaller than
// threshold, is marked Empty. Negative times are ignored, and when one time is
// listed twice the first reference wins so groups stay disjoint. Groups are
// returned sorted by representative (earliest) time.
func GroupKeyframes(frames []Keyframe, sizeOf func(ContentRef) (int64, bool), threshold int64) []KeyframeGroup {
	byRef := map[ContentRef][]int{}
	order := []ContentRef{}
	claimed := map[int]struct{}{}
	for _, kf := range frames {
		if kf.Time < 0 || kf.Ref == "" {
			continue
		}
		if _, dup := claimed[kf.Time]; dup {
			continue
		}
		claimed[kf.Time] = struct{}{}
		if _, ok := byRef[kf.Ref]; !ok {
			order = append(order, kf.Ref)
		}
		byRef[kf.Ref] = append(byRef[kf.Ref], kf.Time)
	}

	groups := make([]KeyframeGroup, 0, len(order))
	for _, ref := range order {
		times := byRef[ref]
		sort.Ints(times)
		group := KeyframeGroup{
			Ref:            ref,
			Times:          times,
			Representative: times[0],
		}
		size, ok := int64(0), false
		if sizeOf != nil {
			size, ok = sizeOf(ref)
		}
		group.BlobSize = size
		group.Empty = !ok || size < threshold
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Representative < groups[j].Representative
	})
	return groups
}
