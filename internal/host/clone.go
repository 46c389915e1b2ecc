package host

import (
	"errors"
	"fmt"

	"framesel/internal/kra"
)

const (
	// ActionCopyAsClones copies the selected keyframes as clones.
	ActionCopyAsClones = "copy_frames_as_clones"
	// ActionPasteFrames pastes copied keyframes at the playhead.
	ActionPasteFrames = "paste_frames"
)

var (
	// ErrSameFrame is returned when the clone target already shows the source content.
	ErrSameFrame = errors.New("target already shows the source content")
	// ErrActionUnavailable is returned when the host lacks a required action.
	ErrActionUnavailable = errors.New("host action unavailable")
	// ErrNoCandidates is returned when a group has no times to clone from.
	ErrNoCandidates = errors.New("no clone candidates")
)

// CloneFrame clones the content at source onto target using the host's native
// copy-as-clone and paste actions, then restores the playhead.
func CloneFrame(h Cloner, source, target int) error {
	if source == target {
		return ErrSameFrame
	}
	original := h.CurrentTime()
	defer h.Seek(original)

	h.Seek(source)
	if !h.TriggerNamedAction(ActionCopyAsClones) {
		return fmt.Errorf("%s: %w", ActionCopyAsClones, ErrActionUnavailable)
	}
	h.Seek(target)
	if !h.TriggerNamedAction(ActionPasteFrames) {
		return fmt.Errorf("%s: %w", ActionPasteFrames, ErrActionUnavailable)
	}
	h.ForceRefresh()
	return nil
}

// NearestTime returns the time in times closest to target. Exact ties prefer
// the earlier time.
func NearestTime(times []int, target int) (int, bool) {
	best, found := 0, false
	for _, t := range times {
		if !found {
			best, found = t, true
			continue
		}
		d, bd := abs(t-target), abs(best-target)
		if d < bd || (d == bd && t < best) {
			best = t
		}
	}
	return best, found
}

// SmartClone clones group's content onto target from the group member nearest
// to target, and returns the source time used.
func SmartClone(h Cloner, group kra.KeyframeGroup, target int) (int, error) {
	for _, t := range group.Times {
		if t == target {
			return t, ErrSameFrame
		}
	}
	source, ok := NearestTime(group.Times, target)
	if !ok {
		return 0, ErrNoCandidates
	}
	if err := CloneFrame(h, source, target); err != nil {
		return source, err
	}
	return source, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
